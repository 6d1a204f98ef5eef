// Package app composes the dispatch layer: it builds the handler
// container from the mapping file, registers every mapping source into
// the mode/parameter and mode-only mappings, and wires the dispatcher
// with its logging and metrics listeners.
//
// The dependency flow is:
//
//	cmd/dispatcher/
//	      │
//	      ▼
//	internal/app/ (composition) ──► internal/app/httpapi/ (routes)
//	      │
//	      ├──► internal/config/, internal/storage/postgres/ (sources)
//	      ├──► internal/handler/ (container)
//	      ├──► internal/mapping/ (dispatch tables)
//	      └──► internal/dispatch/ (HTTP dispatcher)
package app
