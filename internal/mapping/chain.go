package mapping

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
)

// HandlerMapping maps a request to a handler.
type HandlerMapping interface {
	Name() string
	Order() int
	// Handler returns (nil, false, nil) when the mapping has no handler for r.
	Handler(r *http.Request) (http.Handler, bool, error)
}

// Entry is one row of a mapping snapshot.
type Entry struct {
	Mapping   string `json:"mapping"`
	Mode      Mode   `json:"mode"`
	Parameter string `json:"parameter,omitempty"`
	Handler   string `json:"handler"`
	Resolved  bool   `json:"resolved"`
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Mode != entries[j].Mode {
			return entries[i].Mode < entries[j].Mode
		}
		return entries[i].Parameter < entries[j].Parameter
	})
}

// intercept wraps h so that interceptors[0] runs outermost, matching
// the order gorilla/mux applies router middleware in.
func intercept(h http.Handler, interceptors []mux.MiddlewareFunc) http.Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Match is the result of a successful Chain resolution.
type Match struct {
	Handler http.Handler
	// Mapping names the mapping that produced Handler; empty for the default.
	Mapping string
	Default bool
}

// Chain consults mappings by ascending Order and falls back to a default
// handler. It is immutable after construction.
type Chain struct {
	mappings []HandlerMapping
	fallback http.Handler
}

// NewChain sorts mappings by Order, keeping the given order for ties.
// fallback may be nil.
func NewChain(fallback http.Handler, mappings ...HandlerMapping) *Chain {
	sorted := make([]HandlerMapping, 0, len(mappings))
	for _, m := range mappings {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })
	return &Chain{mappings: sorted, fallback: fallback}
}

// Resolve returns the first handler any mapping produces for r. An error
// from a mapping stops the search.
func (c *Chain) Resolve(r *http.Request) (Match, bool, error) {
	for _, m := range c.mappings {
		h, ok, err := m.Handler(r)
		if err != nil {
			return Match{}, false, err
		}
		if ok {
			return Match{Handler: h, Mapping: m.Name()}, true, nil
		}
	}
	if c.fallback != nil {
		return Match{Handler: c.fallback, Default: true}, true, nil
	}
	return Match{}, false, nil
}

// HasMode reports whether any mapping in the chain knows mode. Mappings
// that cannot tell are skipped.
func (c *Chain) HasMode(mode Mode) bool {
	for _, m := range c.mappings {
		if k, ok := m.(interface{ HasMode(Mode) bool }); ok && k.HasMode(mode) {
			return true
		}
	}
	return false
}

// HasDefault reports whether a fallback handler is configured.
func (c *Chain) HasDefault() bool { return c.fallback != nil }

// Mappings returns the mappings in evaluation order.
func (c *Chain) Mappings() []HandlerMapping {
	return append([]HandlerMapping(nil), c.mappings...)
}

// Entries returns the snapshots of every mapping that exposes one.
func (c *Chain) Entries() []Entry {
	var entries []Entry
	for _, m := range c.mappings {
		if s, ok := m.(interface{ Entries() []Entry }); ok {
			entries = append(entries, s.Entries()...)
		}
	}
	return entries
}
