package mapping

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dispatch_layer/internal/handler"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// ModeBuilder accumulates registrations for a ModeMapping.
type ModeBuilder struct {
	opts  Options
	table map[Mode]handler.Ref
	built bool
}

// NewModeBuilder creates a builder for a mode-only mapping. Chained after
// a ModeParameterMapping it supplies the default handler of each mode.
func NewModeBuilder(opts Options) *ModeBuilder {
	return &ModeBuilder{
		opts:  opts.withDefaults("mode"),
		table: make(map[Mode]handler.Ref),
	}
}

// Register maps mode to ref. A mode may only be mapped once.
func (b *ModeBuilder) Register(mode Mode, ref handler.Ref) error {
	if b.built {
		return ErrBuilderClosed
	}
	mode = NormalizeMode(string(mode))
	if mode == "" {
		return invalidConfig("mode is required")
	}
	if ref.IsZero() {
		return invalidConfig("no handler given for mode [%s]", mode)
	}
	if existing, ok := b.table[mode]; ok {
		return &ConflictError{Mode: mode, Handler: ref.String(), Existing: existing.String()}
	}

	resolved, err := resolveEagerly(b.opts, ref)
	if err != nil {
		return fmt.Errorf("mode [%s]: %w", mode, err)
	}
	b.table[mode] = resolved

	b.opts.Logger.WithField("mapping", b.opts.Name).
		WithField("mode", mode).
		WithField("handler", resolved.String()).
		Info("mapped handler")
	return nil
}

// RegisterAll registers every mode in sorted order.
func (b *ModeBuilder) RegisterAll(table map[Mode]handler.Ref) error {
	for _, mode := range sortedModes(table) {
		if err := b.Register(mode, table[mode]); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the registrations.
func (b *ModeBuilder) Build() (*ModeMapping, error) {
	if b.built {
		return nil, ErrBuilderClosed
	}
	b.built = true

	table := make(map[Mode]handler.Ref, len(b.table))
	for mode, ref := range b.table {
		table[mode] = ref
	}
	return &ModeMapping{
		name:         b.opts.Name,
		order:        b.opts.Order,
		modes:        b.opts.ModeResolver,
		interceptors: append([]mux.MiddlewareFunc(nil), b.opts.Interceptors...),
		resolver:     b.opts.Resolver,
		log:          b.opts.Logger,
		table:        table,
	}, nil
}

// ModeMapping dispatches on the request mode alone.
type ModeMapping struct {
	name         string
	order        int
	modes        ModeResolver
	interceptors []mux.MiddlewareFunc
	resolver     handler.Resolver
	log          *logger.Logger
	table        map[Mode]handler.Ref
}

var _ HandlerMapping = (*ModeMapping)(nil)

func (m *ModeMapping) Name() string { return m.name }

func (m *ModeMapping) Order() int { return m.order }

// Lookup returns the reference registered for mode.
func (m *ModeMapping) Lookup(mode Mode) (handler.Ref, bool) {
	ref, ok := m.table[NormalizeMode(string(mode))]
	return ref, ok
}

func (m *ModeMapping) Handler(r *http.Request) (http.Handler, bool, error) {
	mode, ok := ModeOf(r, m.modes)
	if !ok {
		return nil, false, nil
	}
	ref, ok := m.table[mode]
	if !ok {
		m.log.WithContext(r.Context()).WithField("mode", mode).Debug("no handler for mode")
		return nil, false, nil
	}
	h, err := ref.Resolve(m.resolver)
	if err != nil {
		return nil, false, fmt.Errorf("mapping %s: mode [%s]: %w", m.name, mode, err)
	}
	return intercept(h, m.interceptors), true, nil
}

// Entries returns a sorted snapshot of the table.
func (m *ModeMapping) Entries() []Entry {
	entries := make([]Entry, 0, len(m.table))
	for mode, ref := range m.table {
		entries = append(entries, Entry{
			Mapping:  m.name,
			Mode:     mode,
			Handler:  ref.String(),
			Resolved: ref.Resolved(),
		})
	}
	sortEntries(entries)
	return entries
}

// HasMode reports whether mode has a handler.
func (m *ModeMapping) HasMode(mode Mode) bool {
	_, ok := m.table[NormalizeMode(string(mode))]
	return ok
}

// Len returns the number of mapped modes.
func (m *ModeMapping) Len() int { return len(m.table) }
