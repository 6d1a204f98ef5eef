package mapping

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dispatch_layer/internal/handler"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// Options configures a mapping builder.
type Options struct {
	// Name identifies the mapping in logs, metrics and Chain matches.
	Name string
	// Order positions the mapping in a Chain; lower runs first.
	Order int
	// ParameterName is the request parameter holding the dispatch value.
	// Ignored by ModeMapping. Defaults to DefaultParameterName.
	ParameterName string
	// AllowDuplicateParameters permits one parameter value under several
	// modes. When a portal switches the mode on its own, a duplicate value
	// can route the request somewhere the user did not intend.
	AllowDuplicateParameters bool
	// LazyInitHandlers defers resolving named singletons until first use.
	LazyInitHandlers bool

	ModeResolver    ModeResolver
	ParameterSource ParameterSource
	Interceptors    []mux.MiddlewareFunc

	// Resolver is the container named handler references are looked up in.
	Resolver handler.Resolver
	Logger   *logger.Logger
}

func (o Options) withDefaults(name string) Options {
	if o.Name == "" {
		o.Name = name
	}
	if o.ParameterName == "" {
		o.ParameterName = DefaultParameterName
	}
	if o.ModeResolver == nil {
		o.ModeResolver = DefaultModeResolver
	}
	if o.ParameterSource == nil {
		o.ParameterSource = FormParameter
	}
	if o.Logger == nil {
		o.Logger = logger.NewDefault("mapping")
	}
	return o
}

// Table is the configuration shape of a two-level mapping.
type Table map[Mode]map[string]handler.Ref

// Builder accumulates registrations for a ModeParameterMapping.
// It is not safe for concurrent use.
type Builder struct {
	opts   Options
	table  map[Mode]map[string]handler.Ref
	usedBy map[string]Mode
	built  bool
}

// NewBuilder creates a builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:   opts.withDefaults("mode-parameter"),
		table:  make(map[Mode]map[string]handler.Ref),
		usedBy: make(map[string]Mode),
	}
}

// Register maps (mode, parameter) to ref.
func (b *Builder) Register(mode Mode, parameter string, ref handler.Ref) error {
	if b.built {
		return ErrBuilderClosed
	}
	mode = NormalizeMode(string(mode))
	if mode == "" {
		return invalidConfig("mode is required for parameter [%s]", parameter)
	}
	if ref.IsZero() {
		return invalidConfig("no handler given for parameter [%s] in mode [%s]", parameter, mode)
	}

	params := b.table[mode]
	if existing, ok := params[parameter]; ok {
		return &ConflictError{Mode: mode, Parameter: parameter, Handler: ref.String(), Existing: existing.String()}
	}

	log := b.opts.Logger.WithField("mapping", b.opts.Name)

	firstMode, used := b.usedBy[parameter]
	if used {
		if !b.opts.AllowDuplicateParameters {
			return &DuplicateParameterError{Parameter: parameter, Mode: mode, ExistingMode: firstMode}
		}
		log.WithField("parameter", parameter).
			WithField("modes", []Mode{firstMode, mode}).
			Info("duplicate entries for parameter in different modes")
	}

	resolved, err := resolveEagerly(b.opts, ref)
	if err != nil {
		return fmt.Errorf("parameter [%s] in mode [%s]: %w", parameter, mode, err)
	}

	if params == nil {
		params = make(map[string]handler.Ref)
		b.table[mode] = params
	}
	params[parameter] = resolved
	if !used {
		b.usedBy[parameter] = mode
	}

	log.WithField("mode", mode).
		WithField("parameter", parameter).
		WithField("handler", resolved.String()).
		Info("mapped handler")
	return nil
}

// RegisterTable registers every entry of table in sorted order and stops
// at the first failure.
func (b *Builder) RegisterTable(table Table) error {
	if len(table) == 0 {
		b.opts.Logger.WithField("mapping", b.opts.Name).Warn("mode parameter table is empty")
		return nil
	}
	for _, mode := range sortedModes(table) {
		params := table[mode]
		keys := make([]string, 0, len(params))
		for p := range params {
			keys = append(keys, p)
		}
		sort.Strings(keys)
		for _, p := range keys {
			if err := b.Register(mode, p, params[p]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build freezes the registrations into an immutable mapping.
func (b *Builder) Build() (*ModeParameterMapping, error) {
	if b.built {
		return nil, ErrBuilderClosed
	}
	if strings.TrimSpace(b.opts.ParameterName) == "" {
		return nil, invalidConfig("a parameter name is required")
	}
	b.built = true

	table := make(map[Mode]map[string]handler.Ref, len(b.table))
	for mode, params := range b.table {
		cp := make(map[string]handler.Ref, len(params))
		for p, ref := range params {
			cp[p] = ref
		}
		table[mode] = cp
	}

	return &ModeParameterMapping{
		name:          b.opts.Name,
		order:         b.opts.Order,
		parameterName: b.opts.ParameterName,
		modes:         b.opts.ModeResolver,
		params:        b.opts.ParameterSource,
		interceptors:  append([]mux.MiddlewareFunc(nil), b.opts.Interceptors...),
		resolver:      b.opts.Resolver,
		log:           b.opts.Logger,
		table:         table,
	}, nil
}

// ModeParameterMapping dispatches on request mode and then on the value
// of a request parameter. It is immutable and safe for concurrent use.
type ModeParameterMapping struct {
	name          string
	order         int
	parameterName string
	modes         ModeResolver
	params        ParameterSource
	interceptors  []mux.MiddlewareFunc
	resolver      handler.Resolver
	log           *logger.Logger
	table         map[Mode]map[string]handler.Ref
}

var _ HandlerMapping = (*ModeParameterMapping)(nil)

func (m *ModeParameterMapping) Name() string { return m.name }

func (m *ModeParameterMapping) Order() int { return m.order }

// HasMode reports whether any parameter is mapped under mode.
func (m *ModeParameterMapping) HasMode(mode Mode) bool {
	_, ok := m.table[NormalizeMode(string(mode))]
	return ok
}

// ParameterName returns the request parameter used for dispatch.
func (m *ModeParameterMapping) ParameterName() string { return m.parameterName }

// Lookup returns the reference registered for (mode, parameter).
func (m *ModeParameterMapping) Lookup(mode Mode, parameter string) (handler.Ref, bool) {
	ref, ok := m.table[NormalizeMode(string(mode))][parameter]
	return ref, ok
}

// Handler finds the handler for r. A miss is reported as (nil, false, nil);
// an error means a lazily referenced handler could not be created.
func (m *ModeParameterMapping) Handler(r *http.Request) (http.Handler, bool, error) {
	mode, ok := ModeOf(r, m.modes)
	if !ok {
		return nil, false, nil
	}

	params, ok := m.table[mode]
	if !ok {
		m.log.WithContext(r.Context()).WithField("mode", mode).Debug("no handler map present for mode")
		return nil, false, nil
	}

	parameter, ok := m.params.Parameter(r, m.parameterName)
	if !ok {
		return nil, false, nil
	}

	ref, ok := params[parameter]
	m.log.WithContext(r.Context()).
		WithField("mode", mode).
		WithField("parameter", parameter).
		WithField("handler", ref.String()).
		Debug("mode parameter lookup")
	if !ok {
		return nil, false, nil
	}

	h, err := ref.Resolve(m.resolver)
	if err != nil {
		return nil, false, fmt.Errorf("mapping %s: mode [%s] parameter [%s]: %w", m.name, mode, parameter, err)
	}
	return intercept(h, m.interceptors), true, nil
}

// Entries returns a sorted snapshot of the table.
func (m *ModeParameterMapping) Entries() []Entry {
	entries := make([]Entry, 0, m.Len())
	for mode, params := range m.table {
		for p, ref := range params {
			entries = append(entries, Entry{
				Mapping:   m.name,
				Mode:      mode,
				Parameter: p,
				Handler:   ref.String(),
				Resolved:  ref.Resolved(),
			})
		}
	}
	sortEntries(entries)
	return entries
}

// Len returns the number of registered (mode, parameter) pairs.
func (m *ModeParameterMapping) Len() int {
	n := 0
	for _, params := range m.table {
		n += len(params)
	}
	return n
}

// Modes returns the modes that have at least one mapping.
func (m *ModeParameterMapping) Modes() []Mode {
	return sortedModes(m.table)
}

// resolveEagerly swaps a named singleton reference for its instance
// unless lazy initialisation is enabled.
func resolveEagerly(opts Options, ref handler.Ref) (handler.Ref, error) {
	if opts.LazyInitHandlers || ref.Resolved() {
		return ref, nil
	}
	if opts.Resolver == nil {
		return ref, invalidConfig("handler [%s] is referenced by name but no container is configured", ref.Name)
	}
	singleton, err := opts.Resolver.IsSingleton(ref.Name)
	if err != nil {
		return ref, err
	}
	if !singleton {
		return ref, nil
	}
	h, err := opts.Resolver.Get(ref.Name)
	if err != nil {
		return ref, err
	}
	ref.Handler = h
	return ref, nil
}

func sortedModes[V any](m map[Mode]V) []Mode {
	modes := make([]Mode, 0, len(m))
	for mode := range m {
		modes = append(modes, mode)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
