// Package handler provides the named handler container that dispatch
// mappings resolve handler references against.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	// ErrHandlerNotFound is returned when a name has no registration.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrHandlerExists is returned when a name is registered twice.
	ErrHandlerExists = errors.New("handler already registered")
)

// Scope controls how often a factory is invoked.
type Scope int

const (
	// ScopeSingleton handlers are created once and shared.
	ScopeSingleton Scope = iota
	// ScopePrototype handlers are created on every Get.
	ScopePrototype
)

func (s Scope) String() string {
	switch s {
	case ScopeSingleton:
		return "singleton"
	case ScopePrototype:
		return "prototype"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope maps a configuration string to a Scope. Empty means singleton.
func ParseScope(raw string) (Scope, error) {
	switch raw {
	case "", "singleton":
		return ScopeSingleton, nil
	case "prototype":
		return ScopePrototype, nil
	default:
		return 0, fmt.Errorf("unknown handler scope %q", raw)
	}
}

// Factory creates a handler instance.
type Factory func() (http.Handler, error)

// Resolver is the read side of the container used by mappings.
type Resolver interface {
	IsSingleton(name string) (bool, error)
	Get(name string) (http.Handler, error)
}

type entry struct {
	scope    Scope
	factory  Factory
	instance http.Handler
}

// Registry holds named handler factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty container.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a named factory.
func (r *Registry) Register(name string, scope Scope, factory Factory) error {
	if name == "" {
		return errors.New("handler name is required")
	}
	if factory == nil {
		return fmt.Errorf("handler %q: factory is required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerExists, name)
	}
	r.entries[name] = &entry{scope: scope, factory: factory}
	return nil
}

// RegisterInstance adds an already constructed singleton.
func (r *Registry) RegisterInstance(name string, h http.Handler) error {
	if h == nil {
		return fmt.Errorf("handler %q: instance is required", name)
	}
	if err := r.Register(name, ScopeSingleton, func() (http.Handler, error) { return h, nil }); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[name].instance = h
	r.mu.Unlock()
	return nil
}

// IsSingleton reports whether name is registered with singleton scope.
func (r *Registry) IsSingleton(name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrHandlerNotFound, name)
	}
	return e.scope == ScopeSingleton, nil
}

// Get returns the handler registered under name, creating it when needed.
func (r *Registry) Get(name string) (http.Handler, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var instance http.Handler
	if ok {
		instance = e.instance
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandlerNotFound, name)
	}
	if instance != nil {
		return instance, nil
	}
	if e.scope == ScopePrototype {
		return r.create(name, e.factory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another goroutine may have won the race
	if e.instance != nil {
		return e.instance, nil
	}
	h, err := r.create(name, e.factory)
	if err != nil {
		return nil, err
	}
	e.instance = h
	return h, nil
}

func (r *Registry) create(name string, factory Factory) (http.Handler, error) {
	h, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create handler %q: %w", name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("create handler %q: factory returned nil", name)
	}
	return h, nil
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
