// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrUnknownHandler is returned by MockResolver for names it does not hold.
var ErrUnknownHandler = errors.New("unknown handler")

type mockEntry struct {
	handler   http.Handler
	singleton bool
}

// MockResolver is an in-memory handler container that counts lookups.
// It satisfies handler.Resolver.
type MockResolver struct {
	mu      sync.RWMutex
	entries map[string]mockEntry
	gets    map[string]int
}

// NewMockResolver creates an empty resolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{
		entries: make(map[string]mockEntry),
		gets:    make(map[string]int),
	}
}

// AddSingleton registers h under name as a singleton.
func (m *MockResolver) AddSingleton(name string, h http.Handler) *MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = mockEntry{handler: h, singleton: true}
	return m
}

// AddPrototype registers h under name as a prototype.
func (m *MockResolver) AddPrototype(name string, h http.Handler) *MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = mockEntry{handler: h}
	return m
}

// IsSingleton reports the scope of name.
func (m *MockResolver) IsSingleton(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	return e.singleton, nil
}

// Get returns the handler for name and records the call.
func (m *MockResolver) Get(name string) (http.Handler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	m.gets[name]++
	return e.handler, nil
}

// Gets returns how many times Get succeeded for name.
func (m *MockResolver) Gets(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[name]
}

// RecordingHandler writes Body and remembers the requests it served.
type RecordingHandler struct {
	Status int
	Body   string

	mu       sync.Mutex
	requests []*http.Request
}

func (h *RecordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r)
	h.mu.Unlock()

	if h.Status != 0 {
		w.WriteHeader(h.Status)
	}
	_, _ = w.Write([]byte(h.Body))
}

// Calls returns the number of served requests.
func (h *RecordingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

// Last returns the most recent request, or nil.
func (h *RecordingHandler) Last() *http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}
