// Package dispatch serves HTTP requests through a mapping chain.
package dispatch

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/R3E-Network/dispatch_layer/internal/mapping"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// Dispatcher resolves the request mode once, stores it in the request
// context and serves the handler the chain selects.
type Dispatcher struct {
	chain     *mapping.Chain
	modes     mapping.ModeResolver
	listeners []Listener
	log       *logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithModeResolver overrides mapping.DefaultModeResolver.
func WithModeResolver(res mapping.ModeResolver) Option {
	return func(d *Dispatcher) { d.modes = res }
}

// WithListeners registers lifecycle listeners, called in order.
func WithListeners(ls ...Listener) Option {
	return func(d *Dispatcher) { d.listeners = append(d.listeners, ls...) }
}

// WithLogger sets the dispatcher logger.
func WithLogger(log *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New creates a dispatcher over chain.
func New(chain *mapping.Chain, opts ...Option) *Dispatcher {
	d := &Dispatcher{chain: chain, modes: mapping.DefaultModeResolver}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.NewDefault("dispatch")
	}
	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mode, ok := mapping.ModeOf(r, d.modes)
	if ok {
		r = r.WithContext(mapping.WithMode(r.Context(), mode))
	}

	for _, l := range d.listeners {
		l.RequestSubmitted(r, mode)
	}

	match, found, err := d.chain.Resolve(r)
	if err != nil {
		d.log.WithContext(r.Context()).WithField("mode", mode).WithError(err).Error("handler resolution failed")
		for _, l := range d.listeners {
			l.ResolutionFailed(r, mode, err)
		}
		writeError(w, http.StatusInternalServerError, "handler unavailable", mode)
		return
	}
	if !found {
		for _, l := range d.listeners {
			l.NoHandler(r, mode)
		}
		writeError(w, http.StatusNotFound, "no handler found", mode)
		return
	}

	for _, l := range d.listeners {
		l.HandlerResolved(r, mode, match)
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	match.Handler.ServeHTTP(rec, r)
	elapsed := time.Since(start)

	for _, l := range d.listeners {
		l.RequestProcessed(r, mode, match, rec.status, elapsed)
	}
}

type errorBody struct {
	Error string       `json:"error"`
	Mode  mapping.Mode `json:"mode,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, mode mapping.Mode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Mode: mode})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Flush lets streaming handlers such as reverse proxies flush through.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
