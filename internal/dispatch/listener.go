package dispatch

import (
	"net/http"
	"time"

	"github.com/R3E-Network/dispatch_layer/internal/mapping"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// Listener observes the dispatch of a request.
type Listener interface {
	// RequestSubmitted is called before any mapping is consulted.
	RequestSubmitted(r *http.Request, mode mapping.Mode)
	// HandlerResolved is called once a handler was found.
	HandlerResolved(r *http.Request, mode mapping.Mode, match mapping.Match)
	// NoHandler is called when no mapping and no default matched.
	NoHandler(r *http.Request, mode mapping.Mode)
	// ResolutionFailed is called when a mapping returned an error.
	ResolutionFailed(r *http.Request, mode mapping.Mode, err error)
	// RequestProcessed is called after the handler returned.
	RequestProcessed(r *http.Request, mode mapping.Mode, match mapping.Match, status int, elapsed time.Duration)
}

// ListenerAdapter implements Listener with no-ops. Embed it to override
// only the callbacks of interest.
type ListenerAdapter struct{}

var _ Listener = ListenerAdapter{}

func (ListenerAdapter) RequestSubmitted(*http.Request, mapping.Mode) {}

func (ListenerAdapter) HandlerResolved(*http.Request, mapping.Mode, mapping.Match) {}

func (ListenerAdapter) NoHandler(*http.Request, mapping.Mode) {}

func (ListenerAdapter) ResolutionFailed(*http.Request, mapping.Mode, error) {}

func (ListenerAdapter) RequestProcessed(*http.Request, mapping.Mode, mapping.Match, int, time.Duration) {
}

// LoggingListener logs dispatch decisions.
type LoggingListener struct {
	ListenerAdapter
	Log *logger.Logger
}

func (l LoggingListener) HandlerResolved(r *http.Request, mode mapping.Mode, match mapping.Match) {
	l.Log.WithContext(r.Context()).
		WithField("mode", mode).
		WithField("mapping", match.Mapping).
		WithField("default", match.Default).
		Debug("handler resolved")
}

func (l LoggingListener) NoHandler(r *http.Request, mode mapping.Mode) {
	l.Log.WithContext(r.Context()).
		WithField("mode", mode).
		WithField("path", r.URL.Path).
		Info("no handler found")
}

// MetricsListener records dispatch outcomes. Modes come from the client,
// so only modes Known accepts are used as labels; the rest are recorded
// as metrics.OtherMode. A nil Known labels every mode as other.
type MetricsListener struct {
	ListenerAdapter
	Metrics *metrics.Metrics
	Known   func(mapping.Mode) bool
}

func (l MetricsListener) label(mode mapping.Mode) string {
	if mode == "" {
		return ""
	}
	if l.Known == nil || !l.Known(mode) {
		return metrics.OtherMode
	}
	return string(mode)
}

func (l MetricsListener) HandlerResolved(_ *http.Request, mode mapping.Mode, match mapping.Match) {
	outcome := metrics.OutcomeMatched
	if match.Default {
		outcome = metrics.OutcomeDefault
	}
	l.Metrics.RecordDispatch(l.label(mode), match.Mapping, outcome)
}

func (l MetricsListener) NoHandler(_ *http.Request, mode mapping.Mode) {
	l.Metrics.RecordDispatch(l.label(mode), "", metrics.OutcomeNoHandler)
}

func (l MetricsListener) ResolutionFailed(_ *http.Request, mode mapping.Mode, _ error) {
	l.Metrics.RecordDispatch(l.label(mode), "", metrics.OutcomeError)
}

func (l MetricsListener) RequestProcessed(_ *http.Request, mode mapping.Mode, match mapping.Match, _ int, elapsed time.Duration) {
	l.Metrics.RecordHandlerDuration(l.label(mode), match.Mapping, elapsed)
}
