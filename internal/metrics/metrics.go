// Package metrics exposes Prometheus collectors for the dispatch layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatch_layer"

// Dispatch outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeDefault   = "default"
	OutcomeNoHandler = "no_handler"
	OutcomeError     = "error"
)

// OtherMode is the mode label for modes no mapping knows.
const OtherMode = "other"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight     prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	mappingEntries   *prometheus.GaugeVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatched requests by mode, mapping and outcome.",
		}, []string{"mode", "mapping", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in dispatched handlers.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"mode", "mapping"}),
		mappingEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mapping",
			Name:      "entries",
			Help:      "Number of registered entries per mapping.",
		}, []string{"mapping"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.dispatches,
		m.dispatchDuration,
		m.mappingEntries,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordDispatch records how a request was routed.
func (m *Metrics) RecordDispatch(mode, mapping, outcome string) {
	if mode == "" {
		mode = "unknown"
	}
	if mapping == "" {
		mapping = "none"
	}
	m.dispatches.WithLabelValues(mode, mapping, outcome).Inc()
}

// RecordHandlerDuration records the time a dispatched handler took.
func (m *Metrics) RecordHandlerDuration(mode, mapping string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	if mode == "" {
		mode = "unknown"
	}
	if mapping == "" {
		mapping = "none"
	}
	m.dispatchDuration.WithLabelValues(mode, mapping).Observe(duration.Seconds())
}

// SetMappingEntries publishes the size of a mapping.
func (m *Metrics) SetMappingEntries(mapping string, n int) {
	m.mappingEntries.WithLabelValues(mapping).Set(float64(n))
}
