// Package middleware holds the HTTP middleware wrapped around the dispatch routes.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// TraceHeader carries the request trace ID in and out.
const TraceHeader = "X-Trace-ID"

// unmatchedRoute labels requests that reached the middleware without a mux route.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request counts, latency and in-flight requests
// per route template.
func MetricsMiddleware(serviceName string, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			sw := wrapStatus(w)
			next.ServeHTTP(sw, r)

			m.RecordHTTPRequest(serviceName, r.Method, routeLabel(r), strconv.Itoa(sw.status), time.Since(start))
		})
	}
}

// routeLabel returns the path template of the matched route. Raw paths are
// never used so proxied or unknown paths cannot grow the label set.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	if tpl, err := route.GetPathRegexp(); err == nil {
		return tpl
	}
	return unmatchedRoute
}

// LoggingMiddleware assigns a trace ID, echoes it in the response and logs
// the finished request.
func LoggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get(TraceHeader)
			if traceID == "" {
				traceID = logger.NewTraceID()
			}
			ctx := logger.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			w.Header().Set(TraceHeader, traceID)

			sw := wrapStatus(w)
			next.ServeHTTP(sw, r)

			log.LogRequest(ctx, r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}

// statusWriter remembers the status a handler sent. Streaming handlers such
// as the proxy kind need Flush to reach the underlying writer.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapStatus(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// Flush sends buffered data to the client when the wrapped writer supports it.
func (sw *statusWriter) Flush() {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
