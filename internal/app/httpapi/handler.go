// Package httpapi exposes the dispatcher and its operational endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/dispatch_layer/internal/app"
	"github.com/R3E-Network/dispatch_layer/internal/mapping"
)

// Config controls where the dispatcher is mounted and which middleware
// wraps every route.
type Config struct {
	// DispatchPath is the prefix served by the dispatcher. The mode may also
	// be given as the next path segment: DispatchPath/{mode}.
	DispatchPath string
	// Middleware runs in order, first is outermost.
	Middleware []mux.MiddlewareFunc
}

type handler struct {
	app *app.Application
}

type mappingsResponse struct {
	Sources        []string        `json:"sources"`
	ParameterName  string          `json:"parameter_name"`
	Mappings       []mappingInfo   `json:"mappings"`
	Entries        []mapping.Entry `json:"entries"`
	DefaultHandler bool            `json:"default_handler"`
}

type mappingInfo struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// NewHandler returns a router serving the dispatcher, /healthz, /metrics
// and /mappings.
func NewHandler(application *app.Application, cfg Config) http.Handler {
	h := &handler{app: application}

	path := "/" + strings.Trim(cfg.DispatchPath, "/")
	if path == "/" {
		path = "/dispatch"
	}

	r := mux.NewRouter()
	r.Use(cfg.Middleware...)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/mappings", h.mappings).Methods(http.MethodGet)

	r.Handle(path+"/{mode}", application.Dispatcher)
	r.Handle(path, application.Dispatcher)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"handlers": h.app.Registry.Len(),
		"entries":  h.app.Params.Len() + h.app.Modes.Len(),
	})
}

func (h *handler) mappings(w http.ResponseWriter, _ *http.Request) {
	resp := mappingsResponse{
		Sources:        h.app.Sources(),
		ParameterName:  h.app.Params.ParameterName(),
		Entries:        h.app.Chain.Entries(),
		DefaultHandler: h.app.Chain.HasDefault(),
	}
	for _, m := range h.app.Chain.Mappings() {
		resp.Mappings = append(resp.Mappings, mappingInfo{Name: m.Name(), Order: m.Order()})
	}
	if resp.Entries == nil {
		resp.Entries = []mapping.Entry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
