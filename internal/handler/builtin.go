package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Kinds of handlers the service can build from configuration.
const (
	KindStatic   = "static"
	KindRedirect = "redirect"
	KindProxy    = "proxy"
)

// Spec describes a configured handler.
type Spec struct {
	Kind        string            `yaml:"kind" json:"kind"`
	Scope       string            `yaml:"scope,omitempty" json:"scope,omitempty"`
	Status      int               `yaml:"status,omitempty" json:"status,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`
	ContentType string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Location    string            `yaml:"location,omitempty" json:"location,omitempty"`
	Target      string            `yaml:"target,omitempty" json:"target,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// RegisterSpec validates spec and registers the matching factory under name.
func (r *Registry) RegisterSpec(name string, spec Spec) error {
	scope, err := ParseScope(strings.TrimSpace(spec.Scope))
	if err != nil {
		return fmt.Errorf("handler %q: %w", name, err)
	}
	factory, err := FactoryFor(spec)
	if err != nil {
		return fmt.Errorf("handler %q: %w", name, err)
	}
	return r.Register(name, scope, factory)
}

// FactoryFor validates spec and returns a factory for it.
func FactoryFor(spec Spec) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindStatic:
		status := spec.Status
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			return nil, fmt.Errorf("invalid status %d", status)
		}
		return func() (http.Handler, error) {
			return &Static{Status: status, Body: spec.Body, ContentType: spec.ContentType, Headers: spec.Headers}, nil
		}, nil

	case KindRedirect:
		if spec.Location == "" {
			return nil, fmt.Errorf("redirect: location is required")
		}
		status := spec.Status
		if status == 0 {
			status = http.StatusFound
		}
		if status < 300 || status > 399 {
			return nil, fmt.Errorf("redirect: status %d is not a redirect", status)
		}
		return func() (http.Handler, error) {
			return http.RedirectHandler(spec.Location, status), nil
		}, nil

	case KindProxy:
		target, err := url.Parse(spec.Target)
		if err != nil {
			return nil, fmt.Errorf("proxy: parse target: %w", err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("proxy: target %q must be an absolute URL", spec.Target)
		}
		return func() (http.Handler, error) {
			return newProxy(target), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown handler kind %q", spec.Kind)
	}
}

// newProxy forwards to target. A target with a path replaces the request
// path; a bare host keeps it. Query strings of both are merged.
func newProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			if target.Path != "" && target.Path != "/" {
				pr.Out.URL.Path = target.Path
				pr.Out.URL.RawPath = target.RawPath
			}
			pr.SetXForwarded()
		},
	}
}

// Static answers every request with a fixed response.
type Static struct {
	Status      int
	Body        string
	ContentType string
	Headers     map[string]string
}

func (s *Static) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	for k, v := range s.Headers {
		w.Header().Set(k, v)
	}
	contentType := s.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s.Body))
}

// JSON returns a handler that writes v as a JSON document.
func JSON(status int, v any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	})
}
