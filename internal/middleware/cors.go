package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware answers cross-origin requests for the dispatch routes.
type CORSMiddleware struct {
	origins      []string
	suffixes     []string
	allowAll     bool
	allowHeaders string
}

// NewCORSMiddleware allows the given origins. "*" allows any origin and an
// entry starting with "." allows every subdomain of it. extraHeaders are
// accepted request headers, such as the mode header.
func NewCORSMiddleware(allowedOrigins []string, extraHeaders ...string) *CORSMiddleware {
	m := &CORSMiddleware{}
	for _, origin := range allowedOrigins {
		switch {
		case origin == "*":
			m.allowAll = true
		case strings.HasPrefix(origin, "."):
			m.suffixes = append(m.suffixes, origin)
		default:
			m.origins = append(m.origins, origin)
		}
	}

	headers := []string{"Content-Type", TraceHeader}
	for _, h := range extraHeaders {
		if h = http.CanonicalHeaderKey(strings.TrimSpace(h)); h != "" {
			headers = append(headers, h)
		}
	}
	m.allowHeaders = strings.Join(headers, ", ")
	return m
}

// Handler sets CORS headers and short-circuits preflight requests.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && m.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", m.allowHeaders)
			h.Set("Access-Control-Expose-Headers", TraceHeader)
			h.Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allowed(origin string) bool {
	if m.allowAll {
		return true
	}
	for _, o := range m.origins {
		if o == origin {
			return true
		}
	}
	for _, s := range m.suffixes {
		if strings.HasSuffix(origin, s) {
			return true
		}
	}
	return false
}
