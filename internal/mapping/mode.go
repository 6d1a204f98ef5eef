// Package mapping maps incoming requests to handlers by request mode and
// a request parameter value.
//
// The central type is ModeParameterMapping, a two-level table built once
// by a Builder and read without locks afterwards. ModeMapping provides
// per-mode fallbacks and Chain combines mappings in order.
package mapping

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Mode is a coarse request classification such as "view" or "edit".
type Mode string

// Well-known modes.
const (
	ModeView Mode = "view"
	ModeEdit Mode = "edit"
	ModeHelp Mode = "help"
)

// NormalizeMode trims and lower-cases a raw mode name.
func NormalizeMode(raw string) Mode {
	return Mode(strings.ToLower(strings.TrimSpace(raw)))
}

func (m Mode) String() string { return string(m) }

type modeKey struct{}

// WithMode stores mode, normalized, in ctx.
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, NormalizeMode(string(mode)))
}

// ModeFromContext returns the mode stored by WithMode.
func ModeFromContext(ctx context.Context) (Mode, bool) {
	mode, ok := ctx.Value(modeKey{}).(Mode)
	return mode, ok && mode != ""
}

// ModeResolver extracts the mode of a request.
type ModeResolver interface {
	ResolveMode(r *http.Request) (Mode, bool)
}

// ModeResolverFunc adapts a function to ModeResolver.
type ModeResolverFunc func(r *http.Request) (Mode, bool)

func (f ModeResolverFunc) ResolveMode(r *http.Request) (Mode, bool) { return f(r) }

// PathMode reads the mode from a gorilla/mux route variable.
func PathMode(variable string) ModeResolver {
	return ModeResolverFunc(func(r *http.Request) (Mode, bool) {
		return nonEmpty(mux.Vars(r)[variable])
	})
}

// QueryMode reads the mode from a query string parameter.
func QueryMode(name string) ModeResolver {
	return ModeResolverFunc(func(r *http.Request) (Mode, bool) {
		return nonEmpty(r.URL.Query().Get(name))
	})
}

// HeaderMode reads the mode from a request header.
func HeaderMode(name string) ModeResolver {
	return ModeResolverFunc(func(r *http.Request) (Mode, bool) {
		return nonEmpty(r.Header.Get(name))
	})
}

// FirstMode tries each resolver in turn and falls back to def.
// An empty def means no fallback.
func FirstMode(def Mode, resolvers ...ModeResolver) ModeResolver {
	return ModeResolverFunc(func(r *http.Request) (Mode, bool) {
		for _, res := range resolvers {
			if mode, ok := res.ResolveMode(r); ok {
				return mode, true
			}
		}
		return nonEmpty(string(def))
	})
}

// DefaultModeResolver checks the "mode" route variable, the "mode" query
// parameter and the X-Mode header, then falls back to view.
var DefaultModeResolver = FirstMode(ModeView, PathMode("mode"), QueryMode("mode"), HeaderMode("X-Mode"))

// ModeOf returns the mode stored in the request context, or asks res.
func ModeOf(r *http.Request, res ModeResolver) (Mode, bool) {
	if mode, ok := ModeFromContext(r.Context()); ok {
		return mode, true
	}
	if res == nil {
		res = DefaultModeResolver
	}
	return res.ResolveMode(r)
}

func nonEmpty(raw string) (Mode, bool) {
	mode := NormalizeMode(raw)
	return mode, mode != ""
}
