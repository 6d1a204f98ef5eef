package handler

import (
	"fmt"
	"net/http"
)

// Ref points at a handler either by container name or by instance.
// A Ref with both set has had its name resolved eagerly.
type Ref struct {
	Name    string
	Handler http.Handler
}

// Named returns a reference to a container entry.
func Named(name string) Ref {
	return Ref{Name: name}
}

// Instance returns a reference to a concrete handler.
func Instance(h http.Handler) Ref {
	return Ref{Handler: h}
}

// IsZero reports whether the reference points at nothing.
func (r Ref) IsZero() bool {
	return r.Name == "" && r.Handler == nil
}

// Resolved reports whether the reference carries a usable instance.
func (r Ref) Resolved() bool {
	return r.Handler != nil
}

// Resolve returns the handler, looking the name up in res when needed.
func (r Ref) Resolve(res Resolver) (http.Handler, error) {
	if r.Handler != nil {
		return r.Handler, nil
	}
	if r.Name == "" {
		return nil, fmt.Errorf("empty handler reference")
	}
	if res == nil {
		return nil, fmt.Errorf("handler %q: no container configured", r.Name)
	}
	return res.Get(r.Name)
}

func (r Ref) String() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Handler != nil:
		return fmt.Sprintf("%T", r.Handler)
	default:
		return "<none>"
	}
}
