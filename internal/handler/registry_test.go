package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFactory(calls *int32) Factory {
	return func() (http.Handler, error) {
		atomic.AddInt32(calls, 1)
		return &Static{Body: "ok"}, nil
	}
}

func TestRegistry_SingletonCreatedOnce(t *testing.T) {
	reg := NewRegistry()
	var calls int32
	require.NoError(t, reg.Register("home", ScopeSingleton, countingFactory(&calls)))

	first, err := reg.Get("home")
	require.NoError(t, err)
	second, err := reg.Get("home")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegistry_SingletonConcurrentGet(t *testing.T) {
	reg := NewRegistry()
	var calls int32
	require.NoError(t, reg.Register("home", ScopeSingleton, countingFactory(&calls)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Get("home")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegistry_PrototypeCreatedPerGet(t *testing.T) {
	reg := NewRegistry()
	var calls int32
	require.NoError(t, reg.Register("form", ScopePrototype, countingFactory(&calls)))

	first, err := reg.Get("form")
	require.NoError(t, err)
	second, err := reg.Get("form")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	singleton, err := reg.IsSingleton("form")
	require.NoError(t, err)
	assert.False(t, singleton)
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterInstance("home", &Static{}))

	err := reg.RegisterInstance("home", &Static{})
	assert.True(t, errors.Is(err, ErrHandlerExists))
}

func TestRegistry_UnknownName(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("missing")
	assert.True(t, errors.Is(err, ErrHandlerNotFound))

	_, err = reg.IsSingleton("missing")
	assert.True(t, errors.Is(err, ErrHandlerNotFound))
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register("broken", ScopeSingleton, func() (http.Handler, error) { return nil, boom }))

	_, err := reg.Get("broken")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterInstance("b", &Static{}))
	require.NoError(t, reg.RegisterInstance("a", &Static{}))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
}

func TestRegisterSpec(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("upstream " + r.URL.Path))
	}))
	defer upstream.Close()

	reg := NewRegistry()
	require.NoError(t, reg.RegisterSpec("static", Spec{Kind: "static", Status: 201, Body: "created"}))
	require.NoError(t, reg.RegisterSpec("redirect", Spec{Kind: "redirect", Location: "/elsewhere"}))
	require.NoError(t, reg.RegisterSpec("proxy", Spec{Kind: "proxy", Target: upstream.URL, Scope: "prototype"}))

	tests := []struct {
		name     string
		status   int
		contains string
	}{
		{"static", http.StatusCreated, "created"},
		{"redirect", http.StatusFound, ""},
		{"proxy", http.StatusOK, "upstream /items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := reg.Get(tt.name)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestProxyTargetPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.RequestURI()))
	}))
	defer upstream.Close()

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"target path replaces request path", upstream.URL + "/add", "/add?action=add"},
		{"target query is merged", upstream.URL + "/add?v=2", "/add?v=2&action=add"},
		{"bare host keeps request path", upstream.URL, "/dispatch/view?action=add"},
		{"root path keeps request path", upstream.URL + "/", "/dispatch/view?action=add"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := FactoryFor(Spec{Kind: KindProxy, Target: tt.target})
			require.NoError(t, err)
			h, err := factory()
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dispatch/view?action=add", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRegisterSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"unknown kind", Spec{Kind: "lambda"}},
		{"bad scope", Spec{Kind: "static", Scope: "session"}},
		{"bad status", Spec{Kind: "static", Status: 42}},
		{"redirect without location", Spec{Kind: "redirect"}},
		{"redirect non 3xx", Spec{Kind: "redirect", Location: "/x", Status: 200}},
		{"proxy relative", Spec{Kind: "proxy", Target: "/relative"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			assert.Error(t, reg.RegisterSpec("h", tt.spec))
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRef(t *testing.T) {
	reg := NewRegistry()
	h := &Static{Body: "x"}
	require.NoError(t, reg.RegisterInstance("x", h))

	got, err := Named("x").Resolve(reg)
	require.NoError(t, err)
	assert.Same(t, h, got)

	got, err = Instance(h).Resolve(nil)
	require.NoError(t, err)
	assert.Same(t, h, got)

	_, err = Named("x").Resolve(nil)
	assert.Error(t, err)

	assert.True(t, Ref{}.IsZero())
	assert.Equal(t, "x", Named("x").String())
	assert.Equal(t, "*handler.Static", Instance(h).String())
}
