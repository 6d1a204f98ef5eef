package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/dispatch_layer/internal/config"
	"github.com/R3E-Network/dispatch_layer/internal/handler"
	"github.com/R3E-Network/dispatch_layer/internal/mapping"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

const testMappings = `
handlers:
  addItem: {kind: static, status: 201, body: added}
  editItem: {kind: static, body: edited}
  prefs: {kind: static, body: prefs}
  home: {kind: static, body: home}
  lost: {kind: static, status: 404, body: lost}
modes:
  view:
    add: addItem
  edit:
    edit: editItem
defaults:
  view: home
default_handler: lost
`

func parse(t *testing.T, doc string) *config.MappingFile {
	t.Helper()
	file, err := config.ParseMappingFile([]byte(doc))
	require.NoError(t, err)
	return file
}

func newApp(t *testing.T, doc string, extra ...config.Source) (*Application, error) {
	t.Helper()
	return New(parse(t, doc), extra, Options{Logger: logger.NewDiscard(), Metrics: metrics.New()})
}

func serve(a *Application, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Dispatcher.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNew(t *testing.T) {
	a, err := newApp(t, testMappings)
	require.NoError(t, err)

	assert.Equal(t, 5, a.Registry.Len())
	assert.Equal(t, 2, a.Params.Len())
	assert.Equal(t, 1, a.Modes.Len())
	assert.Equal(t, mapping.DefaultParameterName, a.Params.ParameterName())
	assert.Equal(t, []string{"file"}, a.Sources())

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/dispatch?action=add", http.StatusCreated, "added"},
		{"/dispatch?mode=EDIT&action=edit", http.StatusOK, "edited"},
		{"/dispatch?action=unknown", http.StatusOK, "home"},
		{"/dispatch?mode=edit&action=add", http.StatusNotFound, "lost"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(a, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestNew_ExtraSources(t *testing.T) {
	extra := config.Source{
		Name:       "postgres:handler_mappings",
		Parameters: map[string]map[string]string{"help": {"prefs": "prefs"}},
		Defaults:   map[string]string{"edit": "editItem"},
	}
	a, err := newApp(t, testMappings, extra)
	require.NoError(t, err)

	assert.Equal(t, 3, a.Params.Len())
	assert.Equal(t, 2, a.Modes.Len())
	assert.Equal(t, "prefs", serve(a, "/dispatch?mode=help&action=prefs").Body.String())
	assert.Equal(t, "edited", serve(a, "/dispatch?mode=edit&action=nope").Body.String())
}

func TestNew_Conflicts(t *testing.T) {
	t.Run("same key in two sources", func(t *testing.T) {
		_, err := newApp(t, testMappings, config.Source{
			Name:       "db",
			Parameters: map[string]map[string]string{"view": {"add": "editItem"}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, mapping.ErrDuplicateMapping)
		assert.Contains(t, err.Error(), "source db")
	})

	t.Run("parameter reused in another mode", func(t *testing.T) {
		_, err := newApp(t, testMappings, config.Source{
			Name:       "db",
			Parameters: map[string]map[string]string{"help": {"add": "addItem"}},
		})
		assert.ErrorIs(t, err, mapping.ErrDuplicateParameter)
	})

	t.Run("reuse allowed", func(t *testing.T) {
		doc := "allow_duplicate_parameters: true\n" + testMappings
		a, err := newApp(t, doc, config.Source{
			Name:       "db",
			Parameters: map[string]map[string]string{"help": {"add": "prefs"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "prefs", serve(a, "/dispatch?mode=help&action=add").Body.String())
	})

	t.Run("duplicate mode default", func(t *testing.T) {
		_, err := newApp(t, testMappings, config.Source{Name: "db", Defaults: map[string]string{"view": "prefs"}})
		assert.ErrorIs(t, err, mapping.ErrDuplicateMapping)
	})
}

func TestNew_UnknownHandler(t *testing.T) {
	doc := strings.Replace(testMappings, "add: addItem", "add: nowhere", 1)

	_, err := newApp(t, doc)
	assert.ErrorIs(t, err, handler.ErrHandlerNotFound)

	a, err := newApp(t, "lazy_init_handlers: true\n"+doc)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, serve(a, "/dispatch?action=add").Code)
}

func TestNew_UnknownDefaultHandler(t *testing.T) {
	doc := strings.Replace(testMappings, "default_handler: lost", "default_handler: gone", 1)
	_, err := newApp(t, doc)
	assert.ErrorIs(t, err, handler.ErrHandlerNotFound)
}

func TestNew_JSONParameterSource(t *testing.T) {
	doc := "parameter_source: json\njson_path: request.op\n" + testMappings
	a, err := newApp(t, doc)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(`{"request":{"op":"add"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Dispatcher.ServeHTTP(rec, req)
	assert.Equal(t, "added", rec.Body.String())
}

func TestNew_NilFile(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)
}
