package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMappings = `
parameter_name: action
allow_duplicate_parameters: false
handlers:
  addItem:
    kind: static
    body: added
  editItem:
    kind: static
    body: edited
  preferences:
    kind: redirect
    location: /prefs
  viewHome:
    kind: static
    body: home
modes:
  view:
    add: addItem
    edit: editItem
  edit:
    prefs: preferences
  help: ~
defaults:
  view: viewHome
default_handler: viewHome
`

func TestParseMappingFile(t *testing.T) {
	f, err := ParseMappingFile([]byte(sampleMappings))
	require.NoError(t, err)

	assert.Equal(t, "action", f.ParameterName)
	assert.Len(t, f.Handlers, 4)
	assert.Equal(t, "viewHome", f.DefaultHandler)

	src, err := f.Source()
	require.NoError(t, err)
	assert.Equal(t, "file", src.Name)
	assert.Equal(t, map[string]map[string]string{
		"view": {"add": "addItem", "edit": "editItem"},
		"edit": {"prefs": "preferences"},
	}, src.Parameters)
	assert.Equal(t, map[string]string{"view": "viewHome"}, src.Defaults)
	assert.Equal(t, 4, src.Len())
}

func TestParseMappingFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{"mode value not a map", "modes:\n  view: addItem\n", "must be a map of parameters to handlers"},
		{"mode value is a list", "modes:\n  view: [a, b]\n", "must be a map of parameters to handlers"},
		{"blank handler", "modes:\n  view:\n    add: \"\"\n", "handler name is required"},
		{"unknown handler kind", "handlers:\n  x:\n    kind: lambda\n", "unknown handler kind"},
		{"bad scope", "handlers:\n  x:\n    kind: static\n    scope: request\n", "unknown handler scope"},
		{"unknown parameter source", "parameter_source: cookie\n", "unknown parameter_source"},
		{"blank parameter name", "parameter_name: \"  \"\n", "parameter_name"},
		{"not yaml", "modes: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMappingFile([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadMappingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleMappings), 0o600))

	f, err := LoadMappingFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Modes, 3)

	_, err = LoadMappingFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMappingFile_Shipped(t *testing.T) {
	f, err := LoadMappingFile(filepath.Join("..", "..", "config", "mappings.yaml"))
	require.NoError(t, err)

	src, err := f.Source()
	require.NoError(t, err)
	assert.Equal(t, "action", f.ParameterName)
	assert.Equal(t, "notFound", f.DefaultHandler)
	assert.Equal(t, map[string]string{"add": "itemsAdd", "edit": "itemsEdit"}, src.Parameters["view"])
	assert.NotContains(t, src.Parameters, "help")
	assert.Equal(t, 5, src.Len())
}
