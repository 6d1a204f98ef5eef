package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/dispatch_layer/internal/handler"
)

// Parameter source names accepted in mapping files.
const (
	ParameterSourceForm = "form"
	ParameterSourceJSON = "json"
)

// Source is a set of mapping definitions by handler name.
type Source struct {
	// Name identifies where the definitions came from.
	Name string
	// Parameters maps mode -> parameter value -> handler name.
	Parameters map[string]map[string]string
	// Defaults maps mode -> handler name.
	Defaults map[string]string
}

// Len returns the number of definitions in s.
func (s Source) Len() int {
	n := len(s.Defaults)
	for _, params := range s.Parameters {
		n += len(params)
	}
	return n
}

// MappingFile is the YAML mapping definition.
//
//	parameter_name: action
//	handlers:
//	  addItem: {kind: proxy, target: "http://items:8080"}
//	modes:
//	  view:
//	    add: addItem
//	defaults:
//	  view: viewHome
//	default_handler: notFound
type MappingFile struct {
	ParameterName            string                  `yaml:"parameter_name"`
	AllowDuplicateParameters bool                    `yaml:"allow_duplicate_parameters"`
	LazyInitHandlers         bool                    `yaml:"lazy_init_handlers"`
	ParameterSource          string                  `yaml:"parameter_source"`
	JSONPath                 string                  `yaml:"json_path"`
	Handlers                 map[string]handler.Spec `yaml:"handlers"`
	Modes                    map[string]yaml.Node    `yaml:"modes"`
	Defaults                 map[string]string       `yaml:"defaults"`
	DefaultHandler           string                  `yaml:"default_handler"`
}

// LoadMappingFile reads and validates a YAML mapping file.
func LoadMappingFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	f, err := ParseMappingFile(data)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return f, nil
}

// ParseMappingFile decodes and validates YAML mapping definitions.
func ParseMappingFile(data []byte) (*MappingFile, error) {
	var f MappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file without building anything.
func (f *MappingFile) Validate() error {
	if f.ParameterName != "" && strings.TrimSpace(f.ParameterName) == "" {
		return fmt.Errorf("parameter_name must not be blank")
	}
	switch strings.ToLower(f.ParameterSource) {
	case "", ParameterSourceForm, ParameterSourceJSON:
	default:
		return fmt.Errorf("unknown parameter_source %q", f.ParameterSource)
	}
	for name, spec := range f.Handlers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("handler names must not be blank")
		}
		if _, err := handler.FactoryFor(spec); err != nil {
			return fmt.Errorf("handler %q: %w", name, err)
		}
		if _, err := handler.ParseScope(spec.Scope); err != nil {
			return fmt.Errorf("handler %q: %w", name, err)
		}
	}
	_, err := f.Source()
	return err
}

// Source converts the mode tables of the file into a Source. A mode whose
// value is null is skipped; any other non-mapping value is an error.
func (f *MappingFile) Source() (Source, error) {
	src := Source{
		Name:       "file",
		Parameters: make(map[string]map[string]string, len(f.Modes)),
		Defaults:   make(map[string]string, len(f.Defaults)),
	}

	modes := make([]string, 0, len(f.Modes))
	for mode := range f.Modes {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	for _, mode := range modes {
		node := f.Modes[mode]
		if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
			continue
		}
		if node.Kind != yaml.MappingNode {
			return Source{}, fmt.Errorf("the value for mode %q must be a map of parameters to handlers", mode)
		}
		var params map[string]string
		if err := node.Decode(&params); err != nil {
			return Source{}, fmt.Errorf("mode %q: %w", mode, err)
		}
		for p, h := range params {
			if strings.TrimSpace(h) == "" {
				return Source{}, fmt.Errorf("mode %q parameter %q: handler name is required", mode, p)
			}
		}
		src.Parameters[mode] = params
	}

	for mode, h := range f.Defaults {
		if strings.TrimSpace(h) == "" {
			return Source{}, fmt.Errorf("default for mode %q: handler name is required", mode)
		}
		src.Defaults[mode] = h
	}
	return src, nil
}
