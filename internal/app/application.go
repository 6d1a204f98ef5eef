package app

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/R3E-Network/dispatch_layer/internal/config"
	"github.com/R3E-Network/dispatch_layer/internal/dispatch"
	"github.com/R3E-Network/dispatch_layer/internal/handler"
	"github.com/R3E-Network/dispatch_layer/internal/mapping"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// Mapping names as they appear in logs, metrics and /mappings.
const (
	ParameterMappingName = "mode-parameter"
	ModeMappingName      = "mode"
)

// Options carries the process level dependencies of an Application.
type Options struct {
	// ModeHeader is consulted after the route variable and query parameter.
	ModeHeader string
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// Application is the assembled handler container, mappings and dispatcher.
// Everything is built in New and read-only afterwards.
type Application struct {
	Registry   *handler.Registry
	Params     *mapping.ModeParameterMapping
	Modes      *mapping.ModeMapping
	Chain      *mapping.Chain
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics

	// ModeResolver is the resolver the mappings and dispatcher share.
	ModeResolver mapping.ModeResolver

	log     *logger.Logger
	sources []string
}

// New builds the application from a mapping file and any extra sources.
// Extra sources are registered after the file; a key defined twice fails
// the same way a duplicate inside one file does.
func New(file *config.MappingFile, extra []config.Source, opts Options) (*Application, error) {
	if file == nil {
		return nil, fmt.Errorf("mapping file is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("app")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ModeHeader == "" {
		opts.ModeHeader = "X-Mode"
	}
	log := opts.Logger

	reg, err := buildRegistry(file.Handlers)
	if err != nil {
		return nil, err
	}

	modes := mapping.FirstMode(mapping.ModeView,
		mapping.PathMode("mode"),
		mapping.QueryMode("mode"),
		mapping.HeaderMode(opts.ModeHeader),
	)

	var params mapping.ParameterSource = mapping.FormParameter
	if strings.EqualFold(file.ParameterSource, config.ParameterSourceJSON) {
		params = mapping.JSONBodyParameter(file.JSONPath)
	}

	fileSource, err := file.Source()
	if err != nil {
		return nil, err
	}
	sources := append([]config.Source{fileSource}, extra...)

	pb := mapping.NewBuilder(mapping.Options{
		Name:                     ParameterMappingName,
		Order:                    0,
		ParameterName:            file.ParameterName,
		AllowDuplicateParameters: file.AllowDuplicateParameters,
		LazyInitHandlers:         file.LazyInitHandlers,
		ModeResolver:             modes,
		ParameterSource:          params,
		Resolver:                 reg,
		Logger:                   log,
	})
	mb := mapping.NewModeBuilder(mapping.Options{
		Name:             ModeMappingName,
		Order:            1,
		LazyInitHandlers: file.LazyInitHandlers,
		ModeResolver:     modes,
		Resolver:         reg,
		Logger:           log,
	})

	names := make([]string, 0, len(sources))
	for i, src := range sources {
		if i == 0 || len(src.Parameters) > 0 {
			if err := pb.RegisterTable(toTable(src.Parameters)); err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
		}
		defaults := make(map[mapping.Mode]handler.Ref, len(src.Defaults))
		for mode, name := range src.Defaults {
			defaults[mapping.Mode(mode)] = handler.Named(name)
		}
		if err := mb.RegisterAll(defaults); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		names = append(names, src.Name)
	}

	paramMapping, err := pb.Build()
	if err != nil {
		return nil, err
	}
	modeMapping, err := mb.Build()
	if err != nil {
		return nil, err
	}

	var fallback http.Handler
	if file.DefaultHandler != "" {
		if fallback, err = reg.Get(file.DefaultHandler); err != nil {
			return nil, fmt.Errorf("default_handler: %w", err)
		}
	}

	chain := mapping.NewChain(fallback, paramMapping, modeMapping)
	opts.Metrics.SetMappingEntries(ParameterMappingName, paramMapping.Len())
	opts.Metrics.SetMappingEntries(ModeMappingName, modeMapping.Len())

	d := dispatch.New(chain,
		dispatch.WithModeResolver(modes),
		dispatch.WithLogger(log),
		dispatch.WithListeners(
			dispatch.LoggingListener{Log: log},
			dispatch.MetricsListener{Metrics: opts.Metrics, Known: chain.HasMode},
		),
	)

	log.WithField("handlers", reg.Len()).
		WithField("parameter_mappings", paramMapping.Len()).
		WithField("mode_mappings", modeMapping.Len()).
		WithField("sources", names).
		Info("dispatch table ready")

	return &Application{
		Registry:     reg,
		Params:       paramMapping,
		Modes:        modeMapping,
		Chain:        chain,
		Dispatcher:   d,
		Metrics:      opts.Metrics,
		ModeResolver: modes,
		log:          log,
		sources:      names,
	}, nil
}

// Sources returns the names of the sources the table was built from.
func (a *Application) Sources() []string {
	return append([]string(nil), a.sources...)
}

// Logger returns the application logger.
func (a *Application) Logger() *logger.Logger {
	return a.log
}

func buildRegistry(specs map[string]handler.Spec) (*handler.Registry, error) {
	reg := handler.NewRegistry()
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := reg.RegisterSpec(name, specs[name]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func toTable(params map[string]map[string]string) mapping.Table {
	table := make(mapping.Table, len(params))
	for mode, entries := range params {
		refs := make(map[string]handler.Ref, len(entries))
		for p, name := range entries {
			refs[p] = handler.Named(name)
		}
		table[mapping.Mode(mode)] = refs
	}
	return table
}
