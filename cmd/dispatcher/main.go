// Package main runs the mode/parameter dispatch service.
//
// Mappings are read from MAPPING_FILE and, when DATABASE_URL is set, from
// the MAPPING_TABLE table in PostgreSQL. A key defined by both sources
// stops startup.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dispatch_layer/internal/app"
	"github.com/R3E-Network/dispatch_layer/internal/app/httpapi"
	"github.com/R3E-Network/dispatch_layer/internal/config"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/internal/middleware"
	"github.com/R3E-Network/dispatch_layer/internal/storage/postgres"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		logger.NewDefault("dispatcher").WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New("dispatcher", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	file, err := config.LoadMappingFile(cfg.MappingFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load mapping file")
	}

	var extra []config.Source
	if cfg.DatabaseURL != "" {
		src, err := loadDatabaseSource(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("Failed to load mappings from database")
		}
		log.WithField("source", src.Name).WithField("entries", src.Len()).Info("Loaded database mappings")
		extra = append(extra, src)
	} else {
		log.Info("DATABASE_URL not set; using mapping file only")
	}

	m := metrics.New()
	application, err := app.New(file, extra, app.Options{
		ModeHeader: cfg.ModeHeader,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to build dispatch table")
	}

	mw := []mux.MiddlewareFunc{
		middleware.LoggingMiddleware(log),
		middleware.MetricsMiddleware("dispatcher", m),
	}
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		mw = append(mw, middleware.NewCORSMiddleware(origins, cfg.ModeHeader).Handler)
	}
	cleanupStop := make(chan struct{})
	defer close(cleanupStop)
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
		if cfg.RateLimitPerMode {
			limiter.WithKey(middleware.ClientModeKey(application.ModeResolver, application.Chain.HasMode))
		}
		limiter.StartCleanup(time.Minute, cleanupStop)
		mw = append(mw, limiter.Handler)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpapi.NewHandler(application, httpapi.Config{DispatchPath: cfg.DispatchPath, Middleware: mw}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).WithField("path", cfg.DispatchPath).Info("Dispatcher listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Shutdown error")
		os.Exit(1)
	}
	log.Info("Dispatcher stopped")
}

func loadDatabaseSource(ctx context.Context, cfg *config.Config) (config.Source, error) {
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := postgres.Open(openCtx, cfg.DatabaseURL)
	if err != nil {
		return config.Source{}, err
	}
	defer db.Close()

	store, err := postgres.New(db, cfg.MappingTable)
	if err != nil {
		return config.Source{}, err
	}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(openCtx); err != nil {
			return config.Source{}, err
		}
	}
	return store.LoadSource(openCtx)
}
