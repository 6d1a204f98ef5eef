// Package config loads process settings and handler mapping definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds process level settings read from the environment.
type Config struct {
	ListenAddr      string        `env:"LISTEN_ADDR,default=:8080"`
	DispatchPath    string        `env:"DISPATCH_PATH,default=/dispatch"`
	MappingFile     string        `env:"MAPPING_FILE,default=config/mappings.yaml"`
	ModeHeader      string        `env:"MODE_HEADER,default=X-Mode"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	DatabaseURL  string `env:"DATABASE_URL"`
	MappingTable string `env:"MAPPING_TABLE,default=handler_mappings"`
	EnsureSchema bool   `env:"ENSURE_SCHEMA,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	RateLimitRPS     int    `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst   int    `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitPerMode bool   `env:"RATE_LIMIT_PER_MODE,default=false"`
	CORSOrigins      string `env:"CORS_ALLOWED_ORIGINS"`
}

// Load reads an optional dotenv file and decodes the environment.
// A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if !strings.HasPrefix(c.DispatchPath, "/") {
		return fmt.Errorf("DISPATCH_PATH %q must start with /", c.DispatchPath)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %d", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	return splitAndTrimCSV(c.CORSOrigins)
}

func splitAndTrimCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
