// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chainsight/core/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Upstream intelligence services. Primary is tried first; Secondary
	// (if set) provides the fallback routes for every capability.
	PrimaryUpstream   string
	SecondaryUpstream string

	// Fetch behavior
	FetchTimeout   time.Duration // per-candidate request timeout
	MaxGraphDepth  int           // cap on subgraph traversal hops
	BreakerWindow  time.Duration // how long a tripped endpoint stays open
	BreakerTrips   int           // consecutive failures before tripping
	RateLimitRPM   int
	AllowedOrigins []string

	// Layout
	CanvasWidth  float64
	CanvasHeight float64
	ForceLayout  bool // enable the force-directed solver

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultPrimaryUpstream = "http://localhost:5000"
	DefaultFetchTimeout    = 4 * time.Second
	DefaultMaxGraphDepth   = 4
	DefaultBreakerWindow   = 30 * time.Second
	DefaultBreakerTrips    = 3
	DefaultRateLimit       = 120
	DefaultCanvasWidth     = 1200.0
	DefaultCanvasHeight    = 800.0
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		PrimaryUpstream:   getEnv("PRIMARY_UPSTREAM", DefaultPrimaryUpstream),
		SecondaryUpstream: os.Getenv("SECONDARY_UPSTREAM"), // Optional
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", DefaultFetchTimeout),
		MaxGraphDepth:     int(getEnvInt64("MAX_GRAPH_DEPTH", DefaultMaxGraphDepth)),
		BreakerWindow:     getEnvDuration("BREAKER_WINDOW", DefaultBreakerWindow),
		BreakerTrips:      int(getEnvInt64("BREAKER_TRIPS", DefaultBreakerTrips)),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS"),
		CanvasWidth:       getEnvFloat("CANVAS_WIDTH", DefaultCanvasWidth),
		CanvasHeight:      getEnvFloat("CANVAS_HEIGHT", DefaultCanvasHeight),
		ForceLayout:       getEnvBool("FORCE_LAYOUT", true),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.PrimaryUpstream == "" {
		return fmt.Errorf("PRIMARY_UPSTREAM is required")
	}
	if !strings.HasPrefix(c.PrimaryUpstream, "http://") && !strings.HasPrefix(c.PrimaryUpstream, "https://") {
		return fmt.Errorf("PRIMARY_UPSTREAM must be an http(s) URL")
	}
	if c.SecondaryUpstream != "" &&
		!strings.HasPrefix(c.SecondaryUpstream, "http://") && !strings.HasPrefix(c.SecondaryUpstream, "https://") {
		return fmt.Errorf("SECONDARY_UPSTREAM must be an http(s) URL")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.MaxGraphDepth < 1 || c.MaxGraphDepth > 4 {
		return fmt.Errorf("MAX_GRAPH_DEPTH must be between 1 and 4")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("canvas dimensions must be positive")
	}
	if c.IsProduction() {
		// Local upstreams are normal in development; in production they
		// point the fetcher at infrastructure it should never touch.
		if err := security.ValidateEndpointURL(c.PrimaryUpstream); err != nil {
			return fmt.Errorf("PRIMARY_UPSTREAM: %w", err)
		}
		if c.SecondaryUpstream != "" {
			if err := security.ValidateEndpointURL(c.SecondaryUpstream); err != nil {
				return fmt.Errorf("SECONDARY_UPSTREAM: %w", err)
			}
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
