// Package config provides configuration loading with hot-reload support.
// Files are YAML; environment variables in ${VAR} form are expanded so API
// keys stay out of config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quayside/llmrelay/pkg/types"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Batch     BatchConfig      `yaml:"batch"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Auth      AuthConfig       `yaml:"auth"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ProviderConfig defines a single backend provider.
type ProviderConfig struct {
	Kind     types.Kind        `yaml:"kind"`
	APIKey   string            `yaml:"api_key"`
	BaseURL  string            `yaml:"base_url"`
	Model    string            `yaml:"model"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	PoolSize int               `yaml:"pool_size"` // >1 enables pooled instances
}

// DispatchConfig contains cache, retry, and concurrency settings.
type DispatchConfig struct {
	CacheCapacity  int           `yaml:"cache_capacity"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffUnit    time.Duration `yaml:"backoff_unit"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
}

// BatchConfig contains request batching settings.
type BatchConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig defines inbound rate limiting for the gateway.
// RequestsPerMinute bounds each caller; GlobalRPM bounds the whole
// gateway ahead of the per-key buckets (0 disables the global shed).
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
	GlobalRPM         int  `yaml:"global_rpm"`
}

// AuthConfig lists accepted API keys for gateway mode.
type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKeys []string      `yaml:"api_keys"`
	KeyTTL  time.Duration `yaml:"key_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Dispatch: DispatchConfig{
			CacheCapacity:  1000,
			MaxConcurrency: 8,
			MaxRetries:     3,
			BackoffUnit:    time.Second,
			MaxPoolSize:    10,
		},
		Batch: BatchConfig{
			Enabled: false,
			Size:    5,
			Timeout: 100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Auth: AuthConfig{
			Enabled: false,
			KeyTTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "llmrelay",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in ${VAR} form are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for i, p := range c.Providers {
		if !p.Kind.Valid() {
			return fmt.Errorf("provider[%d]: unknown kind %q", i, p.Kind)
		}
		if p.Kind != types.KindLocal && p.APIKey == "" {
			return fmt.Errorf("provider[%d] %s: api_key is required", i, p.Kind)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider[%d] %s: timeout cannot be negative", i, p.Kind)
		}
		if p.PoolSize < 0 {
			return fmt.Errorf("provider[%d] %s: pool_size cannot be negative", i, p.Kind)
		}
	}

	d := c.Dispatch
	if d.CacheCapacity <= 0 {
		return fmt.Errorf("dispatch.cache_capacity must be positive")
	}
	if d.MaxConcurrency <= 0 {
		return fmt.Errorf("dispatch.max_concurrency must be positive")
	}
	if d.MaxRetries <= 0 {
		return fmt.Errorf("dispatch.max_retries must be positive")
	}
	if d.BackoffUnit <= 0 {
		return fmt.Errorf("dispatch.backoff_unit must be positive")
	}
	if d.MaxPoolSize <= 0 {
		return fmt.Errorf("dispatch.max_pool_size must be positive")
	}

	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be positive")
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("batch.timeout must be positive")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must be set when auth is enabled")
	}

	return nil
}
