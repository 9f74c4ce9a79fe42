package llmrelay

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/quayside/llmrelay/internal/batch"
	"github.com/quayside/llmrelay/internal/cache"
	"github.com/quayside/llmrelay/internal/registry"
	"github.com/quayside/llmrelay/internal/resilience"
	"github.com/quayside/llmrelay/pkg/provider"
)

// clientConfig holds all configuration for the client.
type clientConfig struct {
	providers         []provider.Config
	providerInstances []provider.Provider

	cacheCapacity  int
	maxConcurrency int
	maxRetries     int
	backoffUnit    time.Duration

	batchingEnabled bool
	batchSize       int
	batchTimeout    time.Duration

	maxPoolSize int

	logger *slog.Logger
	tracer trace.Tracer
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		cacheCapacity:  cache.DefaultCapacity,
		maxConcurrency: resilience.DefaultMaxConcurrency,
		maxRetries:     resilience.DefaultMaxRetries,
		backoffUnit:    resilience.DefaultBackoffUnit,
		batchSize:      batch.DefaultSize,
		batchTimeout:   batch.DefaultTimeout,
		maxPoolSize:    registry.DefaultMaxPoolSize,
		logger:         slog.Default(),
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithProvider adds a provider built from config via the built-in factories.
func WithProvider(cfg provider.Config) Option {
	return func(c *clientConfig) {
		c.providers = append(c.providers, cfg)
	}
}

// WithProviderInstance adds a pre-built provider instance. Useful for
// custom implementations and tests.
func WithProviderInstance(p provider.Provider) Option {
	return func(c *clientConfig) {
		c.providerInstances = append(c.providerInstances, p)
	}
}

// WithCacheCapacity sets the response cache capacity.
func WithCacheCapacity(n int) Option {
	return func(c *clientConfig) {
		c.cacheCapacity = n
	}
}

// WithMaxConcurrency caps the number of provider calls in flight.
func WithMaxConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.maxConcurrency = n
	}
}

// WithRetry sets the attempt budget and the backoff unit. The wait before
// attempt n doubles each time starting from one unit.
func WithRetry(maxRetries int, backoffUnit time.Duration) Option {
	return func(c *clientConfig) {
		c.maxRetries = maxRetries
		c.backoffUnit = backoffUnit
	}
}

// WithBatching enables request batching with the given flush size and
// window. Batching is off by default.
func WithBatching(size int, timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.batchingEnabled = true
		if size > 0 {
			c.batchSize = size
		}
		if timeout > 0 {
			c.batchTimeout = timeout
		}
	}
}

// WithMaxPoolSize caps how many instances a per-kind pool holds.
func WithMaxPoolSize(n int) Option {
	return func(c *clientConfig) {
		c.maxPoolSize = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer enables span creation around dispatches.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *clientConfig) {
		c.tracer = tracer
	}
}
