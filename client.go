package llmrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/quayside/llmrelay/internal/batch"
	"github.com/quayside/llmrelay/internal/cache"
	"github.com/quayside/llmrelay/internal/metrics"
	"github.com/quayside/llmrelay/internal/observability"
	"github.com/quayside/llmrelay/internal/registry"
	"github.com/quayside/llmrelay/internal/resilience"
	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
	"github.com/quayside/llmrelay/providers"
)

// Client dispatches generation requests across registered providers.
// All methods are safe for concurrent use.
type Client struct {
	cfg *clientConfig

	registry *registry.Registry
	pool     *registry.Pool
	cache    *cache.ResponseCache
	executor *resilience.Executor
	batcher  *batch.Batcher // nil when batching is disabled

	requestsTotal atomic.Uint64
	cacheHits     atomic.Uint64
	errCount      atomic.Uint64
}

// New creates a client from the given options.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		cfg:      cfg,
		registry: registry.New(cfg.logger),
		pool:     registry.NewPool(cfg.maxPoolSize),
		cache:    cache.New(cfg.cacheCapacity),
		executor: resilience.NewExecutor(resilience.ExecutorConfig{
			MaxConcurrency: cfg.maxConcurrency,
			MaxRetries:     cfg.maxRetries,
			BackoffUnit:    cfg.backoffUnit,
			Logger:         cfg.logger,
		}),
	}

	for _, pc := range cfg.providers {
		p, err := providers.Create(pc)
		if err != nil {
			return nil, fmt.Errorf("create provider %q: %w", pc.Kind, err)
		}
		c.RegisterProvider(p)
	}
	for _, p := range cfg.providerInstances {
		c.RegisterProvider(p)
	}

	if cfg.batchingEnabled {
		c.batcher = batch.New(batch.Config{
			Size:    cfg.batchSize,
			Timeout: cfg.batchTimeout,
			Logger:  cfg.logger,
		}, c.execute)
	}

	return c, nil
}

// RegisterProvider adds a provider to the registry and its per-kind pool.
// Registering a second instance of an already-known kind grows the pool,
// and the registry entry is replaced.
func (c *Client) RegisterProvider(p provider.Provider) {
	c.registry.Register(p)
	c.pool.Add(p)
}

// Generate dispatches one request.
//
// The cache is consulted first; a hit returns the stored response without
// touching any provider. On a miss a healthy provider is selected,
// honoring req.Preferences, and the call runs under the concurrency
// ceiling with retry and exponential backoff. Successful responses are
// cached before returning.
func (c *Client) Generate(ctx context.Context, req *types.Request) (*types.Response, error) {
	c.requestsTotal.Add(1)

	if err := req.Validate(); err != nil {
		c.errCount.Add(1)
		metrics.ErrorsTotal.WithLabelValues("", llmerrors.TypeInvalidRequest).Inc()
		return nil, llmerrors.NewInvalidRequestError("", err.Error()).WithCause(err)
	}

	req = req.Normalized()

	fingerprint := cache.Fingerprint(req)
	if resp, ok := c.cache.Lookup(fingerprint); ok {
		c.cacheHits.Add(1)
		metrics.CacheHitsTotal.Inc()
		metrics.RequestsTotal.WithLabelValues(resp.Provider.String(), "cache_hit").Inc()
		c.cfg.logger.Debug("cache hit", "fingerprint", fingerprint)
		return resp, nil
	}

	prov, err := c.selectProvider(req.Preferences)
	if err != nil {
		c.errCount.Add(1)
		metrics.ErrorsTotal.WithLabelValues("", "no_provider").Inc()
		return nil, err
	}

	ctx, span := c.startSpan(ctx, prov, req)

	var resp *types.Response
	if c.batcher != nil {
		resp, err = c.batcher.Add(ctx, req, prov)
	} else {
		resp, err = c.execute(ctx, prov, req)
	}
	if err != nil {
		c.errCount.Add(1)
		c.recordFailure(span, prov, err)
		return nil, err
	}

	c.cache.Insert(fingerprint, resp)
	metrics.RequestsTotal.WithLabelValues(prov.Kind().String(), "success").Inc()
	if span != nil {
		observability.RecordDispatchResult(span, resp.TokensUsed, false)
		span.End()
	}
	return resp, nil
}

// GenerateAll fans the request out to every healthy registered provider
// concurrently and returns each provider's outcome. Results bypass the
// cache; each call still runs under the concurrency ceiling. The returned
// error joins every per-provider failure and is nil only when all
// providers succeed.
func (c *Client) GenerateAll(ctx context.Context, req *types.Request) (map[types.Kind]*types.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, llmerrors.NewInvalidRequestError("", err.Error()).WithCause(err)
	}
	req = req.Normalized()

	kinds := c.registry.Kinds()
	results := make(map[types.Kind]*types.Response, len(kinds))
	errs := make([]error, 0)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, kind := range kinds {
		prov, ok := c.registry.Get(kind)
		if !ok || !prov.Healthy() {
			continue
		}
		wg.Add(1)
		go func(kind types.Kind, prov provider.Provider) {
			defer wg.Done()
			resp, err := c.execute(ctx, prov, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
				return
			}
			results[kind] = resp
		}(kind, prov)
	}
	wg.Wait()

	if len(results) == 0 && len(errs) == 0 {
		return nil, llmerrors.ErrNoHealthyProviders
	}
	return results, errors.Join(errs...)
}

// Stats returns a snapshot of dispatch counters.
func (c *Client) Stats() types.Stats {
	total := c.requestsTotal.Load()
	hits := c.cacheHits.Load()

	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}

	active := 0
	for _, kind := range c.registry.Kinds() {
		if p, ok := c.registry.Get(kind); ok && p.Healthy() {
			active++
		}
	}

	return types.Stats{
		RequestsTotal:   total,
		CacheHits:       hits,
		Errors:          c.errCount.Load(),
		CacheHitRate:    fmt.Sprintf("%.2f%%", rate),
		ActiveProviders: active,
		CacheEntries:    c.cache.Len(),
	}
}

// InFlight reports how many provider calls are currently executing.
func (c *Client) InFlight() int { return c.executor.InFlight() }

// selectProvider picks a healthy provider, then rotates through its pool
// so repeated calls spread across instances of the same kind.
func (c *Client) selectProvider(preferences []types.Kind) (provider.Provider, error) {
	prov, err := c.registry.Select(preferences)
	if err != nil {
		return nil, err
	}
	if pooled, ok := c.pool.Get(prov.Kind()); ok && pooled.Healthy() {
		return pooled, nil
	}
	return prov, nil
}

// execute is the governed dispatch path: semaphore, retry, backoff, and
// latency stamping. The batcher flushes through here too.
func (c *Client) execute(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
	start := time.Now()
	resp, err := c.executor.Do(ctx, prov.Kind(), func(ctx context.Context) (*types.Response, error) {
		return prov.Generate(ctx, req)
	})
	elapsed := time.Since(start)
	metrics.ProviderLatency.WithLabelValues(prov.Kind().String()).Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}
	resp.Latency = elapsed
	return resp, nil
}

func (c *Client) startSpan(ctx context.Context, prov provider.Provider, req *types.Request) (context.Context, trace.Span) {
	if c.cfg.tracer == nil {
		return ctx, nil
	}
	return observability.StartDispatchSpan(ctx, c.cfg.tracer, prov.Kind().String(), req.MaxTokens, req.Temperature)
}

func (c *Client) recordFailure(span trace.Span, prov provider.Provider, err error) {
	errType := "unknown"
	var de *llmerrors.DispatchError
	if errors.As(err, &de) {
		errType = de.Type
	}
	metrics.ErrorsTotal.WithLabelValues(prov.Kind().String(), errType).Inc()
	metrics.RequestsTotal.WithLabelValues(prov.Kind().String(), "error").Inc()
	if span != nil {
		observability.RecordError(span, err)
		span.End()
	}
	c.cfg.logger.Warn("dispatch failed", "provider", prov.Kind(), "error", err)
}
