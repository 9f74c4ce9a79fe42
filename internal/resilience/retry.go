package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/quayside/llmrelay/internal/metrics"
	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/types"
)

// Defaults for the governor.
const (
	DefaultMaxRetries     = 3
	DefaultBackoffUnit    = time.Second
	DefaultMaxConcurrency = 8
)

// Executor runs work through the admission gate with retries and
// exponential backoff.
type Executor struct {
	gate        *Semaphore
	maxRetries  int
	backoffUnit time.Duration
	logger      *slog.Logger
}

// ExecutorConfig configures an Executor. Zero values take the defaults.
type ExecutorConfig struct {
	MaxConcurrency int
	MaxRetries     int
	BackoffUnit    time.Duration
	Logger         *slog.Logger
}

// NewExecutor creates a retry executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		gate:        NewSemaphore(cfg.MaxConcurrency),
		maxRetries:  cfg.MaxRetries,
		backoffUnit: cfg.BackoffUnit,
		logger:      cfg.Logger,
	}
}

// Work is one attempt of a governed operation.
type Work func(ctx context.Context) (*types.Response, error)

// Do runs work up to the configured attempt ceiling, waiting
// 1, 2, 4, … backoff units between attempts. Each attempt acquires a fresh
// concurrency slot and releases it before any backoff sleep, so a failing
// request never starves other traffic while it waits to retry.
//
// Non-retryable errors abort immediately. Once attempts are exhausted the
// final failure is wrapped with the provider label and attempt count.
func (e *Executor) Do(ctx context.Context, label types.Kind, work Work) (*types.Response, error) {
	var lastErr error

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.backoffUnit << (attempt - 1)
			metrics.RetriesTotal.WithLabelValues(label.String()).Inc()
			e.logger.Debug("backing off before retry",
				"provider", label, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := e.doOnce(ctx, work)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !llmerrors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, llmerrors.Exhausted(label, e.maxRetries, lastErr)
}

// doOnce runs a single governed attempt. The slot is released on every
// exit path, including panics in the work function.
func (e *Executor) doOnce(ctx context.Context, work Work) (*types.Response, error) {
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()

	return work(ctx)
}

// InFlight reports currently held concurrency slots.
func (e *Executor) InFlight() int { return e.gate.InFlight() }

// MaxRetries reports the attempt ceiling.
func (e *Executor) MaxRetries() int { return e.maxRetries }
