// Package batch coalesces requests arriving within a short window into a
// single dispatch wave, amortizing per-call overhead.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quayside/llmrelay/internal/metrics"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

// Defaults for the batch window.
const (
	DefaultSize    = 5
	DefaultTimeout = 100 * time.Millisecond
)

// DispatchFunc executes one request against its selected provider. The
// dispatcher passes its governed execution path here, so batched calls
// still respect the concurrency ceiling.
type DispatchFunc func(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error)

type outcome struct {
	resp *types.Response
	err  error
}

type pendingItem struct {
	ctx    context.Context
	req    *types.Request
	prov   provider.Provider
	result chan outcome
}

// Batcher queues request/provider pairs and flushes them as one wave when
// the queue reaches the batch size or the window timeout elapses,
// whichever comes first.
type Batcher struct {
	mu      sync.Mutex
	pending []*pendingItem
	timer   *time.Timer // armed once per batch, on the first enqueue

	size     int
	timeout  time.Duration
	dispatch DispatchFunc
	logger   *slog.Logger
}

// Config configures a Batcher. Zero values take the defaults.
type Config struct {
	Size    int
	Timeout time.Duration
	Logger  *slog.Logger
}

// New creates a batcher that executes items through dispatch.
func New(cfg Config, dispatch DispatchFunc) *Batcher {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Batcher{
		size:     cfg.Size,
		timeout:  cfg.Timeout,
		dispatch: dispatch,
		logger:   cfg.Logger,
	}
}

// Add enqueues the pair and blocks until its result is available. Each
// caller receives exactly one outcome; a failure on one item never affects
// sibling items in the same wave.
func (b *Batcher) Add(ctx context.Context, req *types.Request, prov provider.Provider) (*types.Response, error) {
	item := &pendingItem{
		ctx:  ctx,
		req:  req,
		prov: prov,
		// Buffered so a flush never blocks on a caller that gave up.
		result: make(chan outcome, 1),
	}

	b.mu.Lock()
	b.pending = append(b.pending, item)
	switch {
	case len(b.pending) >= b.size:
		b.flushLocked()
	case len(b.pending) == 1:
		// First item of a new batch arms the only timer this batch gets;
		// later arrivals must not push the deadline out.
		b.timer = time.AfterFunc(b.timeout, b.flushOnTimeout)
	}
	b.mu.Unlock()

	select {
	case out := <-item.result:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the current queue depth.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) flushOnTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 {
		b.flushLocked()
	}
}

// flushLocked drains the queue and dispatches every item concurrently.
// Caller holds b.mu, which serializes flushes against enqueues.
func (b *Batcher) flushLocked() {
	wave := b.pending
	b.pending = nil

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	b.logger.Debug("flushing batch", "items", len(wave))
	metrics.BatchFlushSize.Observe(float64(len(wave)))

	for _, item := range wave {
		go func(item *pendingItem) {
			resp, err := b.dispatch(item.ctx, item.prov, item.req)
			item.result <- outcome{resp: resp, err: err}
		}(item)
	}
}
