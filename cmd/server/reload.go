package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/quayside/llmrelay"
	"github.com/quayside/llmrelay/internal/config"
)

// clientHolder hands out the active client and allows the reloader to
// replace it atomically. Handlers call Get per request, so in-flight
// requests finish on the client they started with.
type clientHolder struct {
	ptr atomic.Pointer[llmrelay.Client]
}

func newClientHolder(c *llmrelay.Client) *clientHolder {
	h := &clientHolder{}
	h.ptr.Store(c)
	return h
}

func (h *clientHolder) Get() *llmrelay.Client { return h.ptr.Load() }

func (h *clientHolder) Swap(c *llmrelay.Client) {
	if c != nil {
		h.ptr.Store(c)
	}
}

// clientReloader rebuilds the dispatch client from a freshly validated
// config and swaps it into the holder.
type clientReloader struct {
	logger     *slog.Logger
	holder     *clientHolder
	build      func(*config.Config) (*llmrelay.Client, error)
	inProgress atomic.Bool
}

func newClientReloader(logger *slog.Logger, holder *clientHolder, build func(*config.Config) (*llmrelay.Client, error)) *clientReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &clientReloader{
		logger: logger,
		holder: holder,
		build:  build,
	}
}

// Reload builds a new client from cfg and swaps it in. Build failures
// leave the running client untouched.
func (r *clientReloader) Reload(cfg *config.Config) {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("client reload already in progress")
		return
	}
	defer r.inProgress.Store(false)

	next, err := r.build(cfg)
	if err != nil {
		r.logger.Error("failed to rebuild dispatch client", "error", err)
		return
	}

	r.holder.Swap(next)
	r.logger.Info("dispatch client reloaded", "providers", len(cfg.Providers))
}
