package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/llmrelay"
	"github.com/quayside/llmrelay/internal/config"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
	"github.com/quayside/llmrelay/providers/local"
)

func newLocalClient(t *testing.T, cacheCapacity int) *llmrelay.Client {
	t.Helper()
	p, err := local.New(provider.Config{Kind: types.KindLocal})
	require.NoError(t, err)
	client, err := llmrelay.New(
		llmrelay.WithProviderInstance(p),
		llmrelay.WithCacheCapacity(cacheCapacity),
		llmrelay.WithRetry(3, time.Millisecond),
	)
	require.NoError(t, err)
	return client
}

func TestClientReload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clients := newClientHolder(newLocalClient(t, 100))
	handler := newHandler(clients, config.DefaultConfig(), logger)

	// Traffic lands on the original client.
	rec := postJSON(t, handler, "/v1/generate", types.Request{Prompt: "before"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), clients.Get().Stats().RequestsTotal)

	builds := 0
	reloader := newClientReloader(logger, clients, func(cfg *config.Config) (*llmrelay.Client, error) {
		builds++
		return newLocalClient(t, cfg.Dispatch.CacheCapacity), nil
	})

	reloader.Reload(config.DefaultConfig())
	require.Equal(t, 1, builds)

	// The handler now serves the rebuilt client, counters fresh.
	assert.Equal(t, uint64(0), clients.Get().Stats().RequestsTotal)
	rec = postJSON(t, handler, "/v1/generate", types.Request{Prompt: "after"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), clients.Get().Stats().RequestsTotal)
}

func TestClientReloadKeepsClientOnBuildFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	original := newLocalClient(t, 100)
	clients := newClientHolder(original)

	reloader := newClientReloader(logger, clients, func(cfg *config.Config) (*llmrelay.Client, error) {
		return nil, fmt.Errorf("bad provider config")
	})
	reloader.Reload(config.DefaultConfig())

	assert.Same(t, original, clients.Get())
}

func TestClientHolderSwapIgnoresNil(t *testing.T) {
	original := newLocalClient(t, 100)
	clients := newClientHolder(original)
	clients.Swap(nil)
	assert.Same(t, original, clients.Get())
}

func TestReloadEndToEnd(t *testing.T) {
	// A config rewrite on disk must reach the serving path: manager reload
	// fires OnChange, the reloader rebuilds, the handler serves the new
	// client.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clients := newClientHolder(newLocalClient(t, 100))
	handler := newHandler(clients, config.DefaultConfig(), logger)

	var rebuiltWith int
	reloader := newClientReloader(logger, clients, func(cfg *config.Config) (*llmrelay.Client, error) {
		rebuiltWith = cfg.Dispatch.CacheCapacity
		return newLocalClient(t, cfg.Dispatch.CacheCapacity), nil
	})

	updated := config.DefaultConfig()
	updated.Dispatch.CacheCapacity = 7
	reloader.Reload(updated)

	assert.Equal(t, 7, rebuiltWith)

	rec := postJSON(t, handler, "/v1/generate", types.Request{Prompt: "post-reload"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.KindLocal, resp.Provider)
}
