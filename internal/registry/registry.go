// Package registry holds the set of registered providers and performs
// health-aware selection with preference ordering and failover.
package registry

import (
	"log/slog"
	"sync"

	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

// Registry maps provider kinds to their active instances.
// It is safe for concurrent registration and selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[types.Kind]provider.Provider
	order     []types.Kind // registration order, used for fallback scans

	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[types.Kind]provider.Provider),
		logger:    logger,
	}
}

// Register stores or overwrites the instance for the provider's kind and
// probes its health once. A failed probe is logged but does not prevent
// registration: health fluctuates, and failing closed here would keep a
// recovering backend out of rotation forever.
func (r *Registry) Register(prov provider.Provider) {
	kind := prov.Kind()

	r.mu.Lock()
	if _, exists := r.providers[kind]; !exists {
		r.order = append(r.order, kind)
	}
	r.providers[kind] = prov
	r.mu.Unlock()

	if !prov.Healthy() {
		r.logger.Warn("provider failed health check at registration", "provider", kind)
	}
	r.logger.Info("provider registered", "provider", kind)
}

// Select returns the first healthy provider among the caller's preferences,
// falling back to the first healthy provider in registration order. Health
// is re-probed on every call; a stale healthy verdict would route traffic
// into a dead backend.
func (r *Registry) Select(preferences []types.Kind) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, kind := range preferences {
		if prov, ok := r.providers[kind]; ok && prov.Healthy() {
			return prov, nil
		}
	}

	for _, kind := range r.order {
		if prov := r.providers[kind]; prov.Healthy() {
			return prov, nil
		}
	}

	return nil, llmerrors.ErrNoHealthyProviders
}

// Get returns the registered instance for a kind, if any.
func (r *Registry) Get(kind types.Kind) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prov, ok := r.providers[kind]
	return prov, ok
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []types.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Kind, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
