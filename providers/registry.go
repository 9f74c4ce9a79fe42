// Package providers wires the built-in provider factories.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
	"github.com/quayside/llmrelay/providers/anthropic"
	"github.com/quayside/llmrelay/providers/local"
	"github.com/quayside/llmrelay/providers/openai"
)

var (
	mu        sync.RWMutex
	factories = map[types.Kind]provider.Factory{}
)

func init() {
	Register(types.KindOpenAI, openai.New)
	Register(types.KindAnthropic, anthropic.New)
	Register(types.KindLocal, local.New)
}

// Register adds a factory for the given kind, replacing any existing one.
func Register(kind types.Kind, factory provider.Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = factory
}

// Get returns the factory for the given kind.
func Get(kind types.Kind) (provider.Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// Create instantiates a provider from config using the registered factory.
func Create(cfg provider.Config) (provider.Provider, error) {
	f, ok := Get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("no factory registered for provider kind %q", cfg.Kind)
	}
	return f(cfg)
}

// List returns registered kinds in sorted order.
func List() []types.Kind {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]types.Kind, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
