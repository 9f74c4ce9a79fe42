package registry

import (
	"sync"

	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

// DefaultMaxPoolSize bounds instances per kind when none is configured.
const DefaultMaxPoolSize = 10

// Pool distributes load across multiple instances of the same provider
// kind by round-robin. It does not health-check; callers combine it with
// the Registry's health-aware selection.
type Pool struct {
	mu      sync.Mutex
	pools   map[types.Kind][]provider.Provider
	cursors map[types.Kind]uint64
	maxSize int
}

// NewPool creates a pool with the given per-kind instance ceiling.
// Non-positive values fall back to DefaultMaxPoolSize.
func NewPool(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxPoolSize
	}
	return &Pool{
		pools:   make(map[types.Kind][]provider.Provider),
		cursors: make(map[types.Kind]uint64),
		maxSize: maxSize,
	}
}

// Add appends an instance to its kind's list. Beyond the ceiling the
// addition is silently dropped; the ceiling is a deliberate cap, not a
// queue.
func (p *Pool) Add(prov provider.Provider) {
	kind := prov.Kind()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pools[kind]) >= p.maxSize {
		return
	}
	p.pools[kind] = append(p.pools[kind], prov)
}

// Get returns the next instance for the kind by round-robin. The cursor
// advances on every call and wraps modulo the current pool length.
// The second return is false when the kind has no instances.
func (p *Pool) Get(kind types.Kind) (provider.Provider, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.pools[kind]
	if len(pool) == 0 {
		return nil, false
	}

	idx := p.cursors[kind] % uint64(len(pool))
	p.cursors[kind]++
	return pool[idx], true
}

// Size returns the number of pooled instances for a kind.
func (p *Pool) Size(kind types.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools[kind])
}
