// Package cache implements the bounded in-memory response cache keyed by
// request fingerprint.
//
// Eviction is strict insertion order: when the map is at capacity and a new
// fingerprint arrives, the single oldest-inserted entry is removed. A lookup
// does not refresh an entry's position, so this is FIFO rather than LRU.
// Entries have no TTL; they live until evicted or the process exits.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/quayside/llmrelay/pkg/types"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 1000

// ResponseCache is a bounded fingerprint -> Response store.
// It is safe for concurrent use; the mutex covers the full
// read-modify-write of eviction plus insertion.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*types.Response
	order    []string // fingerprints in insertion order, oldest first
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a ResponseCache with the given capacity.
// Non-positive capacities fall back to DefaultCapacity.
func New(capacity int) *ResponseCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResponseCache{
		entries:  make(map[string]*types.Response, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Lookup returns the cached response for the fingerprint, if present.
// The returned response is shared and must be treated as immutable.
func (c *ResponseCache) Lookup(fingerprint string) (*types.Response, bool) {
	c.mu.Lock()
	resp, ok := c.entries[fingerprint]
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return resp, ok
}

// Insert stores the response under the fingerprint. It never fails.
// Inserting a new fingerprint at capacity evicts exactly the oldest entry;
// re-inserting an existing fingerprint overwrites in place and keeps its
// original position in the eviction order.
func (c *ResponseCache) Insert(fingerprint string, resp *types.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; exists {
		c.entries[fingerprint] = resp
		return
	}

	if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[fingerprint] = resp
	c.order = append(c.order, fingerprint)
}

// Len returns the number of resident entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured bound.
func (c *ResponseCache) Capacity() int { return c.capacity }

// Hits returns the number of successful lookups since creation.
func (c *ResponseCache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of failed lookups since creation.
func (c *ResponseCache) Misses() int64 { return c.misses.Load() }
