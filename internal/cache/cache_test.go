package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/llmrelay/pkg/types"
)

func TestResponseCache_LookupInsert(t *testing.T) {
	c := New(10)

	resp := &types.Response{Content: "hello", Provider: types.KindLocal}
	c.Insert("fp1", resp)

	got, ok := c.Lookup("fp1")
	require.True(t, ok)
	assert.Same(t, resp, got)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, int64(1), c.Misses())
}

func TestResponseCache_EvictsOldestInserted(t *testing.T) {
	c := New(3)

	for i := 0; i < 3; i++ {
		c.Insert(fmt.Sprintf("fp%d", i), &types.Response{Content: fmt.Sprintf("v%d", i)})
	}

	// A lookup must not refresh fp0's position: this is insertion order,
	// not LRU.
	_, ok := c.Lookup("fp0")
	require.True(t, ok)

	c.Insert("fp3", &types.Response{Content: "v3"})

	_, ok = c.Lookup("fp0")
	assert.False(t, ok, "oldest-inserted entry should have been evicted")

	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		_, ok := c.Lookup(fp)
		assert.True(t, ok, "entry %s should survive", fp)
	}
	assert.Equal(t, 3, c.Len())
}

func TestResponseCache_OverwriteKeepsPosition(t *testing.T) {
	c := New(2)

	c.Insert("a", &types.Response{Content: "a1"})
	c.Insert("b", &types.Response{Content: "b1"})
	c.Insert("a", &types.Response{Content: "a2"})

	// "a" keeps its slot as oldest; inserting "c" evicts it.
	c.Insert("c", &types.Response{Content: "c1"})

	_, ok := c.Lookup("a")
	assert.False(t, ok)
	got, ok := c.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "b1", got.Content)
	assert.Equal(t, 2, c.Len())
}

func TestResponseCache_CapacityInvariant(t *testing.T) {
	const capacity = 100
	c := New(capacity)

	for i := 0; i < capacity+50; i++ {
		c.Insert(fmt.Sprintf("fp%d", i), &types.Response{})
	}

	assert.Equal(t, capacity, c.Len())

	// None of the first 50 insertions survive.
	for i := 0; i < 50; i++ {
		_, ok := c.Lookup(fmt.Sprintf("fp%d", i))
		assert.False(t, ok, "fp%d should be evicted", i)
	}
}

func TestResponseCache_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
}

func TestResponseCache_ConcurrentAccess(t *testing.T) {
	c := New(50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				fp := fmt.Sprintf("fp-%d-%d", g, i%25)
				c.Insert(fp, &types.Response{Content: fp})
				if got, ok := c.Lookup(fp); ok {
					assert.NotNil(t, got)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestFingerprint_CacheableFieldsOnly(t *testing.T) {
	base := &types.Request{Prompt: "what is the capital of France?", MaxTokens: 100, Temperature: 0.7}

	same := &types.Request{
		Prompt:      base.Prompt,
		MaxTokens:   base.MaxTokens,
		Temperature: base.Temperature,
		Preferences: []types.Kind{types.KindAnthropic},
		Metadata:    map[string]string{"user": "alice"},
	}
	assert.Equal(t, Fingerprint(base), Fingerprint(same),
		"preferences and metadata must not affect the fingerprint")

	for _, other := range []*types.Request{
		{Prompt: "different", MaxTokens: 100, Temperature: 0.7},
		{Prompt: base.Prompt, MaxTokens: 200, Temperature: 0.7},
		{Prompt: base.Prompt, MaxTokens: 100, Temperature: 0.9},
	} {
		assert.NotEqual(t, Fingerprint(base), Fingerprint(other))
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	req := &types.Request{Prompt: "hello", MaxTokens: 50, Temperature: 0.2}
	assert.Equal(t, Fingerprint(req), Fingerprint(req))
}
