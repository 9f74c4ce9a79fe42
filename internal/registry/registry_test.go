package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/types"
)

type mockProvider struct {
	kind    types.Kind
	healthy atomic.Bool
	calls   atomic.Int64
	tag     string
}

func newMockProvider(kind types.Kind, healthy bool) *mockProvider {
	p := &mockProvider{kind: kind}
	p.healthy.Store(healthy)
	return p
}

func (p *mockProvider) Kind() types.Kind { return p.kind }

func (p *mockProvider) Generate(_ context.Context, req *types.Request) (*types.Response, error) {
	p.calls.Add(1)
	return &types.Response{Content: "mock: " + req.Prompt, Provider: p.kind}, nil
}

func (p *mockProvider) Healthy() bool { return p.healthy.Load() }

func TestRegistry_RegisterAndSelect(t *testing.T) {
	r := New(nil)
	prov := newMockProvider(types.KindOpenAI, true)
	r.Register(prov)

	got, err := r.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, types.KindOpenAI, got.Kind())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterUnhealthyStillRegisters(t *testing.T) {
	r := New(nil)
	r.Register(newMockProvider(types.KindLocal, false))

	// Unhealthy at registration, but still present: it may recover later.
	_, ok := r.Get(types.KindLocal)
	assert.True(t, ok)

	_, err := r.Select(nil)
	assert.ErrorIs(t, err, llmerrors.ErrNoHealthyProviders)
}

func TestRegistry_PreferenceOrder(t *testing.T) {
	r := New(nil)
	r.Register(newMockProvider(types.KindOpenAI, true))
	r.Register(newMockProvider(types.KindAnthropic, true))

	got, err := r.Select([]types.Kind{types.KindAnthropic, types.KindOpenAI})
	require.NoError(t, err)
	assert.Equal(t, types.KindAnthropic, got.Kind())
}

func TestRegistry_FailoverToRegistrationOrder(t *testing.T) {
	r := New(nil)
	unhealthy := newMockProvider(types.KindOpenAI, false)
	healthy := newMockProvider(types.KindAnthropic, true)
	r.Register(unhealthy)
	r.Register(healthy)

	// Preferred kind is down; selection falls back to the first healthy
	// provider in registration order.
	got, err := r.Select([]types.Kind{types.KindOpenAI})
	require.NoError(t, err)
	assert.Equal(t, types.KindAnthropic, got.Kind())
}

func TestRegistry_HealthReprobedPerSelection(t *testing.T) {
	r := New(nil)
	prov := newMockProvider(types.KindLocal, true)
	r.Register(prov)

	_, err := r.Select(nil)
	require.NoError(t, err)

	prov.healthy.Store(false)
	_, err = r.Select(nil)
	assert.ErrorIs(t, err, llmerrors.ErrNoHealthyProviders)

	prov.healthy.Store(true)
	_, err = r.Select(nil)
	assert.NoError(t, err)
}

func TestRegistry_OverwriteKeepsOrder(t *testing.T) {
	r := New(nil)
	r.Register(newMockProvider(types.KindOpenAI, true))
	r.Register(newMockProvider(types.KindLocal, true))

	replacement := newMockProvider(types.KindOpenAI, true)
	replacement.tag = "v2"
	r.Register(replacement)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []types.Kind{types.KindOpenAI, types.KindLocal}, r.Kinds())

	got, ok := r.Get(types.KindOpenAI)
	require.True(t, ok)
	assert.Equal(t, "v2", got.(*mockProvider).tag)
}

func TestRegistry_ConcurrentRegistrationAndSelection(t *testing.T) {
	r := New(nil)
	r.Register(newMockProvider(types.KindLocal, true))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Register(newMockProvider(types.KindOpenAI, true))
				if _, err := r.Select(nil); err != nil {
					t.Errorf("Select() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, r.Len())
}

func TestPool_RoundRobin(t *testing.T) {
	p := NewPool(10)

	a := newMockProvider(types.KindOpenAI, true)
	a.tag = "a"
	b := newMockProvider(types.KindOpenAI, true)
	b.tag = "b"
	c := newMockProvider(types.KindOpenAI, true)
	c.tag = "c"
	for _, prov := range []*mockProvider{a, b, c} {
		p.Add(prov)
	}

	var got []string
	for i := 0; i < 6; i++ {
		prov, ok := p.Get(types.KindOpenAI)
		require.True(t, ok)
		got = append(got, prov.(*mockProvider).tag)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestPool_EmptyKind(t *testing.T) {
	p := NewPool(10)
	_, ok := p.Get(types.KindAnthropic)
	assert.False(t, ok)
}

func TestPool_DropsBeyondMaxSize(t *testing.T) {
	p := NewPool(2)

	for i := 0; i < 5; i++ {
		prov := newMockProvider(types.KindLocal, true)
		prov.tag = fmt.Sprintf("p%d", i)
		p.Add(prov)
	}

	assert.Equal(t, 2, p.Size(types.KindLocal))

	// Only the first two instances participate in rotation.
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		prov, ok := p.Get(types.KindLocal)
		require.True(t, ok)
		seen[prov.(*mockProvider).tag] = true
	}
	assert.Equal(t, map[string]bool{"p0": true, "p1": true}, seen)
}

func TestPool_DefaultMaxSize(t *testing.T) {
	p := NewPool(0)
	for i := 0; i < DefaultMaxPoolSize+5; i++ {
		p.Add(newMockProvider(types.KindOpenAI, true))
	}
	assert.Equal(t, DefaultMaxPoolSize, p.Size(types.KindOpenAI))
}
