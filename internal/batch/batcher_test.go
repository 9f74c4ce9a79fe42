package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

type stubProvider struct {
	kind types.Kind
}

func (p *stubProvider) Kind() types.Kind { return p.kind }
func (p *stubProvider) Healthy() bool    { return true }
func (p *stubProvider) Generate(_ context.Context, req *types.Request) (*types.Response, error) {
	return &types.Response{Content: "stub: " + req.Prompt, Provider: p.kind}, nil
}

func passthrough(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
	return prov.Generate(ctx, req)
}

func TestBatcher_FlushOnSize(t *testing.T) {
	const size = 5

	var (
		mu         sync.Mutex
		dispatched []string
		started    = make(chan struct{}, size)
	)
	dispatch := func(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
		started <- struct{}{}
		mu.Lock()
		dispatched = append(dispatched, req.Prompt)
		mu.Unlock()
		return passthrough(ctx, prov, req)
	}

	// Long timeout: only the size trigger can flush.
	b := New(Config{Size: size, Timeout: time.Minute}, dispatch)
	prov := &stubProvider{kind: types.KindLocal}

	var wg sync.WaitGroup
	results := make([]*types.Response, size)
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := b.Add(context.Background(), &types.Request{Prompt: fmt.Sprintf("p%d", i)}, prov)
			require.NoError(t, err)
			results[i] = resp
		}(i)
	}
	wg.Wait()

	// All five dispatched as one wave, each with its own distinct response.
	mu.Lock()
	assert.Len(t, dispatched, size)
	mu.Unlock()
	seen := map[string]bool{}
	for i, resp := range results {
		require.NotNil(t, resp, "result %d", i)
		seen[resp.Content] = true
	}
	assert.Len(t, seen, size)
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_FlushOnTimeout(t *testing.T) {
	b := New(Config{Size: 10, Timeout: 30 * time.Millisecond}, passthrough)
	prov := &stubProvider{kind: types.KindLocal}

	start := time.Now()
	resp, err := b.Add(context.Background(), &types.Request{Prompt: "lonely"}, prov)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "stub: lonely", resp.Content)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond, "single item waits out the window")
}

func TestBatcher_OneTimerPerBatch(t *testing.T) {
	// Items trickling in slower than the window but faster than re-armed
	// timers would flush must still flush at the original deadline.
	b := New(Config{Size: 10, Timeout: 100 * time.Millisecond}, passthrough)
	prov := &stubProvider{kind: types.KindLocal}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 40 * time.Millisecond)
			_, err := b.Add(context.Background(), &types.Request{Prompt: fmt.Sprintf("t%d", i)}, prov)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Deadline is anchored at the first enqueue: ~100ms total. A timer
	// re-armed by the last arrival would push the flush past 180ms.
	assert.Less(t, time.Since(start), 170*time.Millisecond)
}

func TestBatcher_FailureIsolation(t *testing.T) {
	dispatch := func(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
		if req.Prompt == "poison" {
			return nil, llmerrors.NewTransportError(prov.Kind(), "backend exploded")
		}
		return passthrough(ctx, prov, req)
	}
	b := New(Config{Size: 2, Timeout: time.Minute}, dispatch)
	prov := &stubProvider{kind: types.KindOpenAI}

	var wg sync.WaitGroup
	var goodResp *types.Response
	var goodErr, badErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		goodResp, goodErr = b.Add(context.Background(), &types.Request{Prompt: "fine"}, prov)
	}()
	go func() {
		defer wg.Done()
		_, badErr = b.Add(context.Background(), &types.Request{Prompt: "poison"}, prov)
	}()
	wg.Wait()

	require.NoError(t, goodErr)
	assert.Equal(t, "stub: fine", goodResp.Content)

	var de *llmerrors.DispatchError
	require.ErrorAs(t, badErr, &de)
	assert.Equal(t, llmerrors.TypeTransport, de.Type)
}

func TestBatcher_SizeTriggerCancelsTimer(t *testing.T) {
	var flushes atomic.Int64
	dispatch := func(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
		flushes.Add(1)
		return passthrough(ctx, prov, req)
	}
	b := New(Config{Size: 2, Timeout: 20 * time.Millisecond}, dispatch)
	prov := &stubProvider{kind: types.KindLocal}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Add(context.Background(), &types.Request{Prompt: fmt.Sprintf("c%d", i)}, prov)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Wait past the window; a dangling timer would try a second flush of
	// an empty queue, which is harmless but must not dispatch anything.
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int64(2), flushes.Load())
}

func TestBatcher_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	dispatch := func(ctx context.Context, prov provider.Provider, req *types.Request) (*types.Response, error) {
		<-release
		return passthrough(ctx, prov, req)
	}
	b := New(Config{Size: 1, Timeout: time.Minute}, dispatch)
	prov := &stubProvider{kind: types.KindLocal}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.Add(ctx, &types.Request{Prompt: "abandoned"}, prov)
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}
