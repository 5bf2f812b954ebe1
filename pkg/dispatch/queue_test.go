package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

type recordingDispatch struct {
	mu    sync.Mutex
	order []string
}

func (r *recordingDispatch) dispatch(_ context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	r.mu.Lock()
	r.order = append(r.order, req.Prompt)
	r.mu.Unlock()
	return &types.GenerationResponse{Success: true, Data: req.Prompt}, nil
}

func (r *recordingDispatch) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func enqueueAsync(q *Queue, provider, text string) <-chan *types.GenerationResponse {
	out := make(chan *types.GenerationResponse, 1)
	go func() {
		resp, _ := q.Enqueue(context.Background(), types.GenerationRequest{Provider: provider, Prompt: text})
		out <- resp
	}()
	return out
}

func waitFor(t *testing.T, ch <-chan *types.GenerationResponse) *types.GenerationResponse {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued request")
		return nil
	}
}

func TestQueue_FIFOForSameProvider(t *testing.T) {
	var limited atomic.Bool
	limited.Store(true)
	rec := &recordingDispatch{}
	q := newQueue(2*time.Millisecond, func(string) bool { return limited.Load() }, rec.dispatch)
	defer q.Close()

	first := enqueueAsync(q, "openai", "first")
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	second := enqueueAsync(q, "openai", "second")
	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)

	limited.Store(false)

	assert.Equal(t, "first", waitFor(t, first).Data)
	assert.Equal(t, "second", waitFor(t, second).Data)
	assert.Equal(t, []string{"first", "second"}, rec.snapshot())
}

// A limited head entry blocks entries for other providers behind it.
func TestQueue_HeadOfLineBlocking(t *testing.T) {
	var aLimited atomic.Bool
	aLimited.Store(true)
	rec := &recordingDispatch{}
	q := newQueue(2*time.Millisecond, func(provider string) bool {
		return provider == "a" && aLimited.Load()
	}, rec.dispatch)
	defer q.Close()

	forA := enqueueAsync(q, "a", "for-a")
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	forB := enqueueAsync(q, "b", "for-b")
	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)

	assert.Never(t, func() bool { return len(rec.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"b is free but must wait behind a")

	aLimited.Store(false)

	waitFor(t, forA)
	waitFor(t, forB)
	assert.Equal(t, []string{"for-a", "for-b"}, rec.snapshot())
}

func TestQueue_DropsCancelledEntries(t *testing.T) {
	var limited atomic.Bool
	limited.Store(true)
	rec := &recordingDispatch{}
	q := newQueue(2*time.Millisecond, func(string) bool { return limited.Load() }, rec.dispatch)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, types.GenerationRequest{Provider: "openai", Prompt: "cancelled"})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		var gerr *types.GenerationError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, types.ErrTypeTimeout, gerr.Type)
	case <-time.After(time.Second):
		t.Fatal("cancelled enqueue did not return")
	}

	kept := enqueueAsync(q, "openai", "kept")
	limited.Store(false)
	waitFor(t, kept)

	assert.Equal(t, []string{"kept"}, rec.snapshot())
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := newQueue(time.Millisecond, func(string) bool { return false }, (&recordingDispatch{}).dispatch)
	q.Close()
	q.Close()

	resp, err := q.Enqueue(context.Background(), types.GenerationRequest{Provider: "openai", Prompt: "late"})
	assert.Nil(t, resp)

	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, types.CodeQueueClosed, gerr.Code)
}

func TestQueue_ReportsDepth(t *testing.T) {
	var limited atomic.Bool
	limited.Store(true)
	var maxDepth atomic.Int64
	q := newQueue(2*time.Millisecond, func(string) bool { return limited.Load() }, (&recordingDispatch{}).dispatch)
	q.onDepth = func(n int) {
		if int64(n) > maxDepth.Load() {
			maxDepth.Store(int64(n))
		}
	}
	defer q.Close()

	one := enqueueAsync(q, "openai", "1")
	two := enqueueAsync(q, "openai", "2")
	require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)

	limited.Store(false)
	waitFor(t, one)
	waitFor(t, two)

	assert.Equal(t, int64(2), maxDepth.Load())
	assert.Equal(t, 0, q.Len())
}
