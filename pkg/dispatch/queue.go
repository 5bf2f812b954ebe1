package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

type queueResult struct {
	resp *types.GenerationResponse
	err  error
}

type queueEntry struct {
	ctx        context.Context
	req        types.GenerationRequest
	enqueuedAt time.Time
	result     chan queueResult
}

func (e *queueEntry) settle(resp *types.GenerationResponse, err error) {
	// result is buffered and written exactly once
	e.result <- queueResult{resp: resp, err: err}
}

// Queue holds requests whose provider is rate limited and releases them in
// arrival order once their provider's window has reset.
//
// A single goroutine drains the queue. When the head entry is still limited
// it is put back at the front and the drainer sleeps for the retry interval,
// so entries for other providers wait behind it.
type Queue struct {
	mu         sync.Mutex
	entries    []*queueEntry
	processing bool
	closed     bool
	done       chan struct{}

	retryInterval time.Duration
	limited       func(provider string) bool
	dispatch      func(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error)
	onDepth       func(int)
	onWait        func(time.Duration)
}

func newQueue(
	retryInterval time.Duration,
	limited func(string) bool,
	dispatch func(context.Context, types.GenerationRequest) (*types.GenerationResponse, error),
) *Queue {
	return &Queue{
		done:          make(chan struct{}),
		retryInterval: retryInterval,
		limited:       limited,
		dispatch:      dispatch,
	}
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue appends req and blocks until it has been dispatched, the queue is
// closed, or ctx ends. A nil response means the request never reached a
// provider.
func (q *Queue) Enqueue(ctx context.Context, req types.GenerationRequest) (*types.GenerationResponse, error) {
	entry := &queueEntry{
		ctx:        ctx,
		req:        req,
		enqueuedAt: time.Now(),
		result:     make(chan queueResult, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, errQueueClosed(req.Provider)
	}
	q.entries = append(q.entries, entry)
	q.reportDepth()
	if !q.processing {
		q.processing = true
		go q.process()
	}
	q.mu.Unlock()

	select {
	case r := <-entry.result:
		return r.resp, r.err
	case <-ctx.Done():
		// the drainer discards the entry when it reaches it
		return nil, types.NewTimeoutError(req.Provider, "request cancelled while waiting for rate limit window").WithCause(ctx.Err())
	}
}

func (q *Queue) process() {
	for {
		q.mu.Lock()
		if len(q.entries) == 0 || q.closed {
			q.processing = false
			q.mu.Unlock()
			return
		}
		entry := q.entries[0]
		q.entries = q.entries[1:]
		q.reportDepth()
		q.mu.Unlock()

		if err := entry.ctx.Err(); err != nil {
			entry.settle(nil, types.NewTimeoutError(entry.req.Provider, "request cancelled while queued").WithCause(err))
			continue
		}

		if q.limited(entry.req.Provider) {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				entry.settle(nil, errQueueClosed(entry.req.Provider))
				continue
			}
			q.entries = append([]*queueEntry{entry}, q.entries...)
			q.reportDepth()
			q.mu.Unlock()

			timer := time.NewTimer(q.retryInterval)
			select {
			case <-timer.C:
			case <-q.done:
				timer.Stop()
			}
			continue
		}

		if q.onWait != nil {
			q.onWait(time.Since(entry.enqueuedAt))
		}
		resp, err := q.dispatch(entry.ctx, entry.req)
		entry.settle(resp, err)
	}
}

// Close rejects new entries and settles every waiting one with an error.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	pending := q.entries
	q.entries = nil
	q.reportDepth()
	q.mu.Unlock()

	for _, e := range pending {
		e.settle(nil, errQueueClosed(e.req.Provider))
	}
}

// reportDepth is called with mu held.
func (q *Queue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(len(q.entries))
	}
}

func errQueueClosed(provider string) *types.GenerationError {
	return types.NewGenerationError(types.CodeQueueClosed, types.ErrTypeServerError, "dispatcher is shutting down").
		WithProvider(provider)
}
