package infrastructure

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// requestQueue runs a sink's node requests one at a time, in submission order,
// on its own goroutine. Each request gets its own timeout.
type requestQueue struct {
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	requests []func(ctx context.Context)
	closed   bool
}

func newRequestQueue(timeout time.Duration) *requestQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &requestQueue{
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue schedules request and reports whether the queue accepted it.
func (q *requestQueue) enqueue(request func(ctx context.Context)) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.requests = append(q.requests, request)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *requestQueue) run() {
	defer close(q.done)
	for {
		request, ok := q.next()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}
		q.runRequest(request)
	}
}

func (q *requestQueue) next() (func(ctx context.Context), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.requests) == 0 {
		return nil, false
	}
	request := q.requests[0]
	q.requests[0] = nil
	q.requests = q.requests[1:]
	return request, true
}

func (q *requestQueue) runRequest(request func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in node request", "panic", r)
		}
	}()
	request(ctx)
}

// close drops pending requests, cancels the running one and waits for it.
func (q *requestQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.requests = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done
}
