package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the default number of tasks that can wait on the loop.
const DefaultBufferSize = 100

// settlePollInterval is how often Settle checks for outstanding work.
const settlePollInterval = 5 * time.Millisecond

// ErrLoopClosed is returned when a task is submitted after Close.
var ErrLoopClosed = errors.New("event loop closed")

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop runs tasks one at a time, in submission order, on a single goroutine.
// All guild playback state is only touched from loop tasks, so callbacks that
// arrive from other goroutines (audio transports, gateway handlers) hand their
// work over with Post or Do instead of touching state directly. Blocking I/O
// belongs in Go, which runs it beside the loop and lets it Post its result back.
type Loop struct {
	tasks chan Task

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	background sync.WaitGroup
	closed     bool
	mu         sync.RWMutex

	// outstanding counts queued or running tasks plus running Go functions
	outstanding atomic.Int64
}

// NewLoop creates a Loop with the given buffer size and starts its goroutine.
func NewLoop(bufferSize int) *Loop {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Loop{
		tasks:  make(chan Task, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	l.wg.Add(1)
	go l.run()

	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case task := <-l.tasks:
			l.runTask(task)
		}
	}
}

func (l *Loop) runTask(task Task) {
	defer l.outstanding.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in event loop task", "panic", r)
		}
	}()
	task(l.ctx)
}

// Post schedules a task without waiting for it. It never blocks: when the buffer
// is full the task is handed to a helper goroutine that waits for room, so Post
// is also safe to call from inside a running task.
func (l *Loop) Post(task Task) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		slog.Warn("attempted to post to closed event loop")
		return
	}

	l.outstanding.Add(1)
	select {
	case l.tasks <- task:
	default:
		slog.Warn("event loop buffer full, deferring task")
		go func() {
			select {
			case l.tasks <- task:
			case <-l.ctx.Done():
				l.outstanding.Add(-1)
			}
		}()
	}
}

// Go runs fn on its own goroutine with the loop's context, which is cancelled
// by Close. fn must not touch loop state; it hands results back with Post.
func (l *Loop) Go(fn func(ctx context.Context)) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		slog.Warn("attempted to start background work on closed event loop")
		return
	}

	l.outstanding.Add(1)
	l.background.Add(1)
	go func() {
		defer l.background.Done()
		defer l.outstanding.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in event loop background work", "panic", r)
			}
		}()
		fn(l.ctx)
	}()
}

// Do runs fn on the loop and waits for its result. fn receives the caller's ctx.
// Do must not be called from inside a loop task.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrLoopClosed
	}

	done := make(chan error, 1)
	task := func(context.Context) {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in event loop task: %v", r)
			}
		}()
		done <- fn(ctx)
	}

	l.outstanding.Add(1)
	select {
	case l.tasks <- task:
	case <-ctx.Done():
		l.outstanding.Add(-1)
		return ctx.Err()
	case <-l.ctx.Done():
		l.outstanding.Add(-1)
		return ErrLoopClosed
	}

	// Once queued the task runs to completion, so wait for it even if ctx expires
	select {
	case err := <-done:
		return err
	case <-l.ctx.Done():
		return ErrLoopClosed
	}
}

// Flush waits until every task queued before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func(context.Context) error { return nil })
}

// Settle waits until no task is queued or running and no Go function is in
// flight. Work a task or Go function starts before finishing is counted before
// its parent stops counting, so Settle never returns between the two.
func (l *Loop) Settle(ctx context.Context) error {
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for l.outstanding.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.ctx.Done():
			return ErrLoopClosed
		}
	}
	return nil
}

// Close stops the loop and waits for Go functions to return. Tasks still queued
// are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	l.background.Wait()

	slog.Debug("event loop closed")
}
