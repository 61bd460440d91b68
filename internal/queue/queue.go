// Package queue implements C5: the single-writer FIFO task queue that
// serializes every CRUD and sync task against one repository (spec
// §4.5). Its single-goroutine loop ranging over the task channel is grounded on
// cmd/bd/daemon_event_loop.go's ticker/debounce scheduling shape; the
// cooperative-cancellation/drain contract is new, generalized from the
// daemon's shutdown handling to the spec's waitCompletion semantics.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/types"
)

// Func is the work a task performs once it is dispatched. It receives
// a context that is cancelled if the queue is force-closed.
type Func[T any] func(ctx context.Context) (T, error)

// Future is the handle returned by Enqueue: a single-settlement result
// the caller can wait on or attempt to cancel.
type Future[T any] struct {
	done      chan struct{}
	result    T
	err       error
	cancelled func() bool
}

// Wait blocks until the task settles or ctx is done, whichever comes first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel attempts to cancel the task. If it has not started running,
// it is removed and its future is rejected with TaskCancel, and Cancel
// returns true. If it is already running, Cancel is a cooperative
// no-op and returns false -- but the queue's cancel counter still
// increments either way (spec §4.5).
func (f *Future[T]) Cancel() bool {
	return f.cancelled()
}

// taskItem is the queue's internal, non-generic representation of one
// enqueued task. The generic Future/Func pair is closed over by run,
// which is why taskItem itself need not be generic.
type taskItem struct {
	id         uint64
	kind       types.TaskKind
	label      string
	target     string
	enqueued   time.Time
	cancelled  atomic.Bool
	started    chan struct{}
	run        func(ctx context.Context)
}

// Queue is a single-writer FIFO executor: at most one task runs to
// completion at a time, strictly in enqueue order.
type Queue struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	stats   types.TaskStatistics
	closed  bool
	nextID  uint64

	tasks  chan *taskItem
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a running Queue. logger defaults to slog.Default() if nil.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger: logger,
		tasks:  make(chan *taskItem, 256),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for item := range q.tasks {
		item.run(q.ctx)
		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}

// Enqueue schedules fn and returns a Future for its result. kind
// identifies the statistics counter to increment on success; label and
// target are diagnostic-only.
func Enqueue[T any](q *Queue, kind types.TaskKind, label, target string, fn Func[T]) *Future[T] {
	future := &Future[T]{done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		future.err = dberr.Wrap(dberr.DatabaseClosing, string(kind), target, nil)
		close(future.done)
		future.cancelled = func() bool { return false }
		return future
	}
	q.nextID++
	id := q.nextID
	q.pending++
	q.mu.Unlock()

	item := &taskItem{
		id:       id,
		kind:     kind,
		label:    label,
		target:   target,
		enqueued: time.Now(),
		started:  make(chan struct{}),
	}

	item.run = func(ctx context.Context) {
		if item.cancelled.Load() {
			future.err = dberr.Wrap(dberr.TaskCancel, string(kind), target, nil)
			close(future.done)
			return
		}
		close(item.started)
		q.logger.Debug("task dispatch", "id", id, "kind", kind, "label", label, "target", target)

		result, err := fn(ctx)
		if err != nil {
			future.err = err
			close(future.done)
			q.logger.Debug("task failed", "id", id, "kind", kind, "err", err)
			return
		}
		future.result = result
		q.mu.Lock()
		q.stats.Add(kind)
		q.mu.Unlock()
		close(future.done)
	}

	future.cancelled = func() bool {
		select {
		case <-item.started:
			q.mu.Lock()
			q.stats.Cancel++
			q.mu.Unlock()
			return false
		default:
		}
		if item.cancelled.CompareAndSwap(false, true) {
			q.mu.Lock()
			q.stats.Cancel++
			q.mu.Unlock()
			return true
		}
		return false
	}

	q.tasks <- item
	return future
}

// Stats returns a snapshot of the queue's per-kind completion counters.
func (q *Queue) Stats() types.TaskStatistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// WaitCompletion blocks until the queue becomes empty (no pending or
// running task) or timeout elapses. It returns false if the queue
// drained before the deadline, true if the deadline expired first
// (spec §4.5).
func (q *Queue) WaitCompletion(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}
	return false
}

// StopAccepting rejects every Enqueue call from now on with
// DatabaseClosing, without waiting for in-flight or queued tasks. The
// Database Facade calls this first, then WaitCompletion(timeoutMs),
// before deciding whether to reject with DatabaseCloseTimeout or
// proceed to Shutdown (spec §4.10 close).
func (q *Queue) StopAccepting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Shutdown stops the dispatch loop. If force is true, the context
// passed to any still-running or queued task function is cancelled
// immediately; callers normally pair this with a prior WaitCompletion
// that already confirmed the queue was empty (force=false close path),
// or call it unconditionally to force a close through a stuck task
// (force=true close path).
func (q *Queue) Shutdown(force bool) {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	if force {
		q.cancel()
	}
	// Safe to close unconditionally: StopAccepting/this method's own
	// closed=true assignment above means no further sends can race it.
	func() {
		defer func() { recover() }() // tasks channel may already be closed by a prior Shutdown call
		close(q.tasks)
	}()
	<-q.done
	if !force {
		q.cancel()
	}
}
