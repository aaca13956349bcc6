// Package queue is the admission gate for analysis work: it bounds how many
// requests run concurrently, how many may wait, and rejects the overflow so
// a burst of novel errors cannot stampede the provider. No other path in
// the process may invoke the external analysis call.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/errsight/errsight/internal/types"
)

// ErrQueueFull is returned by Schedule when both the concurrency slots and
// the wait list are exhausted. The request is dropped; the caller's error
// response is never affected.
var ErrQueueFull = errors.New("analysis queue is full")

// Task is one admitted unit of analysis work. The context is cancelled when
// the queue shuts down.
type Task func(ctx context.Context)

// Snapshot is a point-in-time view of queue counters.
type Snapshot struct {
	Active         int
	Pending        int
	MaxConcurrency int
	MaxQueueLength int
	RejectCount    uint64
}

type waiter struct {
	req  types.AnalysisRequest
	task Task
}

// Queue admits requests up to maxConcurrency running at once; beyond that,
// requests wait FIFO up to maxQueueLength, and past that Schedule rejects.
// Dequeue order is admission order, but tasks may complete out of order
// since completion depends on external call latency.
type Queue struct {
	mu      sync.Mutex
	active  int
	waiters []*waiter
	closed  bool

	maxConcurrency int
	maxQueueLength int
	rejectCount    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log      *slog.Logger
	reporter *reporter
	collect  *collectors
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue's logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// New creates an admission queue. maxConcurrency < 1 is clamped to 1;
// maxQueueLength < 0 is clamped to 0 (no waiting, only running slots).
func New(maxConcurrency, maxQueueLength int, opts ...Option) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if maxQueueLength < 0 {
		maxQueueLength = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxConcurrency: maxConcurrency,
		maxQueueLength: maxQueueLength,
		ctx:            ctx,
		cancel:         cancel,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule admits a request or rejects it with ErrQueueFull. Admitted
// requests start immediately when a concurrency slot is free, otherwise
// they join the FIFO wait list. Never blocks.
func (q *Queue) Schedule(req types.AnalysisRequest, task Task) error {
	if task == nil {
		return fmt.Errorf("nil task for request %s", req.ID)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue closed: %w", ErrQueueFull)
	}

	if q.active < q.maxConcurrency {
		q.active++
		q.wg.Add(1)
		q.startReporterLocked()
		q.updateGaugesLocked()
		q.mu.Unlock()
		go q.run(req, task)
		return nil
	}

	if len(q.waiters) < q.maxQueueLength {
		q.waiters = append(q.waiters, &waiter{req: req, task: task})
		q.startReporterLocked()
		q.updateGaugesLocked()
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	count := q.rejectCount.Add(1)
	if q.collect != nil {
		q.collect.rejects.Inc()
	}
	q.log.Warn("analysis request rejected, queue full",
		"request_id", req.ID,
		"fingerprint", req.Fingerprint,
		"reject_count", count,
	)
	return ErrQueueFull
}

// run executes a task and then promotes the next waiter, if any, into the
// freed slot. FIFO: waiters are promoted in admission order.
func (q *Queue) run(req types.AnalysisRequest, task Task) {
	defer q.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("analysis task panicked", "request_id", req.ID, "panic", r)
		}
		q.finish()
	}()

	task(q.ctx)
}

func (q *Queue) finish() {
	q.mu.Lock()
	if len(q.waiters) > 0 && !q.closed {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.wg.Add(1)
		q.updateGaugesLocked()
		q.mu.Unlock()
		go q.run(next.req, next.task)
		return
	}
	q.active--
	drained := q.active == 0 && len(q.waiters) == 0
	q.updateGaugesLocked()
	if drained {
		// Cost saving: no ticking reporter while idle.
		q.stopReporterLocked()
	}
	q.mu.Unlock()
}

// Len returns the number of requests waiting for a slot.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Active returns the number of requests currently running.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// RejectCount returns the monotonically non-decreasing count of rejected
// requests since start (or the last explicit reset).
func (q *Queue) RejectCount() uint64 {
	return q.rejectCount.Load()
}

// ResetRejectCount zeroes the reject counter. Operator action only; nothing
// in the pipeline resets it.
func (q *Queue) ResetRejectCount() {
	q.rejectCount.Store(0)
}

// SnapshotState returns all counters in one consistent view.
func (q *Queue) SnapshotState() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Active:         q.active,
		Pending:        len(q.waiters),
		MaxConcurrency: q.maxConcurrency,
		MaxQueueLength: q.maxQueueLength,
		RejectCount:    q.rejectCount.Load(),
	}
}

// Close cancels running task contexts, drops all waiters, and blocks until
// running tasks return. The queue rejects everything afterwards.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.waiters = nil
	q.stopReporterLocked()
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
