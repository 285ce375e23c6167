// Package task implements the single-threaded cooperative task runner that
// serialises every operation in the mDNS, DNS-SD, and QUIC protocol layers.
//
// This is the L0 layer of the stack: one goroutine drains a FIFO queue of
// immediate tasks and a min-heap of delayed tasks, in that priority order.
// Every other package posts work here instead of spawning goroutines or
// taking locks, which is what lets the invariants in the layers above be
// stated without "concurrently with what?" caveats.
package task

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Func is a unit of work posted to the [Runner].
type Func func()

// Runner is a single-threaded cooperative task runner.
//
// Zero value is not usable; construct with [New]. A Runner must only be
// driven by one goroutine calling [Runner.RunUntilStopped]; [Runner.PostTask]
// and [Runner.PostTaskWithDelay] are safe to call from any goroutine.
type Runner struct {
	now func() time.Time

	mu      sync.Mutex
	ready   []Func
	delayed delayedQueue
	wake    chan struct{}
	stopped bool
	seq     uint64
}

// Option configures a [Runner] at construction time.
type Option func(*Runner)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New constructs a [Runner] ready to accept tasks. Call
// [Runner.RunUntilStopped] on a dedicated goroutine to start draining it.
func New(opts ...Option) *Runner {
	r := &Runner{
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	heap.Init(&r.delayed)
	return r
}

// PostTask schedules f to run as soon as possible, after any tasks already
// queued. Safe to call from any goroutine, including from within a task
// callback itself.
func (r *Runner) PostTask(f Func) {
	r.mu.Lock()
	r.ready = append(r.ready, f)
	r.mu.Unlock()
	r.signal()
}

// PostTaskWithDelay schedules f to run no sooner than now+delay. Two tasks
// scheduled for the same deadline run in the order they were posted.
func (r *Runner) PostTaskWithDelay(f Func, delay time.Duration) {
	r.mu.Lock()
	r.seq++
	heap.Push(&r.delayed, delayedTask{
		deadline: r.now().Add(delay),
		seq:      r.seq,
		f:        f,
	})
	r.mu.Unlock()
	r.signal()
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RunUntilStopped drains the task queue until ctx is cancelled or
// [Runner.RequestStopSoon] is called. It must be invoked from exactly one
// goroutine; this is the thread that "owns" L1–L5.
func (r *Runner) RunUntilStopped(ctx context.Context) {
	for {
		f, waitFor, ok := r.next()
		if !ok {
			return
		}
		if f != nil {
			f()
			continue
		}

		// No ready task. Block until a new task arrives, the next
		// delayed deadline elapses, or the context ends.
		var timer *time.Timer
		var timerC <-chan time.Time
		if waitFor >= 0 {
			timer = time.NewTimer(waitFor)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-r.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// RequestStopSoon asks a running [Runner.RunUntilStopped] loop to return
// once the current task (if any) completes and no further ready task is
// queued for this tick. It does not drop already-posted tasks; callers
// that need a hard stop should cancel the context instead.
func (r *Runner) RequestStopSoon() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.signal()
}

// next returns the next ready task to run, or (nil, waitFor, true) if the
// runner should block for waitFor (negative meaning "no delayed task
// pending"), or (nil, 0, false) if the runner should stop.
func (r *Runner) next() (Func, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ready) > 0 {
		f := r.ready[0]
		r.ready = r.ready[1:]
		return f, 0, true
	}

	now := r.now()
	for r.delayed.Len() > 0 && r.delayed[0].deadline.Compare(now) <= 0 {
		dt := heap.Pop(&r.delayed).(delayedTask)
		return dt.f, 0, true
	}

	if r.stopped {
		return nil, 0, false
	}

	if r.delayed.Len() == 0 {
		return nil, -1, true
	}
	return nil, r.delayed[0].deadline.Sub(now), true
}

type delayedTask struct {
	deadline time.Time
	seq      uint64
	f        Func
}

// delayedQueue is a min-heap ordered by (deadline, insertion sequence), so
// that two tasks with an identical deadline preserve insertion order per
// the task runner's documented ordering guarantee.
type delayedQueue []delayedTask

func (q delayedQueue) Len() int { return len(q) }

func (q delayedQueue) Less(i, j int) bool {
	if !q[i].deadline.Equal(q[j].deadline) {
		return q[i].deadline.Before(q[j].deadline)
	}
	return q[i].seq < q[j].seq
}

func (q delayedQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *delayedQueue) Push(x any) {
	*q = append(*q, x.(delayedTask))
}

func (q *delayedQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
