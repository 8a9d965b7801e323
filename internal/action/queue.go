package action

import (
	"log/slog"
	"sync"
)

// Runnable is a unit of work the manager executes.
type Runnable interface {
	Execute(p Policy, m *Metrics, l *slog.Logger)
}

// RunnableFunc adapts a bare update function to Runnable. It runs without
// policy involvement.
type RunnableFunc func()

func (f RunnableFunc) Execute(Policy, *Metrics, *slog.Logger) { f() }

// runQueue is a thread-safe FIFO of pending work plus the single-flight
// flag that says whether some goroutine is currently draining it.
//
// The queue is unbounded so that work enqueued from inside a running action
// never blocks.
type runQueue struct {
	mu      sync.Mutex
	items   []Runnable
	running bool
	closed  bool
	idle    chan struct{} // closed whenever running is false
}

func newRunQueue() *runQueue {
	idle := make(chan struct{})
	close(idle)
	return &runQueue{
		items: make([]Runnable, 0, 16),
		idle:  idle,
	}
}

// Push appends r. start reports whether the caller must drain the queue;
// ok is false if the queue is closed.
func (q *runQueue) Push(r Runnable) (start, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, false
	}
	q.items = append(q.items, r)
	if q.running {
		return false, true
	}
	q.running = true
	q.idle = make(chan struct{})
	return true, true
}

// Pop removes the front item. When the queue is empty it atomically marks
// it idle and returns false, so a concurrent Push takes over draining.
func (q *runQueue) Pop() (Runnable, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.setIdleLocked()
		return nil, false
	}

	r := q.items[0]
	// Nil out the slot so the array does not retain finished work.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// abandon marks the queue idle after a drainer panicked. Remaining items
// are drained by the next Push.
func (q *runQueue) abandon() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setIdleLocked()
}

func (q *runQueue) setIdleLocked() {
	if q.running {
		q.running = false
		close(q.idle)
	}
}

// Idle returns a channel closed once no goroutine is draining.
func (q *runQueue) Idle() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// Len returns the number of pending items.
func (q *runQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Running reports whether a drainer is active.
func (q *runQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Close rejects further pushes. Pending items still drain.
func (q *runQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
