package engine

import (
	"sync"

	"github.com/ledgerline/inappkit/internal/bus"
	"github.com/ledgerline/inappkit/internal/proposition"
)

// task wraps the two kinds of work the loop processes: an inbound bus
// event, or the registration of a new personalization request. Exactly one
// field is non-nil.
type task struct {
	event *bus.Event
	track *trackRequest
}

// trackRequest registers a fetch with the reconciler before any of its
// notifications can arrive.
type trackRequest struct {
	id         string
	surfaces   []proposition.Surface
	onComplete func(success bool)
}

// taskQueue is a thread-safe FIFO queue feeding the Run loop.
//
// The queue is unbounded: a completion that dispatches follow-on events
// must never block the loop that will eventually drain them.
//
// Thread-safety covers external enqueuing (bus listeners, API callers)
// while the single Run goroutine dequeues. The signal channel enables
// context-aware waiting so the loop never hangs past cancellation.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{} // buffered size 1, coalesces wakeups
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (task{}, false) if the queue is empty.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the dequeued task's pointers (event payloads,
	// callbacks) become collectable before the array is reallocated.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available.
// Use with select alongside ctx.Done(), then TryDequeue.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close marks the queue closed and wakes all waiters.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
