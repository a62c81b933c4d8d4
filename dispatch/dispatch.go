// Package dispatch moves callbacks from I/O goroutines to the goroutine
// that owns application state.
//
// The server never calls application code directly from a connection's
// read loop. Every event is posted to a Dispatcher instead: Queue buffers
// events without bound and runs them in order on whichever goroutine calls
// Run, Inline runs them on the posting goroutine.
//
//	q := dispatch.NewQueue()
//	srv := server.New(cfg, app, server.WithDispatcher(q))
//
//	go q.Run(ctx)
package dispatch

import (
	"context"
	"sync"
)

// Dispatcher accepts callbacks for later execution.
type Dispatcher interface {
	Post(fn func())
}

// Inline runs each callback immediately on the posting goroutine.
type Inline struct{}

// Post calls fn.
func (Inline) Post(fn func()) {
	fn()
}

// Queue is an unbounded FIFO of callbacks. Post never blocks, so a slow
// consumer cannot stall the connection that produced an event.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post appends fn to the queue. Callbacks posted after Close are dropped.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of pending callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs pending callbacks on the calling goroutine until the queue is
// empty, including callbacks posted while draining. It returns the number
// of callbacks run.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		if len(tasks) == 0 {
			return n
		}
		for _, fn := range tasks {
			fn()
		}
		n += len(tasks)
	}
}

// Run executes callbacks as they arrive until ctx is done. Callbacks still
// pending at that point are run before Run returns ctx.Err().
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.Drain()

		select {
		case <-ctx.Done():
			q.Drain()
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops accepting callbacks. Pending callbacks are kept and can
// still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
