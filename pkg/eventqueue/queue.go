package eventqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Priority orders events across classes. Higher values drain first.
type Priority uint8

const (
	// PriorityLow is used for application data and for channel teardown,
	// which must stay ordered behind that data.
	PriorityLow Priority = iota

	// PriorityMedium is used for connection teardown.
	PriorityMedium

	// PriorityHigh is used for handshake and acknowledgment traffic.
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Queue errors.
var (
	// ErrQueueFull is returned by Add when the configured capacity is reached.
	// The event is not enqueued and remains owned by the caller.
	ErrQueueFull = errors.New("event queue full")

	// ErrQueueClosed is returned by Add after Close.
	ErrQueueClosed = errors.New("event queue closed")
)

// Executor runs one event. It is only ever called from the consumer.
type Executor[E any] func(event E) error

// Observer receives queue statistics. Implementations must be safe for
// concurrent use because EventQueued is called from producer goroutines.
type Observer interface {
	// EventQueued is called after an event was added.
	EventQueued(prio Priority, depth int)

	// EventExecuted is called after an event was executed.
	EventExecuted(prio Priority, elapsed time.Duration, err error)
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	capacity int
	observer Observer
	onError  func(event any, err error)
}

// WithCapacity bounds the number of pending events. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithObserver installs a statistics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithErrorHandler installs a callback for executor errors.
// The failed event is passed as any; callers type-assert it to E.
func WithErrorHandler(fn func(event any, err error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// Queue is a priority-ordered event queue with FIFO order within a priority.
// Add is safe for concurrent use. Pop, Execute, Run and Drain must only be
// called from a single consumer goroutine.
type Queue[E any] struct {
	exec Executor[E]
	opts options

	mu     sync.Mutex
	heap   eventHeap[E]
	seq    uint64
	closed bool

	// notify has capacity 1 and is signalled whenever the queue goes from
	// empty to non-empty or is closed.
	notify chan struct{}
}

// New creates an empty queue whose events are executed by exec.
func New[E any](exec Executor[E], opts ...Option) *Queue[E] {
	q := &Queue[E]{
		exec:   exec,
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(&q.opts)
	}
	return q
}

// Add inserts event after every pending event whose priority is greater
// than or equal to prio.
func (q *Queue[E]) Add(event E, prio Priority) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.opts.capacity > 0 && q.heap.Len() >= q.opts.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	q.heap.push(entry[E]{event: event, prio: prio, seq: q.seq})
	depth := q.heap.Len()
	q.mu.Unlock()

	q.signal()
	if q.opts.observer != nil {
		q.opts.observer.EventQueued(prio, depth)
	}
	return nil
}

// Pop removes and returns the next event. The boolean is false when the
// queue is empty.
func (q *Queue[E]) Pop() (E, bool) {
	e, ok := q.popEntry()
	return e.event, ok
}

func (q *Queue[E]) popEntry() (entry[E], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return entry[E]{}, false
	}
	return q.heap.pop(), true
}

// Execute runs event through the executor. Errors are reported to the
// error handler; the event is discarded either way. The event never went
// through Add, so it has no priority and the observer is not told.
func (q *Queue[E]) Execute(event E) {
	q.run(event)
}

// execute runs a popped entry and reports it to the observer.
func (q *Queue[E]) execute(e entry[E]) {
	start := time.Now()
	err := q.run(e.event)
	if q.opts.observer != nil {
		q.opts.observer.EventExecuted(e.prio, time.Since(start), err)
	}
}

func (q *Queue[E]) run(event E) error {
	err := q.exec(event)
	if err != nil && q.opts.onError != nil {
		q.opts.onError(event, err)
	}
	return err
}

// Len returns the number of pending events.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Drain executes events on the calling goroutine until the queue is empty,
// including events added by the executed events themselves. It returns the
// number of events executed.
func (q *Queue[E]) Drain() int {
	n := 0
	for {
		e, ok := q.popEntry()
		if !ok {
			return n
		}
		q.execute(e)
		n++
	}
}

// Run consumes events until ctx is cancelled or the queue is closed and
// empty. It returns ctx.Err() on cancellation and nil after Close.
func (q *Queue[E]) Run(ctx context.Context) error {
	for {
		q.Drain()

		q.mu.Lock()
		done := q.closed && q.heap.Len() == 0
		q.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// Close rejects further events and wakes Run. Pending events are still
// executed by Run or Drain.
func (q *Queue[E]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[E]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
