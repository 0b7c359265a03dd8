// Package eventqueue provides the priority-ordered work queue that
// serializes all protocol state changes.
//
// Any goroutine may add events. Exactly one goroutine consumes them, either
// by calling Run or by calling Drain from a single-threaded host. Events with
// a higher Priority are executed first; events of equal priority are executed
// in the order they were added.
//
// # Basic Usage
//
//	q := eventqueue.New(protocol.Dispatch,
//	    eventqueue.WithCapacity(1024),
//	    eventqueue.WithErrorHandler(func(ev protocol.Event, err error) {
//	        slog.Warn("event failed", "error", err)
//	    }),
//	)
//	go q.Run(ctx)
//
//	_ = q.Add(ev, eventqueue.PriorityHigh)
//
// The queue never inspects events. Dispatch to a concrete handler is the job
// of the Executor supplied at construction.
package eventqueue
