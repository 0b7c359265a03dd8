package transport

import (
	"context"
	"sync"
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/protocol"
)

// Resend is an important datagram whose deadline has passed.
type Resend struct {
	Ticket   protocol.Ticket
	Conn     *protocol.Connection
	Data     []byte
	Attempts int
}

type resendEntry struct {
	Resend
	deadline time.Time
}

// ResendQueue holds unacknowledged important datagrams ordered by
// deadline. Add, Remove and Readd are safe for concurrent use; Wait is
// meant for a single resend goroutine.
type ResendQueue struct {
	mu      sync.Mutex
	entries map[protocol.Ticket]*resendEntry
	last    protocol.Ticket
	wake    chan struct{}

	now func() time.Time
}

// NewResendQueue creates an empty queue.
func NewResendQueue() *ResendQueue {
	return &ResendQueue{
		entries: make(map[protocol.Ticket]*resendEntry),
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Add stores a copy of data, due after timeout, and returns its ticket.
// Tickets are never zero.
func (q *ResendQueue) Add(conn *protocol.Connection, data []byte, timeout time.Duration) protocol.Ticket {
	q.mu.Lock()
	q.last++
	if q.last == 0 {
		q.last = 1
	}
	for q.entries[q.last] != nil {
		q.last++
	}
	t := q.last
	q.entries[t] = &resendEntry{
		Resend: Resend{
			Ticket: t,
			Conn:   conn,
			Data:   append([]byte(nil), data...),
		},
		deadline: q.now().Add(timeout),
	}
	q.mu.Unlock()

	q.signal()
	return t
}

// Remove drops an entry. It reports whether the ticket was pending.
func (q *ResendQueue) Remove(t protocol.Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[t]; !ok {
		return false
	}
	delete(q.entries, t)
	return true
}

// RemoveConn drops every entry of a connection and returns how many.
func (q *ResendQueue) RemoveConn(conn *protocol.Connection) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for t, e := range q.entries {
		if e.Conn == conn {
			delete(q.entries, t)
			n++
		}
	}
	return n
}

// Readd counts a retransmission and schedules the next one. It returns
// false when the ticket was acknowledged in the meantime.
func (q *ResendQueue) Readd(t protocol.Ticket, timeout time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[t]
	if !ok {
		return false
	}
	e.Attempts++
	e.deadline = q.now().Add(timeout)
	return true
}

// Len returns the number of pending entries.
func (q *ResendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Wait blocks until the earliest entry is due and returns it. The entry
// stays queued; the caller must Readd or Remove it before waiting again.
// Wait returns false when ctx is done.
func (q *ResendQueue) Wait(ctx context.Context) (Resend, bool) {
	for {
		q.mu.Lock()
		next := q.earliest()
		var wait time.Duration
		if next != nil {
			wait = next.deadline.Sub(q.now())
			if wait <= 0 {
				r := next.Resend
				q.mu.Unlock()
				return r, true
			}
		}
		q.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if next != nil {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return Resend{}, false
		case <-q.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// earliest returns the entry with the nearest deadline. Callers hold mu.
func (q *ResendQueue) earliest() *resendEntry {
	var first *resendEntry
	for _, e := range q.entries {
		if first == nil || e.deadline.Before(first.deadline) ||
			(e.deadline.Equal(first.deadline) && e.Ticket < first.Ticket) {
			first = e
		}
	}
	return first
}

func (q *ResendQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
