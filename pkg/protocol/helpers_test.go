package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// written is one record handed to the transport.
type written struct {
	rec       wire.Record
	important bool
	ticket    Ticket
}

// fakeTransport records writes and optionally loops them into a peer
// connection. Ack and Release go through mock.Mock.
type fakeTransport struct {
	mock.Mock

	t          *testing.T
	mu         sync.Mutex
	writes     []written
	nextTicket Ticket
	peer       *Connection
	writeErr   error
	zeroTicket bool
}

func newFakeTransport(t *testing.T) *fakeTransport {
	tr := &fakeTransport{t: t}
	tr.On("Ack", mock.Anything, mock.Anything).Return()
	tr.On("Release", mock.Anything).Return()
	return tr
}

func (tr *fakeTransport) Write(conn *Connection, data []byte, important bool) (Ticket, error) {
	if tr.writeErr != nil {
		return 0, tr.writeErr
	}
	rec, _, err := wire.Decode(data)
	require.NoError(tr.t, err)

	tr.mu.Lock()
	var ticket Ticket
	if important && !tr.zeroTicket {
		tr.nextTicket++
		ticket = tr.nextTicket
	}
	tr.writes = append(tr.writes, written{rec: rec, important: important, ticket: ticket})
	peer := tr.peer
	tr.mu.Unlock()

	if peer != nil {
		_ = peer.DataReceived(data)
	}
	return ticket, nil
}

func (tr *fakeTransport) Ack(conn *Connection, ticket Ticket) {
	tr.Called(conn, ticket)
}

func (tr *fakeTransport) Release(conn *Connection) {
	tr.Called(conn)
}

// Writes returns the records written so far.
func (tr *fakeTransport) Writes() []written {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]written(nil), tr.writes...)
}

// Last returns the most recent write.
func (tr *fakeTransport) Last() written {
	w := tr.Writes()
	require.NotEmpty(tr.t, w, "no records written")
	return w[len(w)-1]
}

// OfType returns the written records of one type.
func (tr *fakeTransport) OfType(rt wire.RecordType) []written {
	var out []written
	for _, w := range tr.Writes() {
		if w.rec.RecordType() == rt {
			out = append(out, w)
		}
	}
	return out
}

// recordingHandler captures application callbacks.
type recordingHandler struct {
	reject    bool
	opened    []*Channel
	closed    []*Channel
	requested []*Channel
	rejected  int
	data      [][]byte
	dataChans []ChannelID
}

func (h *recordingHandler) OnChannelOpened(ch *Channel) { h.opened = append(h.opened, ch) }
func (h *recordingHandler) OnChannelClosed(ch *Channel) { h.closed = append(h.closed, ch) }
func (h *recordingHandler) OnChannelRejected(*Connection) {
	h.rejected++
}

func (h *recordingHandler) OnChannelRecv(ch *Channel) bool {
	h.requested = append(h.requested, ch)
	return !h.reject
}

func (h *recordingHandler) OnChannelData(ch *Channel, payload []byte) {
	h.data = append(h.data, payload)
	h.dataChans = append(h.dataChans, ch.LocalID())
}

// countingMetrics counts protocol errors by kind.
type countingMetrics struct {
	NoopMetrics
	mu        sync.Mutex
	errors    map[string]int
	sent      int
	acked     int
	deferred  int
	duplicate int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) ProtocolError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) ImportantSent()     { m.sent++ }
func (m *countingMetrics) ImportantAcked()    { m.acked++ }
func (m *countingMetrics) ImportantDeferred() { m.deferred++ }
func (m *countingMetrics) DuplicateSample()   { m.duplicate++ }

func (m *countingMetrics) Errors(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

// harness is one connection driven by a queue drained on the test goroutine.
type harness struct {
	t       *testing.T
	q       *eventqueue.Queue[Event]
	tr      *fakeTransport
	h       *recordingHandler
	metrics *countingMetrics
	conn    *Connection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	q := eventqueue.New[Event](Dispatch)
	return newHarnessOn(t, q)
}

func newHarnessOn(t *testing.T, q *eventqueue.Queue[Event]) *harness {
	t.Helper()
	hs := &harness{
		t:       t,
		q:       q,
		tr:      newFakeTransport(t),
		h:       &recordingHandler{},
		metrics: newCountingMetrics(),
	}
	cfg := DefaultConnectionConfig()
	cfg.Metrics = hs.metrics
	hs.conn = NewConnection(q, hs.tr, hs.h, cfg)
	hs.drain()
	return hs
}

func (hs *harness) drain() {
	hs.q.Drain()
}

// deliver feeds one record into the connection and runs the queue.
func (hs *harness) deliver(r wire.Record) {
	hs.t.Helper()
	data, err := wire.Encode(r)
	require.NoError(hs.t, err)
	require.NoError(hs.t, hs.conn.DataReceived(data))
	hs.drain()
}

// openOutbound completes an initiator handshake with the given remote id.
func (hs *harness) openOutbound(remote ChannelID) *Channel {
	hs.t.Helper()
	id, err := hs.conn.OpenChannel()
	require.NoError(hs.t, err)
	hs.drain()
	hs.deliver(&wire.ChannelResponse{SourceChanID: int32(remote), DestChanID: int32(id), Ack: true})
	ch := hs.conn.Channel(id)
	require.NotNil(hs.t, ch)
	require.Equal(hs.t, ChannelOpen, ch.State())
	return ch
}

// newPair links two connections over one queue.
func newPair(t *testing.T) (a, b *harness) {
	t.Helper()
	q := eventqueue.New[Event](Dispatch)
	a = newHarnessOn(t, q)
	b = newHarnessOn(t, q)
	a.tr.peer = b.conn
	b.tr.peer = a.conn
	return a, b
}
