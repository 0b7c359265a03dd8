package protocol

import "github.com/firefly-protocol/firefly-go/pkg/eventqueue"

// Transport carries encoded records to the peer of a connection.
// Methods are called on the event consumer goroutine and must not block.
type Transport interface {
	// Write sends one encoded record. When important is set the transport
	// keeps retransmitting it until Ack is called with the returned ticket,
	// which must be nonzero.
	Write(conn *Connection, data []byte, important bool) (Ticket, error)

	// Ack cancels retransmission of an important write.
	Ack(conn *Connection, ticket Ticket)

	// Release is called once the connection is CLOSED.
	Release(conn *Connection)
}

// Handler receives channel lifecycle and data callbacks. Callbacks run on
// the event consumer goroutine.
type Handler interface {
	// OnChannelOpened is called once per channel when the handshake completes.
	OnChannelOpened(ch *Channel)

	// OnChannelClosed is called before a channel is freed.
	OnChannelClosed(ch *Channel)

	// OnChannelRecv decides whether a channel requested by the peer is accepted.
	OnChannelRecv(ch *Channel) bool

	// OnChannelRejected is called when the peer rejects a locally opened channel.
	OnChannelRejected(conn *Connection)

	// OnChannelData delivers a payload. Important payloads are delivered once.
	OnChannelData(ch *Channel, payload []byte)
}

// HandlerFuncs implements Handler with optional funcs. A nil Recv accepts
// every channel.
type HandlerFuncs struct {
	Opened   func(ch *Channel)
	Closed   func(ch *Channel)
	Recv     func(ch *Channel) bool
	Rejected func(conn *Connection)
	Data     func(ch *Channel, payload []byte)
}

func (h HandlerFuncs) OnChannelOpened(ch *Channel) {
	if h.Opened != nil {
		h.Opened(ch)
	}
}

func (h HandlerFuncs) OnChannelClosed(ch *Channel) {
	if h.Closed != nil {
		h.Closed(ch)
	}
}

func (h HandlerFuncs) OnChannelRecv(ch *Channel) bool {
	if h.Recv == nil {
		return true
	}
	return h.Recv(ch)
}

func (h HandlerFuncs) OnChannelRejected(conn *Connection) {
	if h.Rejected != nil {
		h.Rejected(conn)
	}
}

func (h HandlerFuncs) OnChannelData(ch *Channel, payload []byte) {
	if h.Data != nil {
		h.Data(ch, payload)
	}
}

var _ Handler = HandlerFuncs{}

// EventSink accepts events for later execution by Dispatch.
// *eventqueue.Queue[Event] satisfies it.
type EventSink interface {
	Add(ev Event, prio eventqueue.Priority) error
}

// Metrics receives protocol counters. pkg/metrics provides a Prometheus
// implementation.
type Metrics interface {
	ChannelOpened()
	// ChannelClosed is reported only for channels that reached OPEN.
	ChannelClosed()
	ImportantSent()
	ImportantDeferred()
	ImportantAcked()
	DuplicateSample()
	ProtocolError(kind string)
}

// NoopMetrics discards all counters.
type NoopMetrics struct{}

func (NoopMetrics) ChannelOpened()       {}
func (NoopMetrics) ChannelClosed()       {}
func (NoopMetrics) ImportantSent()       {}
func (NoopMetrics) ImportantDeferred()   {}
func (NoopMetrics) ImportantAcked()      {}
func (NoopMetrics) DuplicateSample()     {}
func (NoopMetrics) ProtocolError(string) {}

var _ Metrics = NoopMetrics{}
