package protocol

import (
	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// Event is one unit of protocol work. The set of events is closed; Dispatch
// handles every variant.
type Event interface {
	// Priority is the queue priority the event is posted with.
	Priority() eventqueue.Priority

	// Connection is the connection the event acts on, or nil.
	Connection() *Connection

	isEvent()
}

// ConnectionOpen announces a new connection.
type ConnectionOpen struct {
	Conn *Connection
}

// ConnectionClose drains the channels of a closing connection. It re-posts
// itself with Retry set until no channel is left. Retries run at LOW so
// the channel closes queued before them execute first.
type ConnectionClose struct {
	Conn  *Connection
	Retry bool
}

// ChannelOpenEvent creates an outbound channel and sends its ChannelRequest.
type ChannelOpenEvent struct {
	Conn       *Connection
	ID         ChannelID
	OnRejected func(*Connection)
}

// ChannelCloseEvent sends ChannelClose for a local channel and schedules
// its removal. It is posted at LOW so that sends queued before it on the
// same channel are written first.
type ChannelCloseEvent struct {
	Conn *Connection
	ID   ChannelID
}

// ChannelClosedEvent notifies the handler and frees a channel. Remote is
// set when the peer sent the ChannelClose. Like ChannelCloseEvent it runs
// at LOW, behind samples received before the close.
type ChannelClosedEvent struct {
	Conn   *Connection
	ID     ChannelID
	Remote bool
}

// ChannelRequestReceived carries a decoded ChannelRequest.
type ChannelRequestReceived struct {
	Conn   *Connection
	Record wire.ChannelRequest
}

// ChannelResponseReceived carries a decoded ChannelResponse.
type ChannelResponseReceived struct {
	Conn   *Connection
	Record wire.ChannelResponse
}

// ChannelAckReceived carries a decoded ChannelAck.
type ChannelAckReceived struct {
	Conn   *Connection
	Record wire.ChannelAck
}

// SendSample sends an application payload on a channel.
type SendSample struct {
	Conn      *Connection
	ID        ChannelID
	Payload   []byte
	Important bool
}

// RecvSample carries a decoded DataSample.
type RecvSample struct {
	Conn   *Connection
	Record wire.DataSample
}

// AckReceived carries a decoded Ack.
type AckReceived struct {
	Conn   *Connection
	Record wire.Ack
}

// TransportTask runs transport-owned work on the consumer goroutine, such
// as dispatching a datagram or tearing down a port. Conn may be nil.
type TransportTask struct {
	Conn *Connection
	Name string
	Prio eventqueue.Priority
	Run  func() error
}

func (ConnectionOpen) Priority() eventqueue.Priority          { return eventqueue.PriorityHigh }
func (ChannelOpenEvent) Priority() eventqueue.Priority        { return eventqueue.PriorityHigh }
func (ChannelCloseEvent) Priority() eventqueue.Priority       { return eventqueue.PriorityLow }
func (ChannelClosedEvent) Priority() eventqueue.Priority      { return eventqueue.PriorityLow }
func (ChannelRequestReceived) Priority() eventqueue.Priority  { return eventqueue.PriorityHigh }
func (ChannelResponseReceived) Priority() eventqueue.Priority { return eventqueue.PriorityHigh }
func (ChannelAckReceived) Priority() eventqueue.Priority      { return eventqueue.PriorityHigh }
func (SendSample) Priority() eventqueue.Priority              { return eventqueue.PriorityLow }
func (RecvSample) Priority() eventqueue.Priority              { return eventqueue.PriorityLow }
func (AckReceived) Priority() eventqueue.Priority             { return eventqueue.PriorityHigh }
func (t TransportTask) Priority() eventqueue.Priority         { return t.Prio }

func (e ConnectionClose) Priority() eventqueue.Priority {
	if e.Retry {
		return eventqueue.PriorityLow
	}
	return eventqueue.PriorityMedium
}

func (e ConnectionOpen) Connection() *Connection          { return e.Conn }
func (e ConnectionClose) Connection() *Connection         { return e.Conn }
func (e ChannelOpenEvent) Connection() *Connection        { return e.Conn }
func (e ChannelCloseEvent) Connection() *Connection       { return e.Conn }
func (e ChannelClosedEvent) Connection() *Connection      { return e.Conn }
func (e ChannelRequestReceived) Connection() *Connection  { return e.Conn }
func (e ChannelResponseReceived) Connection() *Connection { return e.Conn }
func (e ChannelAckReceived) Connection() *Connection      { return e.Conn }
func (e SendSample) Connection() *Connection              { return e.Conn }
func (e RecvSample) Connection() *Connection              { return e.Conn }
func (e AckReceived) Connection() *Connection             { return e.Conn }
func (e TransportTask) Connection() *Connection           { return e.Conn }

func (ConnectionOpen) isEvent()          {}
func (ConnectionClose) isEvent()         {}
func (ChannelOpenEvent) isEvent()        {}
func (ChannelCloseEvent) isEvent()       {}
func (ChannelClosedEvent) isEvent()      {}
func (ChannelRequestReceived) isEvent()  {}
func (ChannelResponseReceived) isEvent() {}
func (ChannelAckReceived) isEvent()      {}
func (SendSample) isEvent()              {}
func (RecvSample) isEvent()              {}
func (AckReceived) isEvent()             {}
func (TransportTask) isEvent()           {}
