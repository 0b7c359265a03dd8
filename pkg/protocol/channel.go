package protocol

import (
	"github.com/firefly-protocol/firefly-go/pkg/log"
)

// Channel is one logical stream within a Connection.
//
// Send, SendImportant and Close are safe from any goroutine. Every other
// method reads consumer-owned state.
type Channel struct {
	conn      *Connection
	localID   ChannelID
	remoteID  ChannelID
	state     ChannelState
	direction Direction

	// currentSeqno is the seqno of the last important send.
	currentSeqno int32
	// remoteSeqno is the highest important seqno accepted from the peer.
	remoteSeqno int32
	// importantID is the ticket of the outstanding important send.
	importantID Ticket
	// pending holds important payloads waiting for importantID to clear.
	pending [][]byte

	onRejected  func(*Connection)
	closeQueued bool
	wasOpen     bool
}

func newChannel(conn *Connection, id ChannelID, dir Direction) *Channel {
	return &Channel{
		conn:      conn,
		localID:   id,
		remoteID:  ChannelIDNotSet,
		state:     ChannelNew,
		direction: dir,
	}
}

// LocalID returns the id assigned by this side.
func (ch *Channel) LocalID() ChannelID { return ch.localID }

// RemoteID returns the peer's id, or ChannelIDNotSet during the handshake.
func (ch *Channel) RemoteID() ChannelID { return ch.remoteID }

// State returns the handshake state.
func (ch *Channel) State() ChannelState { return ch.state }

// Direction reports which side opened the channel.
func (ch *Channel) Direction() Direction { return ch.direction }

// Connection returns the owning connection.
func (ch *Channel) Connection() *Connection { return ch.conn }

// CurrentSeqno returns the seqno of the most recent important send.
func (ch *Channel) CurrentSeqno() int32 { return ch.currentSeqno }

// RemoteSeqno returns the highest important seqno accepted from the peer.
func (ch *Channel) RemoteSeqno() int32 { return ch.remoteSeqno }

// ImportantID returns the outstanding important ticket, or 0.
func (ch *Channel) ImportantID() Ticket { return ch.importantID }

// PendingImportant returns the number of deferred important payloads.
func (ch *Channel) PendingImportant() int { return len(ch.pending) }

// Send posts a best-effort payload.
func (ch *Channel) Send(payload []byte) error {
	return ch.postSend(payload, false)
}

// SendImportant posts a payload that is retransmitted until acknowledged
// and delivered to the peer application at most once.
func (ch *Channel) SendImportant(payload []byte) error {
	return ch.postSend(payload, true)
}

// Close sends ChannelClose to the peer and frees the channel. The peer
// does not acknowledge the close.
func (ch *Channel) Close() error {
	ev := ChannelCloseEvent{Conn: ch.conn, ID: ch.localID}
	return ch.conn.sink.Add(ev, ev.Priority())
}

func (ch *Channel) postSend(payload []byte, important bool) error {
	if err := ch.conn.requireOpen(); err != nil {
		return err
	}
	ev := SendSample{
		Conn:      ch.conn,
		ID:        ch.localID,
		Payload:   append([]byte(nil), payload...),
		Important: important,
	}
	return ch.conn.sink.Add(ev, ev.Priority())
}

// usable reports whether data may flow on the channel.
func (ch *Channel) usable() bool {
	if ch.remoteID == ChannelIDNotSet {
		return false
	}
	return ch.state != ChannelClosing && ch.state != ChannelClosed
}

func (ch *Channel) setState(s ChannelState, reason string) {
	if ch.state == s {
		return
	}
	ch.conn.tracer.State(log.StateEntityChannel, int32(ch.localID), ch.state.String(), s.String(), reason)
	ch.state = s
}
