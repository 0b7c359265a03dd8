package protocol

import (
	"math"

	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// ChannelID identifies a channel on one side of a connection.
type ChannelID int32

// ChannelIDNotSet marks a remote id the handshake has not assigned yet.
const ChannelIDNotSet = ChannelID(wire.ChannelIDNotSet)

// MaxSeqno is the largest important sequence number. The next one after it
// is 1; 0 means no important payload has been assigned.
const MaxSeqno int32 = math.MaxInt32

// Ticket is the transport's handle for an important write. Zero means none.
type Ticket uint32

// nextSeqno returns the sequence number following s.
func nextSeqno(s int32) int32 {
	if s == MaxSeqno {
		return 1
	}
	return s + 1
}

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	StateOpen ConnectionState = iota
	StateClosing
	StateClosed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ChannelState is the handshake state of a Channel.
type ChannelState uint8

const (
	ChannelNew ChannelState = iota
	ChannelRequestSent
	ChannelResponseSent
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelNew:
		return "NEW"
	case ChannelRequestSent:
		return "REQUEST_SENT"
	case ChannelResponseSent:
		return "RESPONSE_SENT"
	case ChannelOpen:
		return "OPEN"
	case ChannelClosing:
		return "CLOSING"
	case ChannelClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Direction tells which side initiated a channel.
type Direction uint8

const (
	// Outbound channels were opened locally.
	Outbound Direction = iota
	// Inbound channels were requested by the peer.
	Inbound
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Inbound {
		return "INBOUND"
	}
	return "OUTBOUND"
}
