package log

import (
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates record flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ChannelID is the local channel id, when the event concerns a channel.
	ChannelID *int32 `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Record      *RecordEvent      `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/channel state
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of record flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming record.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing record.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the datagram layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the record encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerProtocol is the connection/channel state machine.
	LayerProtocol Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerProtocol:
		return "PROTOCOL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRecord indicates a datagram or decoded record.
	CategoryRecord Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRecord:
		return "RECORD"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw datagram data at the transport layer.
type FrameEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw datagram (may be truncated for large datagrams).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Resend marks a retransmission of an important datagram.
	Resend bool `cbor:"4,keyasint,omitempty"`
}

// MaxFrameData is the number of datagram bytes kept in a FrameEvent.
const MaxFrameData = 256

// NewFrameEvent builds a FrameEvent, truncating data to MaxFrameData.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// RecordEvent captures a decoded record at the wire layer.
type RecordEvent struct {
	// Type of the record.
	Type wire.RecordType `cbor:"1,keyasint"`

	// SourceChanID is the sender's channel id.
	SourceChanID int32 `cbor:"2,keyasint"`

	// DestChanID is the receiver's channel id.
	DestChanID int32 `cbor:"3,keyasint"`

	// Seqno for DataSample and Ack records.
	Seqno *int32 `cbor:"4,keyasint,omitempty"`

	// Important is set for important DataSample records.
	Important bool `cbor:"5,keyasint,omitempty"`

	// Ack is the accept flag of a ChannelResponse.
	Ack *bool `cbor:"6,keyasint,omitempty"`

	// PayloadSize is the DataSample payload length.
	PayloadSize int `cbor:"7,keyasint,omitempty"`

	// Ticket is the transport ticket of an important send.
	Ticket uint32 `cbor:"8,keyasint,omitempty"`
}

// NewRecordEvent summarizes r for the trace.
func NewRecordEvent(r wire.Record) *RecordEvent {
	re := &RecordEvent{Type: r.RecordType()}
	switch rec := r.(type) {
	case *wire.ChannelRequest:
		re.SourceChanID, re.DestChanID = rec.SourceChanID, rec.DestChanID
	case *wire.ChannelResponse:
		re.SourceChanID, re.DestChanID = rec.SourceChanID, rec.DestChanID
		ack := rec.Ack
		re.Ack = &ack
	case *wire.ChannelAck:
		re.SourceChanID, re.DestChanID = rec.SourceChanID, rec.DestChanID
	case *wire.ChannelClose:
		re.SourceChanID, re.DestChanID = rec.SourceChanID, rec.DestChanID
	case *wire.DataSample:
		re.SourceChanID, re.DestChanID = rec.SrcChanID, rec.DestChanID
		re.Important = rec.Important
		re.PayloadSize = len(rec.Payload)
		if rec.Important {
			seqno := rec.Seqno
			re.Seqno = &seqno
		}
	case *wire.Ack:
		re.SourceChanID, re.DestChanID = rec.SrcChanID, rec.DestChanID
		seqno := rec.Seqno
		re.Seqno = &seqno
	}
	return re
}

// StateChangeEvent captures connection and channel lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityChannel indicates a channel state change.
	StateEntityChannel StateEntity = 1
	// StateEntityPort indicates a link-layer port state change.
	StateEntityPort StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityPort:
		return "PORT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
