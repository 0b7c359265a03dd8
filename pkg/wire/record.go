package wire

import (
	"fmt"
)

// ChannelIDNotSet marks a channel id that has not been assigned.
const ChannelIDNotSet int32 = -1

// RecordType identifies the record carried in an envelope.
type RecordType uint8

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeChannelRequest
	RecordTypeChannelResponse
	RecordTypeChannelAck
	RecordTypeChannelClose
	RecordTypeDataSample
	RecordTypeAck
)

// String returns the record type name.
func (t RecordType) String() string {
	switch t {
	case RecordTypeChannelRequest:
		return "CHANNEL_REQUEST"
	case RecordTypeChannelResponse:
		return "CHANNEL_RESPONSE"
	case RecordTypeChannelAck:
		return "CHANNEL_ACK"
	case RecordTypeChannelClose:
		return "CHANNEL_CLOSE"
	case RecordTypeDataSample:
		return "DATA_SAMPLE"
	case RecordTypeAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if t names a known record.
func (t RecordType) IsValid() bool {
	return t >= RecordTypeChannelRequest && t <= RecordTypeAck
}

// Record is implemented by every wire record.
type Record interface {
	// RecordType returns the envelope type of the record.
	RecordType() RecordType

	// Validate checks field-level constraints.
	Validate() error
}

// ChannelRequest asks the peer to open a channel.
//
// CBOR encoding:
//
//	{
//	  1: sourceChanId,  // int32: initiator's local id
//	  2: destChanId     // int32: ChannelIDNotSet
//	}
type ChannelRequest struct {
	SourceChanID int32 `cbor:"1,keyasint"`
	DestChanID   int32 `cbor:"2,keyasint"`
}

// RecordType implements Record.
func (*ChannelRequest) RecordType() RecordType { return RecordTypeChannelRequest }

// Validate implements Record.
func (r *ChannelRequest) Validate() error {
	if r.SourceChanID < 0 {
		return fmt.Errorf("channel request: invalid source channel %d", r.SourceChanID)
	}
	return nil
}

// ChannelResponse answers a ChannelRequest.
// A rejecting responder sets SourceChanID to ChannelIDNotSet.
//
// CBOR encoding:
//
//	{
//	  1: sourceChanId,  // int32: responder's local id or ChannelIDNotSet
//	  2: destChanId,    // int32: initiator's local id
//	  3: ack            // bool: true = accepted
//	}
type ChannelResponse struct {
	SourceChanID int32 `cbor:"1,keyasint"`
	DestChanID   int32 `cbor:"2,keyasint"`
	Ack          bool  `cbor:"3,keyasint"`
}

// RecordType implements Record.
func (*ChannelResponse) RecordType() RecordType { return RecordTypeChannelResponse }

// Validate implements Record.
func (r *ChannelResponse) Validate() error {
	if r.DestChanID < 0 {
		return fmt.Errorf("channel response: invalid destination channel %d", r.DestChanID)
	}
	if r.Ack && r.SourceChanID < 0 {
		return fmt.Errorf("channel response: accepted without source channel")
	}
	return nil
}

// ChannelAck completes the channel handshake.
//
// CBOR encoding:
//
//	{
//	  1: sourceChanId,  // int32
//	  2: destChanId     // int32
//	}
type ChannelAck struct {
	SourceChanID int32 `cbor:"1,keyasint"`
	DestChanID   int32 `cbor:"2,keyasint"`
}

// RecordType implements Record.
func (*ChannelAck) RecordType() RecordType { return RecordTypeChannelAck }

// Validate implements Record.
func (r *ChannelAck) Validate() error {
	if r.DestChanID < 0 {
		return fmt.Errorf("channel ack: invalid destination channel %d", r.DestChanID)
	}
	return nil
}

// ChannelClose tells the peer that a channel is gone.
//
// CBOR encoding:
//
//	{
//	  1: sourceChanId,  // int32
//	  2: destChanId     // int32
//	}
type ChannelClose struct {
	SourceChanID int32 `cbor:"1,keyasint"`
	DestChanID   int32 `cbor:"2,keyasint"`
}

// RecordType implements Record.
func (*ChannelClose) RecordType() RecordType { return RecordTypeChannelClose }

// Validate implements Record.
func (r *ChannelClose) Validate() error {
	if r.DestChanID < 0 {
		return fmt.Errorf("channel close: invalid destination channel %d", r.DestChanID)
	}
	return nil
}

// DataSample carries an application payload on a channel.
//
// CBOR encoding:
//
//	{
//	  1: srcChanId,   // int32
//	  2: destChanId,  // int32
//	  3: seqno,       // int32: 1..MaxInt32 when important, else 0
//	  4: important,   // bool
//	  5: payload      // bytes
//	}
type DataSample struct {
	SrcChanID  int32  `cbor:"1,keyasint"`
	DestChanID int32  `cbor:"2,keyasint"`
	Seqno      int32  `cbor:"3,keyasint"`
	Important  bool   `cbor:"4,keyasint"`
	Payload    []byte `cbor:"5,keyasint"`
}

// RecordType implements Record.
func (*DataSample) RecordType() RecordType { return RecordTypeDataSample }

// Validate implements Record.
func (r *DataSample) Validate() error {
	if r.DestChanID < 0 {
		return fmt.Errorf("data sample: invalid destination channel %d", r.DestChanID)
	}
	if r.Important && r.Seqno <= 0 {
		return fmt.Errorf("data sample: important sample with seqno %d", r.Seqno)
	}
	return nil
}

// Ack acknowledges an important DataSample.
//
// CBOR encoding:
//
//	{
//	  1: srcChanId,   // int32
//	  2: destChanId,  // int32
//	  3: seqno        // int32
//	}
type Ack struct {
	SrcChanID  int32 `cbor:"1,keyasint"`
	DestChanID int32 `cbor:"2,keyasint"`
	Seqno      int32 `cbor:"3,keyasint"`
}

// RecordType implements Record.
func (*Ack) RecordType() RecordType { return RecordTypeAck }

// Validate implements Record.
func (r *Ack) Validate() error {
	if r.DestChanID < 0 {
		return fmt.Errorf("ack: invalid destination channel %d", r.DestChanID)
	}
	if r.Seqno <= 0 {
		return fmt.Errorf("ack: invalid seqno %d", r.Seqno)
	}
	return nil
}

// newRecord returns a zero record for t, or nil for unknown types.
func newRecord(t RecordType) Record {
	switch t {
	case RecordTypeChannelRequest:
		return &ChannelRequest{}
	case RecordTypeChannelResponse:
		return &ChannelResponse{}
	case RecordTypeChannelAck:
		return &ChannelAck{}
	case RecordTypeChannelClose:
		return &ChannelClose{}
	case RecordTypeDataSample:
		return &DataSample{}
	case RecordTypeAck:
		return &Ack{}
	default:
		return nil
	}
}
