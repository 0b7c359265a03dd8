// Package wire defines the CBOR wire format for firefly protocol records.
//
// Every datagram carries exactly one record. A record is wrapped in an
// envelope that names its type:
//
//	{
//	  1: recordType,   // uint8, see RecordType
//	  2: body          // the record, a CBOR map with integer keys
//	}
//
// # Record Types
//
// Channel control:
//   - ChannelRequest: open a channel (initiator to responder)
//   - ChannelResponse: accept or reject an open request
//   - ChannelAck: complete the three-step handshake
//   - ChannelClose: tear a channel down (no reply)
//
// Data:
//   - DataSample: application payload, optionally important
//   - Ack: acknowledges an important DataSample by sequence number
//
// # Channel IDs
//
// Channel ids are int32. ChannelIDNotSet (-1) marks an id that has not been
// assigned yet, for example the destination of a ChannelRequest.
package wire
