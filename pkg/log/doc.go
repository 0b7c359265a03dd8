// Package log records a machine-readable trace of firefly traffic.
//
// Operational messages go through log/slog. This package is the other half:
// every datagram, every decoded record and every connection or channel state
// transition is captured as an Event and handed to a Logger.
//
// A connection does not talk to a Logger directly. It holds a Tracer bound
// to its connection id and peer address, and the tracer stamps those onto
// each event:
//
//	tr := log.Tracer{Logger: fileLogger, ConnectionID: conn.ID(), RemoteAddr: addr}
//	tr.Record(log.DirectionOut, 3, &wire.ChannelRequest{...}, 0)
//
// Layers map onto the stack:
//   - LayerTransport: datagrams sent, received and resent (FrameEvent)
//   - LayerWire: records by type with channel ids and seqno (RecordEvent)
//   - LayerProtocol: connection and channel state (StateChangeEvent)
//
// ErrorEventData may appear on any layer.
//
// Sinks: FileLogger appends CBOR to a .flog file, SlogAdapter renders events
// as debug lines, MultiLogger fans out to several. Reader and Filter read a
// .flog file back; cmd/firefly-log is built on them.
package log
