// Package transport binds firefly connections to UDP.
//
// A Port owns one UDP socket and a table of peer connections keyed by
// remote address. Each datagram carries exactly one encoded record.
//
// # Goroutines
//
//	reader  socket -> TransportTask (HIGH) -> Connection.DataReceived
//	resend  ResendQueue deadlines -> socket
//
// Neither goroutine touches protocol state. The reader posts every
// datagram to the event queue; the resend goroutine only rewrites bytes
// it was handed by Write.
//
// # Important writes
//
// Write with important set returns a nonzero ticket and keeps a copy of the
// datagram in the ResendQueue. The copy is retransmitted with exponential
// backoff until the protocol calls Ack or MaxRetries is exceeded, in which
// case the connection is closed.
package transport
