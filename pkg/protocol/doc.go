// Package protocol implements the firefly connection and channel state
// machines.
//
// A Connection multiplexes many Channels over one transport relationship.
// Channels are opened with a three-step handshake (ChannelRequest,
// ChannelResponse, ChannelAck) and closed with a single ChannelClose
// notice that is not acknowledged. Payloads sent as important carry a
// sequence number, are acknowledged by the peer and are delivered to the
// application at most once. At most one important payload is in flight per
// channel; later ones wait in a per-channel FIFO.
//
// # Execution model
//
// Every state change happens inside Dispatch, which the host installs as
// the executor of an eventqueue.Queue:
//
//	q := eventqueue.New[protocol.Event](protocol.Dispatch)
//	conn := protocol.NewConnection(q, transport, handler, protocol.DefaultConnectionConfig())
//	go q.Run(ctx)
//
// API calls (OpenChannel, Send, Close) and inbound datagrams
// (DataReceived) never touch channel state directly. They post events and
// return. Handler callbacks run on the consumer goroutine and must not
// block.
//
// Data and channel closes share the LOW priority, so a Send followed by
// Close writes the payload before the ChannelClose, and a sample received
// before a peer's ChannelClose is delivered. Handshake and ack records run
// at HIGH; connection teardown starts at MEDIUM.
//
// Accessors that read channel state (Connection.Channel, Channel.State and
// friends) are only safe on the consumer goroutine, i.e. from Handler
// callbacks or a TransportTask.
package protocol
