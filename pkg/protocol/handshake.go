package protocol

import (
	"fmt"

	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// registerHandlers routes decoded records to events. Handlers run on the
// DataReceived caller's goroutine and only post.
func (c *Connection) registerHandlers() {
	wire.Handle(c.decoder, func(r *wire.ChannelRequest) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(ChannelRequestReceived{Conn: c, Record: *r})
	})
	wire.Handle(c.decoder, func(r *wire.ChannelResponse) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(ChannelResponseReceived{Conn: c, Record: *r})
	})
	wire.Handle(c.decoder, func(r *wire.ChannelAck) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(ChannelAckReceived{Conn: c, Record: *r})
	})
	wire.Handle(c.decoder, func(r *wire.ChannelClose) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(ChannelClosedEvent{Conn: c, ID: ChannelID(r.DestChanID), Remote: true})
	})
	wire.Handle(c.decoder, func(r *wire.DataSample) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(RecvSample{Conn: c, Record: *r})
	})
	wire.Handle(c.decoder, func(r *wire.Ack) {
		c.tracer.Record(log.DirectionIn, r.DestChanID, r, 0)
		c.post(AckReceived{Conn: c, Record: *r})
	})
}

// executeChannelOpen creates an outbound channel and sends ChannelRequest.
func (c *Connection) executeChannelOpen(id ChannelID, onRejected func(*Connection)) error {
	if c.State() != StateOpen {
		return ErrConnectionClosing
	}
	ch := newChannel(c, id, Outbound)
	ch.onRejected = onRejected
	if err := c.addChannel(ch); err != nil {
		return err
	}

	req := &wire.ChannelRequest{
		SourceChanID: int32(ch.localID),
		DestChanID:   int32(ChannelIDNotSet),
	}
	if _, err := c.send(ch.localID, req, false); err != nil {
		c.removeChannel(ch)
		return err
	}
	ch.setState(ChannelRequestSent, "")
	return nil
}

// handleChannelRequest is the responder side of the handshake.
func (c *Connection) handleChannelRequest(req wire.ChannelRequest) error {
	if _, ok := c.channels[ChannelID(req.DestChanID)]; ok {
		return fmt.Errorf("%w: request for %d", ErrDuplicateChannel, req.DestChanID)
	}
	if c.State() != StateOpen {
		return ErrConnectionClosing
	}

	id, err := c.allocID()
	if err != nil {
		return err
	}
	ch := newChannel(c, id, Inbound)
	ch.remoteID = ChannelID(req.SourceChanID)
	if err := c.addChannel(ch); err != nil {
		return err
	}

	accept := c.handler.OnChannelRecv(ch)
	resp := &wire.ChannelResponse{
		SourceChanID: int32(ch.localID),
		DestChanID:   int32(ch.remoteID),
		Ack:          accept,
	}
	if !accept {
		// The peer must not learn an id that is about to be freed.
		resp.SourceChanID = int32(ChannelIDNotSet)
		c.removeChannel(ch)
		ch.setState(ChannelClosed, "rejected")
	}

	if _, err := c.send(ch.localID, resp, false); err != nil {
		if accept {
			c.removeChannel(ch)
		}
		return err
	}
	if accept {
		ch.setState(ChannelResponseSent, "")
	}
	return nil
}

// handleChannelResponse completes or aborts the initiator side.
func (c *Connection) handleChannelResponse(resp wire.ChannelResponse) error {
	ch, err := c.lookup(resp.DestChanID)
	if err != nil {
		return fmt.Errorf("response: %w", err)
	}
	if ch.state != ChannelRequestSent {
		return fmt.Errorf("%w: response on channel %d in %s", ErrUnexpectedState, ch.localID, ch.state)
	}

	if !resp.Ack {
		c.removeChannel(ch)
		ch.setState(ChannelClosed, "rejected by peer")
		if ch.onRejected != nil {
			ch.onRejected(c)
		} else {
			c.handler.OnChannelRejected(c)
		}
		return nil
	}

	ack := &wire.ChannelAck{
		SourceChanID: int32(ch.localID),
		DestChanID:   resp.SourceChanID,
	}
	if _, err := c.send(ch.localID, ack, false); err != nil {
		return err
	}
	ch.remoteID = ChannelID(resp.SourceChanID)
	c.opened(ch)
	return nil
}

// handleChannelAck completes the responder side.
func (c *Connection) handleChannelAck(ack wire.ChannelAck) error {
	ch, err := c.lookup(ack.DestChanID)
	if err != nil {
		return fmt.Errorf("channel ack: %w", err)
	}
	if ch.state != ChannelResponseSent {
		return fmt.Errorf("%w: channel ack on %d in %s", ErrUnexpectedState, ch.localID, ch.state)
	}
	c.opened(ch)
	return nil
}

func (c *Connection) opened(ch *Channel) {
	ch.setState(ChannelOpen, "")
	ch.wasOpen = true
	c.cfg.Metrics.ChannelOpened()
	c.logger.Debug("channel open", "chan", ch.localID, "remote_chan", ch.remoteID, "direction", ch.direction)
	c.handler.OnChannelOpened(ch)
}

// executeChannelClose sends the fire-and-forget ChannelClose and schedules
// the local teardown.
func (c *Connection) executeChannelClose(id ChannelID) error {
	ch, err := c.lookup(int32(id))
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if ch.state == ChannelClosing || ch.state == ChannelClosed {
		return nil
	}

	var sendErr error
	if ch.remoteID != ChannelIDNotSet {
		cl := &wire.ChannelClose{
			SourceChanID: int32(ch.localID),
			DestChanID:   int32(ch.remoteID),
		}
		_, sendErr = c.send(ch.localID, cl, false)
	}
	ch.setState(ChannelClosing, "")
	ev := ChannelClosedEvent{Conn: c, ID: ch.localID}
	if err := c.sink.Add(ev, ev.Priority()); err != nil {
		c.report("post channel closed", err)
		if closeErr := c.executeChannelClosed(ch.localID, false); closeErr != nil {
			return closeErr
		}
	}
	return sendErr
}

// executeChannelClosed notifies the handler and frees the channel.
func (c *Connection) executeChannelClosed(id ChannelID, remote bool) error {
	ch, ok := c.channels[id]
	if !ok {
		if remote {
			return fmt.Errorf("%w: close for %d", ErrUnknownChannel, id)
		}
		return nil
	}

	if ch.importantID != 0 {
		c.transport.Ack(c, ch.importantID)
		ch.importantID = 0
	}
	ch.pending = nil

	reason := "local close"
	if remote {
		reason = "closed by peer"
	}
	ch.setState(ChannelClosed, reason)
	if ch.wasOpen {
		c.cfg.Metrics.ChannelClosed()
	}
	c.handler.OnChannelClosed(ch)
	c.removeChannel(ch)
	c.resumeClose()
	return nil
}
