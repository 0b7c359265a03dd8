package protocol

import (
	"fmt"

	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// executeSend sends a payload, deferring important ones while another is
// outstanding on the channel. Sends accepted before Close still go out
// while the connection is CLOSING; the channel closes queue behind them.
func (c *Connection) executeSend(id ChannelID, payload []byte, important bool) error {
	ch, err := c.lookup(int32(id))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if !ch.usable() {
		return fmt.Errorf("%w: send on %d in %s", ErrChannelNotOpen, id, ch.state)
	}

	if !important {
		sample := &wire.DataSample{
			SrcChanID:  int32(ch.localID),
			DestChanID: int32(ch.remoteID),
			Payload:    payload,
		}
		_, err := c.send(ch.localID, sample, false)
		return err
	}

	if ch.importantID != 0 {
		ch.pending = append(ch.pending, payload)
		c.cfg.Metrics.ImportantDeferred()
		return nil
	}
	return c.sendImportant(ch, payload)
}

// sendImportant assigns the next seqno and stores the transport ticket.
func (c *Connection) sendImportant(ch *Channel, payload []byte) error {
	ch.currentSeqno = nextSeqno(ch.currentSeqno)
	sample := &wire.DataSample{
		SrcChanID:  int32(ch.localID),
		DestChanID: int32(ch.remoteID),
		Seqno:      ch.currentSeqno,
		Important:  true,
		Payload:    payload,
	}
	ticket, err := c.send(ch.localID, sample, true)
	if err != nil {
		return err
	}
	if ticket == 0 {
		return fmt.Errorf("%w: seqno %d on %d", ErrInvalidTicket, ch.currentSeqno, ch.localID)
	}
	ch.importantID = ticket
	c.cfg.Metrics.ImportantSent()
	return nil
}

// handleSample delivers an incoming payload. Important samples are
// acknowledged every time but delivered only when their seqno is new.
func (c *Connection) handleSample(s wire.DataSample) error {
	ch, err := c.lookup(s.DestChanID)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	if !ch.usable() {
		return fmt.Errorf("%w: sample on %d in %s", ErrChannelNotOpen, ch.localID, ch.state)
	}

	if !s.Important {
		c.handler.OnChannelData(ch, s.Payload)
		return nil
	}

	if s.Seqno > ch.remoteSeqno {
		ch.remoteSeqno = s.Seqno
		c.handler.OnChannelData(ch, s.Payload)
	} else {
		c.cfg.Metrics.DuplicateSample()
		c.logger.Debug("duplicate important sample", "chan", ch.localID, "seqno", s.Seqno, "remote_seqno", ch.remoteSeqno)
	}

	ack := &wire.Ack{
		SrcChanID:  int32(ch.localID),
		DestChanID: s.SrcChanID,
		Seqno:      s.Seqno,
	}
	_, err = c.send(ch.localID, ack, false)
	return err
}

// handleAck clears the outstanding important send when the seqno matches
// and releases the next deferred payload.
func (c *Connection) handleAck(a wire.Ack) error {
	ch, err := c.lookup(a.DestChanID)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if ch.importantID == 0 {
		return fmt.Errorf("%w: ack seqno %d on %d", ErrNoImportantPending, a.Seqno, ch.localID)
	}
	if a.Seqno != ch.currentSeqno {
		return fmt.Errorf("%w: got %d, want %d on %d", ErrSeqnoMismatch, a.Seqno, ch.currentSeqno, ch.localID)
	}

	c.transport.Ack(c, ch.importantID)
	ch.importantID = 0
	c.cfg.Metrics.ImportantAcked()

	if len(ch.pending) == 0 || !ch.usable() {
		return nil
	}
	next := ch.pending[0]
	ch.pending[0] = nil
	ch.pending = ch.pending[1:]
	return c.sendImportant(ch, next)
}
