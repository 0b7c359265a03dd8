package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
)

// foreignEvent satisfies Event without being one of the known variants.
type foreignEvent struct {
	ConnectionOpen
}

func TestDispatchUnknownEvent(t *testing.T) {
	err := Dispatch(foreignEvent{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDispatchTransportTask(t *testing.T) {
	ran := false
	err := Dispatch(TransportTask{Name: "noop", Run: func() error {
		ran = true
		return nil
	}})
	assert.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = Dispatch(TransportTask{Name: "read", Run: func() error { return boom }})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "read")

	assert.NoError(t, Dispatch(TransportTask{Name: "empty"}))
}

func TestTransportTaskErrorReportedOnConnection(t *testing.T) {
	hs := newHarness(t)

	err := Dispatch(TransportTask{Conn: hs.conn, Name: "dispatch", Run: func() error {
		return ErrUnknownChannel
	}})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Equal(t, 1, hs.metrics.Errors("unknown_channel"))
}

func TestEventPriorities(t *testing.T) {
	tests := []struct {
		ev   Event
		want eventqueue.Priority
	}{
		{ConnectionOpen{}, eventqueue.PriorityHigh},
		{ConnectionClose{}, eventqueue.PriorityMedium},
		{ConnectionClose{Retry: true}, eventqueue.PriorityLow},
		{ChannelOpenEvent{}, eventqueue.PriorityHigh},
		{ChannelCloseEvent{}, eventqueue.PriorityLow},
		{ChannelClosedEvent{}, eventqueue.PriorityLow},
		{ChannelRequestReceived{}, eventqueue.PriorityHigh},
		{ChannelResponseReceived{}, eventqueue.PriorityHigh},
		{ChannelAckReceived{}, eventqueue.PriorityHigh},
		{SendSample{}, eventqueue.PriorityLow},
		{RecvSample{}, eventqueue.PriorityLow},
		{AckReceived{}, eventqueue.PriorityHigh},
		{TransportTask{Prio: eventqueue.PriorityMedium}, eventqueue.PriorityMedium},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.Priority(), "%T", tt.ev)
	}
}

// Control traffic overtakes queued data on the same connection.
func TestHandshakePreemptsData(t *testing.T) {
	hs := newHarness(t)
	ch := hs.openOutbound(7)

	for i := 0; i < 3; i++ {
		if err := ch.Send([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := hs.conn.OpenChannel(); err != nil {
		t.Fatal(err)
	}
	before := len(hs.tr.Writes())
	hs.drain()

	w := hs.tr.Writes()[before:]
	assert.Len(t, w, 4)
	assert.Equal(t, "CHANNEL_REQUEST", w[0].rec.RecordType().String())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSING", StateClosing.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", ConnectionState(9).String())

	names := []string{"NEW", "REQUEST_SENT", "RESPONSE_SENT", "OPEN", "CLOSING", "CLOSED"}
	for i, want := range names {
		assert.Equal(t, want, ChannelState(i).String())
	}
	assert.Equal(t, "UNKNOWN", ChannelState(42).String())

	assert.Equal(t, "OUTBOUND", Outbound.String())
	assert.Equal(t, "INBOUND", Inbound.String())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ack", errorKind(ErrSeqnoMismatch))
	assert.Equal(t, "unknown_channel", errorKind(errors.Join(errors.New("x"), ErrUnknownChannel)))
	assert.Equal(t, "other", errorKind(errors.New("x")))
}
