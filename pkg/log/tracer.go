package log

import (
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// Tracer stamps events with a connection identity before passing them to
// a Logger. The zero value discards everything.
type Tracer struct {
	Logger       Logger
	ConnectionID string
	RemoteAddr   string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Enabled reports whether events are recorded at all.
func (t Tracer) Enabled() bool {
	if t.Logger == nil {
		return false
	}
	_, noop := t.Logger.(NoopLogger)
	return !noop
}

func (t Tracer) base(dir Direction, layer Layer, cat Category, chanID *int32) Event {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return Event{
		Timestamp:    now(),
		ConnectionID: t.ConnectionID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		RemoteAddr:   t.RemoteAddr,
		ChannelID:    chanID,
	}
}

// Frame records a datagram.
func (t Tracer) Frame(dir Direction, data []byte, resend bool) {
	if !t.Enabled() {
		return
	}
	ev := t.base(dir, LayerTransport, CategoryRecord, nil)
	ev.Frame = NewFrameEvent(data)
	ev.Frame.Resend = resend
	t.Logger.Log(ev)
}

// Record records a decoded record. ticket is zero for unimportant sends.
func (t Tracer) Record(dir Direction, chanID int32, r wire.Record, ticket uint32) {
	if !t.Enabled() {
		return
	}
	ev := t.base(dir, LayerWire, CategoryRecord, ChannelID(chanID))
	ev.Record = NewRecordEvent(r)
	ev.Record.Ticket = ticket
	t.Logger.Log(ev)
}

// State records a lifecycle transition. chanID is ignored for
// connection and port entities.
func (t Tracer) State(entity StateEntity, chanID int32, oldState, newState, reason string) {
	if !t.Enabled() {
		return
	}
	var id *int32
	if entity == StateEntityChannel {
		id = ChannelID(chanID)
	}
	ev := t.base(DirectionOut, LayerProtocol, CategoryState, id)
	ev.StateChange = &StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	t.Logger.Log(ev)
}

// Error records a failure. code is optional.
func (t Tracer) Error(layer Layer, context string, err error, code *int) {
	if !t.Enabled() || err == nil {
		return
	}
	ev := t.base(DirectionIn, layer, CategoryError, nil)
	ev.Error = &ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Code:    code,
		Context: context,
	}
	t.Logger.Log(ev)
}

// ChannelID returns a pointer for Event.ChannelID, or nil when id is
// wire.ChannelIDNotSet.
func ChannelID(id int32) *int32 {
	if id == wire.ChannelIDNotSet {
		return nil
	}
	return &id
}
