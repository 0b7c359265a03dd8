package protocol

import "errors"

// Protocol errors. Violations caused by the peer are reported and the
// offending record is dropped; connection state is left unchanged.
var (
	ErrConnectionNotOpen   = errors.New("connection not open")
	ErrConnectionClosing   = errors.New("connection closing")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrDuplicateChannel    = errors.New("channel already exists")
	ErrUnexpectedState     = errors.New("record not expected in channel state")
	ErrSeqnoMismatch       = errors.New("ack seqno does not match outstanding send")
	ErrNoImportantPending  = errors.New("no important send outstanding")
	ErrChannelNotOpen      = errors.New("channel not open")
	ErrInvalidTicket       = errors.New("transport returned no ticket for important write")
	ErrChannelIDsExhausted = errors.New("channel ids exhausted")
	ErrUnknownEvent        = errors.New("unknown event")
)

// errorKind maps an error to a short label for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrConnectionNotOpen), errors.Is(err, ErrConnectionClosing):
		return "connection_state"
	case errors.Is(err, ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, ErrDuplicateChannel):
		return "duplicate_channel"
	case errors.Is(err, ErrUnexpectedState), errors.Is(err, ErrChannelNotOpen):
		return "channel_state"
	case errors.Is(err, ErrSeqnoMismatch), errors.Is(err, ErrNoImportantPending):
		return "ack"
	case errors.Is(err, ErrInvalidTicket):
		return "transport"
	case errors.Is(err, ErrUnknownEvent):
		return "event"
	default:
		return "other"
	}
}
