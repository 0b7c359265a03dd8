package protocol

import "fmt"

// Dispatch executes one event. It is the executor for an
// eventqueue.Queue[Event] and must only run on the queue's consumer.
//
// Events for a connection that already reached CLOSED are dropped. Errors
// are reported on the connection (trace, slog and metrics) and returned so
// the queue's error handler sees them too.
func Dispatch(ev Event) error {
	conn := ev.Connection()
	if conn != nil && conn.State() == StateClosed {
		return nil
	}

	var err error
	switch e := ev.(type) {
	case ConnectionOpen:
		e.Conn.executeOpen()
	case ConnectionClose:
		err = e.Conn.executeClose()
	case ChannelOpenEvent:
		err = e.Conn.executeChannelOpen(e.ID, e.OnRejected)
	case ChannelCloseEvent:
		err = e.Conn.executeChannelClose(e.ID)
	case ChannelClosedEvent:
		err = e.Conn.executeChannelClosed(e.ID, e.Remote)
	case ChannelRequestReceived:
		err = e.Conn.handleChannelRequest(e.Record)
	case ChannelResponseReceived:
		err = e.Conn.handleChannelResponse(e.Record)
	case ChannelAckReceived:
		err = e.Conn.handleChannelAck(e.Record)
	case SendSample:
		err = e.Conn.executeSend(e.ID, e.Payload, e.Important)
	case RecvSample:
		err = e.Conn.handleSample(e.Record)
	case AckReceived:
		err = e.Conn.handleAck(e.Record)
	case TransportTask:
		if e.Run != nil {
			if err = e.Run(); err != nil {
				err = fmt.Errorf("%s: %w", e.Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	if err != nil && conn != nil {
		conn.report(fmt.Sprintf("%T", ev), err)
	}
	return err
}
