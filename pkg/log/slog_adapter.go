package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders trace events as structured slog records.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter writes events to logger at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return NewSlogAdapterLevel(logger, slog.LevelDebug)
}

// NewSlogAdapterLevel writes events to logger at the given level.
// Error events are always written at Warn or above.
func NewSlogAdapterLevel(logger *slog.Logger, level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: level}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.ChannelID != nil {
		attrs = append(attrs, slog.Int("chan_id", int(*event.ChannelID)))
	}

	level := a.level
	msg := "protocol"

	switch {
	case event.Frame != nil:
		msg = "datagram"
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
		if event.Frame.Resend {
			attrs = append(attrs, slog.Bool("resend", true))
		}
	case event.Record != nil:
		msg = "record"
		rec := event.Record
		attrs = append(attrs,
			slog.String("record_type", rec.Type.String()),
			slog.Int("src_chan", int(rec.SourceChanID)),
			slog.Int("dest_chan", int(rec.DestChanID)),
		)
		if rec.Seqno != nil {
			attrs = append(attrs, slog.Int("seqno", int(*rec.Seqno)))
		}
		if rec.Important {
			attrs = append(attrs, slog.Bool("important", true))
		}
		if rec.Ack != nil {
			attrs = append(attrs, slog.Bool("ack", *rec.Ack))
		}
		if rec.PayloadSize > 0 {
			attrs = append(attrs, slog.Int("payload_size", rec.PayloadSize))
		}
		if rec.Ticket != 0 {
			attrs = append(attrs, slog.Uint64("ticket", uint64(rec.Ticket)))
		}
	case event.StateChange != nil:
		msg = "state"
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		msg = "error"
		if level < slog.LevelWarn {
			level = slog.LevelWarn
		}
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
