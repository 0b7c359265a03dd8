// Package commands implements the firefly-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer      *log.Layer
	Direction  *log.Direction
	Category   *log.Category
	ChannelID  *int32
	RecordType *wire.RecordType
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:      f.Layer,
		Direction:  f.Direction,
		Category:   f.Category,
		ChannelID:  f.ChannelID,
		RecordType: f.RecordType,
	}
}

// timestampLayout is used by view and export.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// eventType returns the short label of the event payload.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		if event.Frame.Resend {
			return "Resend"
		}
		return "Datagram"
	case event.Record != nil:
		return event.Record.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timestampLayout)
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s",
		ts, shortenConnID(event.ConnectionID), event.Direction.String(), event.Layer.String(), eventType(event))
	if event.ChannelID != nil {
		fmt.Fprintf(w, " ch=%d", *event.ChannelID)
	}
	fmt.Fprintln(w)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Record != nil:
		formatRecordDetails(w, event.Record)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatRecordDetails(w io.Writer, rec *log.RecordEvent) {
	fmt.Fprintf(w, "  Channels: src=%s dest=%s\n", chanIDString(rec.SourceChanID), chanIDString(rec.DestChanID))

	switch rec.Type {
	case wire.RecordTypeChannelResponse:
		if rec.Ack != nil {
			if *rec.Ack {
				fmt.Fprintln(w, "  Accepted")
			} else {
				fmt.Fprintln(w, "  Rejected")
			}
		}
	case wire.RecordTypeDataSample:
		if rec.Important && rec.Seqno != nil {
			fmt.Fprintf(w, "  Important: seqno=%d", *rec.Seqno)
			if rec.Ticket != 0 {
				fmt.Fprintf(w, " ticket=%d", rec.Ticket)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "  Payload: %d bytes\n", rec.PayloadSize)
	case wire.RecordTypeAck:
		if rec.Seqno != nil {
			fmt.Fprintf(w, "  Seqno: %d\n", *rec.Seqno)
		}
	}
}

func chanIDString(id int32) string {
	if id == wire.ChannelIDNotSet {
		return "-"
	}
	return strconv.FormatInt(int64(id), 10)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "protocol":
		return log.LayerProtocol, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or protocol)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "record":
		return log.CategoryRecord, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be record, state, or error)", s)
	}
}

// ParseRecordType parses a record type name such as "data_sample" or
// "channel-request" (case-insensitive).
func ParseRecordType(s string) (wire.RecordType, error) {
	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for rt := wire.RecordTypeChannelRequest; rt <= wire.RecordTypeAck; rt++ {
		if rt.String() == name {
			return rt, nil
		}
	}
	return wire.RecordTypeUnknown, fmt.Errorf("invalid record type: %s", s)
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
