package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/firefly-protocol/firefly-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// RunExport writes every event of path to w in the given format.
func RunExport(path, format string, w io.Writer) error {
	if format != FormatJSONL && format != FormatCSV {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if format == FormatCSV {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{
	"timestamp", "connection_id", "remote_addr", "direction", "layer",
	"category", "channel_id", "type", "seqno", "size",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	var chanID, seqno, size string
	if event.ChannelID != nil {
		chanID = strconv.FormatInt(int64(*event.ChannelID), 10)
	}
	switch {
	case event.Frame != nil:
		size = strconv.Itoa(event.Frame.Size)
	case event.Record != nil:
		if event.Record.Seqno != nil {
			seqno = strconv.FormatInt(int64(*event.Record.Seqno), 10)
		}
		size = strconv.Itoa(event.Record.PayloadSize)
	}

	return []string{
		event.Timestamp.UTC().Format(timestampLayout),
		event.ConnectionID,
		event.RemoteAddr,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		chanID,
		eventType(event),
		seqno,
		size,
	}
}
