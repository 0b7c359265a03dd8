package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	events, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return events
}

func TestRunFilterByConnection(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-a", Frame: &log.FrameEvent{Size: 1}},
		{Timestamp: ts, ConnectionID: "conn-b", Frame: &log.FrameEvent{Size: 2}},
		{Timestamp: ts, ConnectionID: "conn-a", Frame: &log.FrameEvent{Size: 3}},
	}
	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "out.flog")

	var buf bytes.Buffer
	if err := RunFilter(path, FilterOptions{Output: out, ConnID: "conn-a"}, &buf); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected summary: %s", buf.String())
	}

	got := readAll(t, out)
	if len(got) != 2 {
		t.Fatalf("filtered %d events, want 2", len(got))
	}
	for _, e := range got {
		if e.ConnectionID != "conn-a" {
			t.Errorf("unexpected connection %q", e.ConnectionID)
		}
	}
}

func TestRunFilterByTimeAndRecordType(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	ack := log.NewRecordEvent(&wire.Ack{SrcChanID: 1, DestChanID: 2, Seqno: 1})
	sample := log.NewRecordEvent(&wire.DataSample{SrcChanID: 1, DestChanID: 2, Payload: []byte{1}})
	events := []log.Event{
		{Timestamp: base, Record: ack},
		{Timestamp: base.Add(time.Minute), Record: ack},
		{Timestamp: base.Add(time.Minute), Record: sample},
		{Timestamp: base.Add(2 * time.Minute), Record: ack},
	}
	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "out.flog")

	opts := FilterOptions{
		Output:     out,
		TimeStart:  base.Add(30 * time.Second).Format(time.RFC3339),
		TimeEnd:    base.Add(2 * time.Minute).Format(time.RFC3339),
		RecordType: "ack",
	}
	var buf bytes.Buffer
	if err := RunFilter(path, opts, &buf); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	got := readAll(t, out)
	if len(got) != 1 {
		t.Fatalf("filtered %d events, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(time.Minute)) || got[0].Record.Type != wire.RecordTypeAck {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{
		ChannelID: "7",
		Layer:     "protocol",
		Direction: "out",
		Category:  "error",
	}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if f.ChannelID == nil || *f.ChannelID != 7 {
		t.Errorf("ChannelID = %v", f.ChannelID)
	}
	if *f.Layer != log.LayerProtocol || *f.Direction != log.DirectionOut || *f.Category != log.CategoryError {
		t.Errorf("unexpected filter: %+v", f)
	}
}

func TestFilterOptionsBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"time start", FilterOptions{TimeStart: "yesterday"}},
		{"time end", FilterOptions{TimeEnd: "10:00"}},
		{"channel", FilterOptions{ChannelID: "x"}},
		{"record type", FilterOptions{RecordType: "hello"}},
		{"layer", FilterOptions{Layer: "service"}},
		{"direction", FilterOptions{Direction: "up"}},
		{"category", FilterOptions{Category: "snapshot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunFilterRequiresOutput(t *testing.T) {
	path := createTestLogFile(t, nil)
	var buf bytes.Buffer
	if err := RunFilter(path, FilterOptions{}, &buf); err == nil {
		t.Error("expected error without output")
	}
}
