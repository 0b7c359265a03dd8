package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

func captureSlog(t *testing.T, level slog.Level, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogAdapterLevel(logger, level).Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterRecord(t *testing.T) {
	tracer := Tracer{ConnectionID: "conn-1", RemoteAddr: "127.0.0.1:9"}
	rec := &recordingLogger{}
	tracer.Logger = rec
	tracer.Record(DirectionOut, 3, &wire.DataSample{
		SrcChanID: 3, DestChanID: 8, Seqno: 2, Important: true, Payload: []byte("hi"),
	}, 17)

	entry := captureSlog(t, slog.LevelDebug, rec.Events()[0])

	want := map[string]any{
		"msg":          "record",
		"level":        "DEBUG",
		"conn_id":      "conn-1",
		"remote":       "127.0.0.1:9",
		"direction":    "OUT",
		"layer":        "WIRE",
		"record_type":  "DATA_SAMPLE",
		"chan_id":      float64(3),
		"src_chan":     float64(3),
		"dest_chan":    float64(8),
		"seqno":        float64(2),
		"important":    true,
		"payload_size": float64(2),
		"ticket":       float64(17),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %v", k, entry[k], v)
		}
	}
}

func TestSlogAdapterState(t *testing.T) {
	entry := captureSlog(t, slog.LevelInfo, Event{
		ConnectionID: "conn-1",
		Layer:        LayerProtocol,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity: StateEntityConnection, OldState: "OPEN", NewState: "CLOSING", Reason: "local close",
		},
	})

	if entry["msg"] != "state" || entry["level"] != "INFO" {
		t.Errorf("msg/level = %v/%v", entry["msg"], entry["level"])
	}
	if entry["new_state"] != "CLOSING" || entry["reason"] != "local close" {
		t.Errorf("unexpected state attrs: %v", entry)
	}
	if _, ok := entry["chan_id"]; ok {
		t.Error("connection state should not carry chan_id")
	}
}

func TestSlogAdapterErrorRaisesLevel(t *testing.T) {
	rec := &recordingLogger{}
	Tracer{Logger: rec, ConnectionID: "c"}.Error(LayerWire, "decode", errors.New("malformed record"), nil)

	entry := captureSlog(t, slog.LevelDebug, rec.Events()[0])
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["error_msg"] != "malformed record" || entry["error_context"] != "decode" {
		t.Errorf("unexpected error attrs: %v", entry)
	}
}

func TestSlogAdapterFrame(t *testing.T) {
	entry := captureSlog(t, slog.LevelDebug, Event{
		Layer: LayerTransport,
		Frame: &FrameEvent{Size: 300, Truncated: true, Resend: true},
	})
	if entry["msg"] != "datagram" || entry["frame_size"] != float64(300) {
		t.Errorf("unexpected frame attrs: %v", entry)
	}
	if entry["truncated"] != true || entry["resend"] != true {
		t.Errorf("unexpected flags: %v", entry)
	}
}
