package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestLogCommand(t *testing.T) {
	buf := &bufferCloser{}
	l := NewLoggerWithWriter(buf)
	ctx := context.Background()

	if err := l.LogCommand(ctx, "telegram", "current_stock", 1254080795, true, "ok"); err != nil {
		t.Fatalf("LogCommand failed: %v", err)
	}
	if err := l.LogCommand(ctx, "telegram", "stats_week", 42, false, "denied"); err != nil {
		t.Fatalf("LogCommand failed: %v", err)
	}

	var events []Event
	scanner := bufio.NewScanner(&buf.Buffer)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Line is not JSON: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].EventType != EventCommand || !events[0].Authorized || events[0].CallerID != 1254080795 {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].EventType != EventAccessDenied || events[1].Authorized {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
	if events[0].SessionID == "" || events[0].SessionID != events[1].SessionID {
		t.Error("Events of one logger must share a session id")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Expected a timestamp")
	}

	l.Close()
	if !buf.closed {
		t.Error("Close must close the writer")
	}
}

func TestNewLogger_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	l, err := NewLogger(DefaultConfig(path))
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := l.LogManualCheck(context.Background(), "http", "cycle-1", 1, 0); err != nil {
		t.Fatalf("LogManualCheck failed: %v", err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Audit file missing: %v", err)
	}
	if !bytes.Contains(data, []byte(`"cycle_id":"cycle-1"`)) {
		t.Errorf("Unexpected audit content: %s", data)
	}
}
