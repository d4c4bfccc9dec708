// Package audit records operator actions as JSON lines.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventCommand      EventType = "COMMAND"
	EventAccessDenied EventType = "ACCESS_DENIED"
	EventManualCheck  EventType = "MANUAL_CHECK"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	Command    string                 `json:"command,omitempty"`
	CallerID   int64                  `json:"caller_id,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Authorized bool                   `json:"authorized"`
	Outcome    string                 `json:"outcome,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	SessionID  string                 `json:"session_id"`
}

// Config holds audit logger configuration.
type Config struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultConfig returns the default audit configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     365,
	}
}

// Logger writes audit events. It is safe for concurrent use.
type Logger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// NewLogger creates a file-backed audit logger with rotation.
func NewLogger(cfg Config) (*Logger, error) {
	// Restricted permissions: the log names operators.
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return NewLoggerWithWriter(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}), nil
}

// NewLoggerWithWriter creates an audit logger over w.
func NewLoggerWithWriter(w io.WriteCloser) *Logger {
	return &Logger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Log writes an audit event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = l.now().UTC()
	event.SessionID = l.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogCommand records an operator command.
func (l *Logger) LogCommand(ctx context.Context, source, command string, callerID int64, authorized bool, outcome string) error {
	eventType := EventCommand
	if !authorized {
		eventType = EventAccessDenied
	}
	return l.Log(ctx, Event{
		EventType:  eventType,
		Command:    command,
		CallerID:   callerID,
		Source:     source,
		Authorized: authorized,
		Outcome:    outcome,
	})
}

// LogManualCheck records an out-of-schedule monitoring cycle.
func (l *Logger) LogManualCheck(ctx context.Context, source, cycleID string, recorded, restocks int) error {
	return l.Log(ctx, Event{
		EventType:  EventManualCheck,
		Source:     source,
		Authorized: true,
		Outcome:    "completed",
		Details: map[string]interface{}{
			"cycle_id": cycleID,
			"recorded": recorded,
			"restocks": restocks,
		},
	})
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	return l.writer.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops every event.
func Discard() *Logger {
	return NewLoggerWithWriter(nopCloser{io.Discard})
}
