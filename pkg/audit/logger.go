// Package audit provides structured JSON audit logging for governance
// decisions: rejected ledger appends, waiver applications, blocked
// protocols. Records go to a configurable writer, one JSON object per line.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventLedger EventType = "LEDGER"
	EventWaiver EventType = "WAIVER"
	EventGraph  EventType = "GRAPH"
	EventSystem EventType = "SYSTEM"
)

// Event is a structured audit record.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(eventType EventType, action, resource string, metadata map[string]any) error
}

// logger writes structured JSON to a configurable writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger creates a Logger writing to os.Stderr.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stderr)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(eventType EventType, action, resource string, metadata map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: l.clock(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(raw, '\n')...))
	return err
}

// Nop returns a Logger that discards all records.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Record(EventType, string, string, map[string]any) error { return nil }
