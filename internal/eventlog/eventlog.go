// Package eventlog implements the broker's and headless runtime's
// append-only activity log: one JSON object per line, written best-effort
// alongside (never in place of) the structured logger. A token is never
// written here.
package eventlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends JSON-Lines events to a file. The zero value via Nop is a
// safe no-op.
type Logger struct {
	mu        sync.Mutex
	f         *os.File
	enabled   bool
	component string
	id        string
}

// New opens (creating if needed) the log file at path and returns a Logger
// tagged with component and id (e.g. "broker"/connection id, or
// "headless"/pane id). When enabled is false, Emit is a no-op and no file
// is created.
func New(enabled bool, path, component, id string) *Logger {
	l := &Logger{enabled: enabled, component: component, id: id}
	if !enabled {
		return l
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.enabled = false
		return l
	}
	l.f = f
	return l
}

// Nop returns a Logger whose Emit and Close are no-ops, for callers that
// never want activity logging (e.g. tests).
func Nop() *Logger {
	return &Logger{enabled: false}
}

// Emit appends one JSON object with a timestamp, component, id, the event
// name, and fields, merged in that priority order. A write failure is
// swallowed: activity logging must never disturb the broker or runtime it
// observes.
func (l *Logger) Emit(event string, fields map[string]any) {
	if l == nil || !l.enabled || l.f == nil {
		return
	}

	entry := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["component"] = l.component
	entry["id"] = l.id
	entry["event"] = event

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	l.f.Write(line)
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
