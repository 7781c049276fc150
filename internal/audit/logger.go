// Package audit persists bus events as newline-delimited JSON, one object
// per line, append-only. Consumers tolerate unknown fields; the log is never
// rewritten, reordered, or compacted. Rotation is an external concern.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/droidforge/forge/internal/events"
)

// GenerateRunID creates a unique run identifier like "r-20250102-1504-a1b2c3".
func GenerateRunID() string {
	u := uuid.New().String()
	return "r-" + time.Now().UTC().Format("20060102-1504") + "-" + strings.ReplaceAll(u[:6], "-", "")
}

// Logger subscribes to all bus events and appends them to an NDJSON file.
// Lines are written with a single write on an O_APPEND descriptor so
// concurrent writers never interleave partial lines.
type Logger struct {
	mu          sync.Mutex
	f           *os.File
	runID       string
	unsubscribe func()
}

// NewLogger opens (creating parents as needed) the audit log at path and
// subscribes to the bus. runID becomes the session_id of records whose event
// carries none.
func NewLogger(path, runID string, bus *events.Bus) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := &Logger{f: f, runID: runID}
	l.unsubscribe = bus.Subscribe(l.handleEvent)
	return l, nil
}

// Close unsubscribes from the bus and closes the log file.
func (l *Logger) Close() error {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func (l *Logger) handleEvent(e events.Event) {
	_ = l.writeEvent(e)
}

func (l *Logger) writeEvent(e events.Event) error {
	record := map[string]any{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event":     string(e.Type),
		"source":    string(e.Source),
	}
	if e.RunID != "" {
		record["session_id"] = e.RunID
	} else {
		record["session_id"] = l.runID
	}
	for k, v := range e.Payload {
		if _, reserved := record[k]; reserved {
			continue
		}
		record[k] = v
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.f.Write(data)
	return err
}
