// Package trajectory writes an append-only, line-delimited JSON event log
// per session, for offline analysis of what an agent run actually did.
package trajectory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType names the kind of event recorded.
type EventType string

const (
	EventTurnStart          EventType = "turn_start"
	EventModelCall          EventType = "model_call"
	EventToolCall           EventType = "tool_call"
	EventToolResult         EventType = "tool_result"
	EventPermissionDecision EventType = "permission_decision"
	EventLoopDetected       EventType = "loop_detected"
	EventCircuitOpen        EventType = "circuit_open"
	EventBudgetThreshold    EventType = "budget_threshold"
	EventSnapshotWritten    EventType = "snapshot_written"
)

// Event is one line of the trajectory log.
type Event struct {
	Type EventType      `json:"type"`
	Turn int            `json:"turn"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

// Logger appends Events to a size-capped, rotated log file.
type Logger struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

// Dir returns the default trajectory log directory under the user's home.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gen", "trajectories"), nil
}

// Open creates or appends to the trajectory log for sessionID under the
// default directory.
func Open(sessionID string) (*Logger, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create trajectory dir: %w", err)
	}
	return OpenAt(filepath.Join(dir, sessionID+".jsonl")), nil
}

// OpenAt creates or appends to a trajectory log at an explicit path,
// bypassing the default ~/.gen/trajectories location. Used in tests.
func OpenAt(path string) *Logger {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}
	return &Logger{out: lj, enc: json.NewEncoder(lj)}
}

// Record appends one event.
func (l *Logger) Record(evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(evt)
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
