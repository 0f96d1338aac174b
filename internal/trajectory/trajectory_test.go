package trajectory_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/yanmxa/gencode/internal/trajectory"
)

func TestLogger_RecordAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	logger := trajectory.OpenAt(path)

	if err := logger.Record(trajectory.Event{Type: trajectory.EventTurnStart, Turn: 1}); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := logger.Record(trajectory.Event{
		Type: trajectory.EventToolCall,
		Turn: 1,
		Data: map[string]any{"tool": "Read"},
	}); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var lines []trajectory.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt trajectory.Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, evt)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Type != trajectory.EventTurnStart {
		t.Errorf("expected turn_start, got %v", lines[0].Type)
	}
	if lines[1].Data["tool"] != "Read" {
		t.Errorf("expected tool=Read, got %v", lines[1].Data["tool"])
	}
}
