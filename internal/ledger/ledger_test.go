package ledger_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/ledger"
)

func TestLedger_RecordAndFilterByTurn(t *testing.T) {
	l := ledger.New()
	l.RecordDecision(1, "Bash(rm -rf /tmp/x)", "prompt", "approved")
	l.RecordDecision(1, "Read(a.go)", "permit", "cache_hit")
	l.RecordDecision(2, "Write(b.go)", "deny", "blocked")

	turn1 := l.DecisionsForTurn(1)
	if len(turn1) != 2 {
		t.Fatalf("expected 2 decisions for turn 1, got %d", len(turn1))
	}
	all := l.Decisions()
	if len(all) != 3 {
		t.Fatalf("expected 3 total decisions, got %d", len(all))
	}
	for _, d := range all {
		if d.ID == "" {
			t.Error("expected non-empty decision ID")
		}
	}
}

func TestLedger_RecordPruning(t *testing.T) {
	l := ledger.New()
	l.RecordPruning(3, "summarize_oldest_pair", 2, 450)
	prunings := l.Prunings()
	if len(prunings) != 1 {
		t.Fatalf("expected 1 pruning record, got %d", len(prunings))
	}
	if prunings[0].TokensSaved != 450 {
		t.Errorf("expected 450 tokens saved, got %d", prunings[0].TokensSaved)
	}
}
