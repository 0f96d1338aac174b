package budget_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/budget"
)

func TestCounter_CheckThreshold_Cascade(t *testing.T) {
	c := budget.NewCounter(1000)

	c.Add("user", 750)
	name, ok := c.CheckThreshold()
	if !ok || name != budget.ThresholdWarning {
		t.Fatalf("expected warning at 75%%, got %v %v", name, ok)
	}

	// Still under alert; no repeat warning.
	if _, ok := c.CheckThreshold(); ok {
		t.Fatal("expected no re-fire of warning")
	}

	c.Add("assistant", 150) // total 900 -> 90%, jumps past alert straight to compact
	name, ok = c.CheckThreshold()
	if !ok || name != budget.ThresholdCompact {
		t.Fatalf("expected compact at 90%%, got %v %v", name, ok)
	}
}

func TestCounter_UsageRatio(t *testing.T) {
	c := budget.NewCounter(200)
	c.Add("tool_output", 50)
	if got := c.UsageRatio(); got != 0.25 {
		t.Errorf("expected ratio 0.25, got %v", got)
	}
}

func TestCounter_SnapshotRestore(t *testing.T) {
	c := budget.NewCounter(1000)
	c.Add("user", 800)
	c.CheckThreshold()

	snap := c.Snapshot()
	restored := budget.RestoreStats(snap)

	if restored.UsageRatio() != c.UsageRatio() {
		t.Errorf("expected matching ratio after restore")
	}
	if _, ok := restored.CheckThreshold(); ok {
		t.Error("expected restored counter to retain already-warned state")
	}
}

func TestCounter_ResetWarnings(t *testing.T) {
	c := budget.NewCounter(100)
	c.Add("user", 80)
	c.CheckThreshold()
	c.ResetWarnings()
	name, ok := c.CheckThreshold()
	if !ok || name != budget.ThresholdWarning {
		t.Fatalf("expected warning to re-fire after reset, got %v %v", name, ok)
	}
}
