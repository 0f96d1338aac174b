package status_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/status"
)

func TestProjector_UpdateAndSnapshot(t *testing.T) {
	p := status.New()
	p.Update(status.View{Model: "claude-test", TokensUsed: 100, TokensLimit: 1000})

	v := p.Snapshot()
	if v.Model != "claude-test" {
		t.Errorf("expected model claude-test, got %q", v.Model)
	}
	if v.TokensUsed != 100 {
		t.Errorf("expected 100 tokens used, got %d", v.TokensUsed)
	}
}

func TestProjector_Notices(t *testing.T) {
	p := status.New()
	p.PushNotice("MCP tools ready (4 registered)")
	p.PushNotice("budget warning")

	v := p.Snapshot()
	if len(v.PendingNotices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(v.PendingNotices))
	}

	p.ClearNotices()
	if v2 := p.Snapshot(); len(v2.PendingNotices) != 0 {
		t.Errorf("expected notices cleared, got %v", v2.PendingNotices)
	}
}

func TestProjector_SnapshotIsIndependentCopy(t *testing.T) {
	p := status.New()
	p.PushNotice("first")
	v := p.Snapshot()
	p.PushNotice("second")

	if len(v.PendingNotices) != 1 {
		t.Errorf("expected snapshot to be unaffected by later pushes, got %v", v.PendingNotices)
	}
}
