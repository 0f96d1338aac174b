package permission_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/config"
	"github.com/yanmxa/gencode/internal/permission"
)

type alwaysAuto struct{ tool string }

func (a alwaysAuto) Allows(name string, _ map[string]any) bool { return name == a.tool }

func TestGate_FullAutoTakesPriority(t *testing.T) {
	settings := config.NewSettings()
	settings.Permissions.Deny = []string{"Bash(*)"}
	gate := permission.NewGate(settings, nil)
	gate.FullAuto = alwaysAuto{tool: "Bash"}

	if d := gate.Check("Bash", map[string]any{"command": "ls"}); d != permission.Permit {
		t.Errorf("expected full-auto to permit despite a deny rule, got %v", d)
	}
}

func TestGate_ConfigDenyRejects(t *testing.T) {
	settings := config.NewSettings()
	settings.Permissions.Deny = []string{"Write(*)"}
	gate := permission.NewGate(settings, nil)

	if d := gate.Check("Write", map[string]any{"file_path": "a.go"}); d != permission.Reject {
		t.Errorf("expected deny rule to reject, got %v", d)
	}
}

func TestGate_ResolveCachesDecision(t *testing.T) {
	settings := config.NewSettings()
	gate := permission.NewGate(settings, nil)

	first := gate.Check("Edit", map[string]any{"file_path": "a.go"})
	if first != permission.Prompt {
		t.Fatalf("expected first check to fall through to Prompt, got %v", first)
	}
	gate.Resolve("Edit", map[string]any{"file_path": "a.go"}, permission.Permit)

	second := gate.Check("Edit", map[string]any{"file_path": "a.go"})
	if second != permission.Permit {
		t.Errorf("expected cached decision to permit on repeat, got %v", second)
	}
}

func TestGate_ReadOnlyDefaultsToPermit(t *testing.T) {
	settings := config.NewSettings()
	gate := permission.NewGate(settings, nil)

	if d := gate.Check("Read", map[string]any{"file_path": "a.go"}); d != permission.Permit {
		t.Errorf("expected read-only tool to default-permit, got %v", d)
	}
}

func TestApprovalRecorder_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	r1 := permission.NewApprovalRecorder(dir)
	r1.Record("Bash", permission.Permit)

	r2 := permission.NewApprovalRecorder(dir)
	if !r2.IsApproved("Bash") {
		t.Error("expected approval to persist across recorder instances")
	}
}

func TestApprovalRecorder_IgnoresNonPermitDecisions(t *testing.T) {
	dir := t.TempDir()
	r := permission.NewApprovalRecorder(dir)
	r.Record("Bash", permission.Reject)

	if r.IsApproved("Bash") {
		t.Error("expected a rejected decision not to be persisted as an approval")
	}
}
