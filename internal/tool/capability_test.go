package tool_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/tool"
)

func TestClassifyCapability_DestructiveBashWinsOverPlainBash(t *testing.T) {
	got := tool.ClassifyCapability("Bash", map[string]any{"command": "rm -rf /"})
	if got != tool.CapabilityDestructive {
		t.Errorf("expected CapabilityDestructive, got %v", got)
	}
}

func TestClassifyCapability_PlainBash(t *testing.T) {
	got := tool.ClassifyCapability("Bash", map[string]any{"command": "ls -la"})
	if got != tool.CapabilityBash {
		t.Errorf("expected CapabilityBash, got %v", got)
	}
}

func TestClassifyCapability_FileWrite(t *testing.T) {
	for _, name := range []string{"Write", "Edit"} {
		if got := tool.ClassifyCapability(name, nil); got != tool.CapabilityFileWrite {
			t.Errorf("%s: expected CapabilityFileWrite, got %v", name, got)
		}
	}
}

func TestClassifyCapability_ReadOnlyIsGeneral(t *testing.T) {
	if got := tool.ClassifyCapability("Read", nil); got != tool.CapabilityGeneral {
		t.Errorf("expected CapabilityGeneral, got %v", got)
	}
}

func TestFullAuto_DisabledByDefault(t *testing.T) {
	fa := tool.NewFullAuto()
	if fa.Allows("Bash", map[string]any{"command": "ls"}) {
		t.Error("expected a fresh FullAuto to disallow everything")
	}
}

func TestFullAuto_EnableAllowsListedTools(t *testing.T) {
	fa := tool.NewFullAuto()
	fa.Enable([]string{"Bash", "Read"})

	if !fa.Allows("Bash", map[string]any{"command": "ls"}) {
		t.Error("expected Bash to be allowed after enabling full-auto for it")
	}
	if fa.Allows("Write", nil) {
		t.Error("expected Write to stay disallowed when not in the allowlist")
	}
}

func TestFullAuto_NeverAllowsDestructiveBash(t *testing.T) {
	fa := tool.NewFullAuto()
	fa.Enable([]string{"Bash"})

	if fa.Allows("Bash", map[string]any{"command": "rm -rf /"}) {
		t.Error("expected a destructive Bash command to never be full-auto approved")
	}
}

func TestFullAuto_DisableRevokesAccess(t *testing.T) {
	fa := tool.NewFullAuto()
	fa.Enable([]string{"Bash"})
	fa.Disable()

	if fa.Allows("Bash", map[string]any{"command": "ls"}) {
		t.Error("expected Disable to revoke full-auto access")
	}
	if fa.Enabled() {
		t.Error("expected Enabled() to report false after Disable")
	}
}
