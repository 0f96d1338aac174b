package tool

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yanmxa/gencode/internal/config"
)

// Capability classifies what kind of effect a tool call can have, used by
// the turn loop to decide whether a full-auto session may skip the
// interactive trust check for it.
type Capability int

const (
	// CapabilityGeneral covers read-only and informational tools.
	CapabilityGeneral Capability = iota
	// CapabilityBash covers arbitrary shell execution.
	CapabilityBash
	// CapabilityFileWrite covers file creation/modification tools.
	CapabilityFileWrite
	// CapabilityDestructive covers tools that can irreversibly delete or
	// overwrite state outside the workspace (e.g. a destructive Bash
	// command), always excluded from full-auto regardless of allowlist.
	CapabilityDestructive
)

var writeTools = map[string]bool{
	"Write": true,
	"Edit":  true,
}

// ClassifyCapability reports a tool call's capability class. Bash commands
// matching config.IsDestructiveCommand are always CapabilityDestructive,
// independent of any allowlist entry for "Bash" itself.
func ClassifyCapability(toolName string, params map[string]any) Capability {
	if toolName == "Bash" {
		if cmd, ok := params["command"].(string); ok && config.IsDestructiveCommand(cmd) {
			return CapabilityDestructive
		}
		return CapabilityBash
	}
	if writeTools[toolName] {
		return CapabilityFileWrite
	}
	if config.IsReadOnlyTool(toolName) {
		return CapabilityGeneral
	}
	return CapabilityGeneral
}

// FullAuto tracks the session-scoped full-auto allowlist: tool names a
// user has opted to run without per-call confirmation. A nil *FullAuto
// (the zero value, unused) behaves as disabled; callers hold a pointer
// obtained from NewFullAuto.
type FullAuto struct {
	enabled atomic.Bool

	mu    sync.RWMutex
	allow map[string]bool
}

// NewFullAuto returns a disabled FullAuto ready to be enabled later.
func NewFullAuto() *FullAuto {
	return &FullAuto{allow: make(map[string]bool)}
}

// Enable turns on full-auto mode for the given tool names. Calling Enable
// again replaces the prior allowlist rather than merging it, matching the
// "/mode" toggle's replace-on-confirm semantics.
func (f *FullAuto) Enable(allowlist []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allow = make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		f.allow[strings.ToLower(name)] = true
	}
	f.enabled.Store(true)
}

// Disable turns full-auto mode off entirely.
func (f *FullAuto) Disable() {
	f.enabled.Store(false)
}

// Allows reports whether tool may run without an interactive prompt.
// CapabilityDestructive calls are never auto-approved, even if the tool
// name is allowlisted — the destructive-Bash-command check always wins.
func (f *FullAuto) Allows(toolName string, params map[string]any) bool {
	if !f.enabled.Load() {
		return false
	}
	if ClassifyCapability(toolName, params) == CapabilityDestructive {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.allow[strings.ToLower(toolName)]
}

// Snapshot reports whether full-auto is currently enabled.
func (f *FullAuto) Enabled() bool {
	return f.enabled.Load()
}
