package permission

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/yanmxa/gencode/internal/config"
	"github.com/yanmxa/gencode/internal/hooks"
)

// FullAutoChecker reports whether a tool call is covered by the session's
// full-auto allowlist. internal/tool.FullAuto satisfies this without
// internal/permission importing internal/tool (which would cycle back
// through internal/tool's own permission.Checker usage).
type FullAutoChecker interface {
	Allows(toolName string, params map[string]any) bool
}

// Gate is the full decision-order permission Checker: full-auto allowlist,
// then the session approval cache, then config policy, then a
// pre_tool_use lifecycle hook, falling through to an interactive prompt
// when nothing upstream resolved the call.
//
// Gate implements Checker; Prompt results still need a caller (the TUI or
// a non-interactive auto-approver) to resolve them, same as before.
type Gate struct {
	FullAuto  FullAutoChecker
	Settings  *config.Settings
	Session   *config.SessionPermissions
	Hooks     *hooks.Engine
	Recorder  *ApprovalRecorder
	signature func(name string, params map[string]any) string

	mu    sync.RWMutex
	cache map[string]Decision
}

// NewGate builds a Gate with an empty session cache.
func NewGate(settings *config.Settings, session *config.SessionPermissions) *Gate {
	return &Gate{
		Settings: settings,
		Session:  session,
		cache:    make(map[string]Decision),
	}
}

// SetSignature overrides the session-cache key function (defaults to
// "name" alone if unset, which coalesces all calls to the same tool).
// Callers normally pass loopdetect.Signature for argument-sensitive caching.
func (g *Gate) SetSignature(fn func(name string, params map[string]any) string) {
	g.signature = fn
}

// Check implements permission.Checker.
func (g *Gate) Check(name string, params map[string]any) Decision {
	if g.FullAuto != nil && g.FullAuto.Allows(name, params) {
		return Permit
	}

	key := g.sigKey(name, params)
	if d, ok := g.cached(key); ok {
		return d
	}

	if g.Settings != nil {
		switch g.Settings.CheckPermission(name, params, g.Session) {
		case config.PermissionAllow:
			g.remember(key, Permit)
			return Permit
		case config.PermissionDeny:
			g.remember(key, Reject)
			return Reject
		}
		// PermissionAsk falls through to the hook/prompt stages below.
	}

	if g.Hooks != nil && g.Hooks.HasHooks(hooks.PreToolUse) {
		outcome := g.Hooks.Execute(context.Background(), hooks.PreToolUse, hooks.HookInput{
			ToolName:  name,
			ToolInput: params,
		})
		if outcome.ShouldBlock {
			g.remember(key, Reject)
			return Reject
		}
	}

	return Prompt
}

// Resolve records a user's interactive decision so identical subsequent
// calls this session skip straight to it, and persists it via Recorder if
// one is configured.
func (g *Gate) Resolve(name string, params map[string]any, d Decision) {
	key := g.sigKey(name, params)
	g.remember(key, d)
	if g.Recorder != nil {
		g.Recorder.Record(name, d)
	}
}

func (g *Gate) sigKey(name string, params map[string]any) string {
	if g.signature != nil {
		return g.signature(name, params)
	}
	return name
}

func (g *Gate) cached(key string) (Decision, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.cache[key]
	return d, ok
}

func (g *Gate) remember(key string, d Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = d
}

// --- Approval persistence ---

// approvalState is the on-disk shape for ApprovalRecorder.
type approvalState struct {
	Allowed []string `json:"allowed"`
}

// ApprovalRecorder persists "always allow this tool" decisions to
// <projectDir>/approvals.json, styled after internal/mcp/registry.go's
// saveState/loadState JSON persistence for its own disabled-server set.
type ApprovalRecorder struct {
	path string

	mu      sync.Mutex
	allowed map[string]bool
}

// NewApprovalRecorder returns a recorder backed by the given project
// directory's approvals file, loading any prior state from disk.
func NewApprovalRecorder(projectDir string) *ApprovalRecorder {
	r := &ApprovalRecorder{
		path:    filepath.Join(projectDir, "approvals.json"),
		allowed: make(map[string]bool),
	}
	r.load()
	return r
}

// Record persists an always-allow decision for a tool name. Reject/Prompt
// decisions are not persisted — only durable "always allow" grants.
func (r *ApprovalRecorder) Record(name string, d Decision) {
	if d != Permit {
		return
	}
	r.mu.Lock()
	r.allowed[name] = true
	r.mu.Unlock()
	r.save()
}

// IsApproved reports whether name has a persisted always-allow grant.
func (r *ApprovalRecorder) IsApproved(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allowed[name]
}

func (r *ApprovalRecorder) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var state approvalState
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range state.Allowed {
		r.allowed[name] = true
	}
}

func (r *ApprovalRecorder) save() {
	r.mu.Lock()
	var state approvalState
	for name := range r.allowed {
		state.Allowed = append(state.Allowed, name)
	}
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	os.WriteFile(r.path, data, 0644)
}
