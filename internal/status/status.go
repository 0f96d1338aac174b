// Package status projects the turn loop's live state into a read-only
// snapshot the TUI header can poll without reaching into loop internals.
package status

import "sync"

// McpStatusView summarizes one MCP server's connection state for display.
type McpStatusView struct {
	Name   string
	Status string // "disabled", "initializing", "ready", "error"
	Tools  int
}

// View is a point-in-time snapshot of everything the header displays.
type View struct {
	Model          string
	Mode           string
	TokensUsed     int
	TokensLimit    int
	UsageRatio     float64
	McpServers     []McpStatusView
	PendingNotices []string
}

// Projector holds the latest View and lets the turn loop publish updates
// while the UI polls Snapshot concurrently.
type Projector struct {
	mu   sync.RWMutex
	view View
}

// New creates a Projector with an empty initial view.
func New() *Projector {
	return &Projector{}
}

// Update replaces the current view.
func (p *Projector) Update(v View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view = v
}

// Snapshot returns a copy of the current view.
func (p *Projector) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := p.view
	v.McpServers = append([]McpStatusView(nil), p.view.McpServers...)
	v.PendingNotices = append([]string(nil), p.view.PendingNotices...)
	return v
}

// PushNotice appends one transient notice (e.g. "MCP tools ready (4
// registered)") to the current view without needing a full Update.
func (p *Projector) PushNotice(notice string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.PendingNotices = append(p.view.PendingNotices, notice)
}

// ClearNotices drops all pending notices once the UI has rendered them.
func (p *Projector) ClearNotices() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.PendingNotices = nil
}
