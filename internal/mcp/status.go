package mcp

import (
	"context"
	"time"
)

// InitStatus is the lifecycle state of one configured MCP server, derived
// from the registry's existing disabled/connecting/connectErr/clients
// bookkeeping rather than tracked as separate new state.
type InitStatus int

const (
	// StatusDisabled means the user explicitly disabled the server.
	StatusDisabled InitStatus = iota
	// StatusInitializing means a connection attempt is in flight.
	StatusInitializing
	// StatusReady means the server has a live client.
	StatusReady
	// StatusFailed means the last connection attempt failed.
	StatusFailed
)

// String renders the status for logs and the TUI status line.
func (s InitStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Status reports name's current lifecycle state.
func (r *Registry) Status(name string) InitStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disabled[name] {
		return StatusDisabled
	}
	if r.connecting[name] {
		return StatusInitializing
	}
	if _, ok := r.clients[name]; ok {
		return StatusReady
	}
	if _, ok := r.connectErr[name]; ok {
		return StatusFailed
	}
	return StatusInitializing
}

// WatchCatalog polls the configured servers at interval, reconnecting any
// that are neither disabled nor already connected, until ctx is cancelled.
// Intended to run in its own goroutine, picking up servers that came
// online after the initial ConnectAll pass (e.g. a local dev server the
// user started after launching the session).
func (r *Registry) WatchCatalog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconnectStale(ctx)
		}
	}
}

// reconnectStale attempts to connect any server that isn't disabled,
// isn't already connecting, and has no live client.
func (r *Registry) reconnectStale(ctx context.Context) {
	r.mu.RLock()
	var stale []string
	for name := range r.configs {
		if r.disabled[name] || r.connecting[name] {
			continue
		}
		if _, ok := r.clients[name]; ok {
			continue
		}
		stale = append(stale, name)
	}
	r.mu.RUnlock()

	for _, name := range stale {
		_ = r.Connect(ctx, name)
	}
}

// Shutdown disconnects all servers exactly once, safe to call more than
// once (e.g. once from an interrupt handler and again from normal
// teardown) without double-closing client transports.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(r.DisconnectAll)
}
