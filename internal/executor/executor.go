// Package executor runs tool calls with a bounded timeout, cooperative
// cancellation, and a read-only result cache, decoupling tool invocation
// mechanics from the turn loop's decision logic.
package executor

import (
	"context"
	"time"

	"github.com/yanmxa/gencode/internal/tool"
	"github.com/yanmxa/gencode/internal/tool/ui"
)

// DefaultTimeout bounds a single tool call when the caller doesn't specify
// one.
const DefaultTimeout = 5 * time.Minute

// Status is the outcome of one Run call.
type Status int

const (
	// StatusSuccess means the tool ran to completion.
	StatusSuccess Status = iota
	// StatusTimeout means the per-call timeout elapsed.
	StatusTimeout
	// StatusCancelled means the cancel channel fired before completion.
	StatusCancelled
)

// Result wraps a tool's output with the executor-level outcome.
type Result struct {
	Status Status
	Tool   ui.ToolResult
}

// Executor runs tool.Tool implementations with timeout, cancellation, and
// an optional cache for read-only results.
type Executor struct {
	Timeout time.Duration
	Cache   *Cache
}

// New creates an Executor with the default timeout and an LRU cache of the
// given capacity (0 disables caching).
func New(cacheSize int) *Executor {
	e := &Executor{Timeout: DefaultTimeout}
	if cacheSize > 0 {
		e.Cache = NewCache(cacheSize)
	}
	return e
}

// Run executes t with params in cwd, racing a per-call timeout against the
// caller's cancel channel. readOnly tools consult the cache first keyed by
// cacheKey (see CacheKey) and populate it on success, associated with path
// (typically the file/dir the tool read) so a later write under that path
// can invalidate it via Executor.Invalidate.
func (e *Executor) Run(ctx context.Context, t tool.Tool, params map[string]any, cwd string,
	cancel <-chan struct{}, readOnly bool, cacheKey, path string) Result {

	if readOnly && e.Cache != nil && cacheKey != "" {
		if cached, ok := e.Cache.Get(cacheKey); ok {
			return Result{Status: StatusSuccess, Tool: cached}
		}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	done := make(chan ui.ToolResult, 1)
	go func() {
		done <- t.Execute(runCtx, params, cwd)
	}()

	select {
	case result := <-done:
		if readOnly && e.Cache != nil && cacheKey != "" && result.Success {
			e.Cache.PutWithPath(cacheKey, path, result)
		}
		return Result{Status: StatusSuccess, Tool: result}
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Status: StatusTimeout, Tool: ui.NewErrorResult(t.Name(), "tool call timed out")}
		}
		return Result{Status: StatusCancelled, Tool: ui.NewErrorResult(t.Name(), "tool call cancelled")}
	case <-cancel:
		return Result{Status: StatusCancelled, Tool: ui.NewErrorResult(t.Name(), "tool call cancelled")}
	}
}

// Invalidate drops any cached entries whose key was built from a path under
// prefix, called after a write tool succeeds.
func (e *Executor) Invalidate(prefix string) {
	if e.Cache != nil {
		e.Cache.InvalidatePrefix(prefix)
	}
}
