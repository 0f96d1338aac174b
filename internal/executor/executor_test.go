package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/yanmxa/gencode/internal/executor"
	"github.com/yanmxa/gencode/internal/tool/ui"
)

type slowTool struct {
	delay  time.Duration
	calls  int
	result string
}

func (t *slowTool) Name() string        { return "Slow" }
func (t *slowTool) Description() string { return "test tool" }
func (t *slowTool) Icon() string        { return "T" }
func (t *slowTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	t.calls++
	select {
	case <-time.After(t.delay):
	case <-ctx.Done():
		return ui.NewErrorResult(t.Name(), "context done")
	}
	return ui.ToolResult{Success: true, Output: t.result}
}

func TestExecutor_TimesOut(t *testing.T) {
	e := executor.New(0)
	e.Timeout = 10 * time.Millisecond

	st := &slowTool{delay: 100 * time.Millisecond}
	result := e.Run(context.Background(), st, nil, "/tmp", nil, false, "", "")

	if result.Status != executor.StatusTimeout {
		t.Errorf("expected StatusTimeout, got %v", result.Status)
	}
}

func TestExecutor_CancelChannel(t *testing.T) {
	e := executor.New(0)
	st := &slowTool{delay: 200 * time.Millisecond}

	cancel := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(cancel)
	}()

	result := e.Run(context.Background(), st, nil, "/tmp", cancel, false, "", "")
	if result.Status != executor.StatusCancelled {
		t.Errorf("expected StatusCancelled, got %v", result.Status)
	}
}

func TestExecutor_CachesReadOnlyResults(t *testing.T) {
	e := executor.New(10)
	st := &slowTool{delay: time.Millisecond, result: "cached output"}

	key := executor.CacheKey("Slow", nil, "rev1")
	r1 := e.Run(context.Background(), st, nil, "/tmp", nil, true, key, "/tmp/a.go")
	r2 := e.Run(context.Background(), st, nil, "/tmp", nil, true, key, "/tmp/a.go")

	if r1.Status != executor.StatusSuccess || r2.Status != executor.StatusSuccess {
		t.Fatal("expected both calls to succeed")
	}
	if st.calls != 1 {
		t.Errorf("expected tool to run once due to cache hit, ran %d times", st.calls)
	}
	if r2.Tool.Output != "cached output" {
		t.Errorf("expected cached output, got %q", r2.Tool.Output)
	}
}

func TestExecutor_InvalidateByPathPrefix(t *testing.T) {
	e := executor.New(10)
	st := &slowTool{delay: time.Millisecond, result: "v1"}

	key := executor.CacheKey("Slow", nil, "rev1")
	e.Run(context.Background(), st, nil, "/tmp", nil, true, key, "/tmp/sub/a.go")

	e.Invalidate("/tmp/sub")

	st.result = "v2"
	r := e.Run(context.Background(), st, nil, "/tmp", nil, true, key, "/tmp/sub/a.go")
	if r.Tool.Output != "v2" {
		t.Errorf("expected cache invalidated and re-run, got %q", r.Tool.Output)
	}
	if st.calls != 2 {
		t.Errorf("expected 2 calls after invalidation, got %d", st.calls)
	}
}
