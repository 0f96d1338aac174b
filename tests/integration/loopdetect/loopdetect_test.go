package loopdetect_test

import (
	"context"
	"testing"

	"github.com/yanmxa/gencode/internal/core"
	"github.com/yanmxa/gencode/internal/loopdetect"
	"github.com/yanmxa/gencode/internal/message"
	"github.com/yanmxa/gencode/internal/safety"
	"github.com/yanmxa/gencode/tests/integration/testutil"
)

// TestLoop_RepeatedToolCall_FoldsTurn exercises scenario S3: the model
// repeats the exact same tool call past the detector's threshold and the
// turn loop folds with an error result instead of executing it again.
func TestLoop_RepeatedToolCall_FoldsTurn(t *testing.T) {
	testutil.RegisterFakeTool(t, "Stuck", "ok")

	loop, _ := testutil.NewTestLoop(t,
		testutil.ToolCallResponse("Stuck", "tc1", `{"path":"a.go"}`),
		testutil.ToolCallResponse("Stuck", "tc2", `{"path":"a.go"}`),
		testutil.ToolCallResponse("Stuck", "tc3", `{"path":"a.go"}`),
		testutil.EndTurnResponse("gave up"),
	)
	loop.LoopDetector = loopdetect.New(2)
	loop.AddUser("loop please", nil)

	var toolCount int
	result, err := loop.Run(context.Background(), core.RunOptions{
		OnToolDone: func(tc message.ToolCall, r message.ToolResult) {
			toolCount++
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	foundLoopError := false
	for _, m := range result.Messages {
		if m.ToolResult != nil && m.ToolResult.IsError {
			foundLoopError = true
		}
	}
	if !foundLoopError {
		t.Error("expected an error tool result recorded for the detected loop")
	}
}

func TestLoop_SafetyCap_BlocksExcessCalls(t *testing.T) {
	testutil.RegisterFakeTool(t, "Chatty", "ok")

	responses := []message.CompletionResponse{
		testutil.ToolCallResponse("Chatty", "t1", `{"x":1}`),
		testutil.ToolCallResponse("Chatty", "t2", `{"x":2}`),
		testutil.ToolCallResponse("Chatty", "t3", `{"x":3}`),
		testutil.EndTurnResponse("done"),
	}
	loop, _ := testutil.NewTestLoop(t, responses...)
	loop.AddUser("go", nil)

	loop.Safety = safety.New(safety.Limits{MaxToolLoops: 2})

	result, err := loop.Run(context.Background(), core.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	blockedCount := 0
	for _, m := range result.Messages {
		if m.ToolResult != nil && m.ToolResult.IsError {
			blockedCount++
		}
	}
	if blockedCount == 0 {
		t.Error("expected at least one call blocked by the safety cap")
	}
}
