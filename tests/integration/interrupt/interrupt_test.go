package interrupt_test

import (
	"context"
	"testing"

	"github.com/yanmxa/gencode/internal/core"
	"github.com/yanmxa/gencode/internal/interrupt"
	"github.com/yanmxa/gencode/internal/message"
	"github.com/yanmxa/gencode/tests/integration/testutil"
)

// TestLoop_CancelBetweenTools exercises scenario S4: a cancel raised while
// a turn is mid-flight stops the loop before the next tool call runs,
// folding a "cancelled" result instead of executing the rest of the turn.
func TestLoop_CancelBetweenTools(t *testing.T) {
	testutil.RegisterFakeTool(t, "Step", "ok")

	loop, _ := testutil.NewTestLoop(t,
		testutil.MultiToolCallResponse(
			message.ToolCall{ID: "tc1", Name: "Step", Input: `{"n":1}`},
			message.ToolCall{ID: "tc2", Name: "Step", Input: `{"n":2}`},
		),
		testutil.EndTurnResponse("unreachable"),
	)
	bus := interrupt.New()
	loop.Interrupt = bus
	loop.AddUser("do two steps", nil)

	var ran []string
	result, err := loop.Run(context.Background(), core.RunOptions{
		OnToolDone: func(tc message.ToolCall, _ message.ToolResult) {
			ran = append(ran, tc.Name+":"+tc.ID)
			bus.RaiseCancel()
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.StopReason != "cancelled" {
		t.Fatalf("expected cancelled stop reason, got %q", result.StopReason)
	}
	if len(ran) != 1 {
		t.Fatalf("expected exactly one tool to run before cancellation, got %d: %v", len(ran), ran)
	}
}

// TestLoop_CancelBeforeFirstTurn exercises the cheapest cancellation path: a
// cancel raised before Run starts its first turn must fold immediately
// without ever streaming a completion.
func TestLoop_CancelBeforeFirstTurn(t *testing.T) {
	loop, fake := testutil.NewTestLoop(t, testutil.EndTurnResponse("should not be reached"))
	bus := interrupt.New()
	loop.Interrupt = bus
	bus.RaiseCancel()
	loop.AddUser("go", nil)

	result, err := loop.Run(context.Background(), core.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.StopReason != "cancelled" {
		t.Fatalf("expected cancelled stop reason, got %q", result.StopReason)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("expected no model calls before a pre-raised cancel, got %d", len(fake.Calls))
	}
}

// TestLoop_CancelClearsForNextTurn confirms ClearCancel lets a fresh Run
// proceed normally after a prior cancellation, instead of wedging the bus
// in a permanently-cancelled state.
func TestLoop_CancelClearsForNextTurn(t *testing.T) {
	loop, _ := testutil.NewTestLoop(t, testutil.EndTurnResponse("first"), testutil.EndTurnResponse("second"))
	bus := interrupt.New()
	loop.Interrupt = bus
	loop.AddUser("go", nil)

	bus.RaiseCancel()
	first, err := loop.Run(context.Background(), core.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if first.StopReason != "cancelled" {
		t.Fatalf("expected first run cancelled, got %q", first.StopReason)
	}
	if bus.IsCancelRequested() {
		t.Error("expected ClearCancel to have reset the pending cancel")
	}

	loop.AddUser("go again", nil)
	second, err := loop.Run(context.Background(), core.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if second.StopReason != "end_turn" {
		t.Fatalf("expected second run to complete normally, got %q", second.StopReason)
	}
}
