package contextmgr_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yanmxa/gencode/internal/contextmgr"
	"github.com/yanmxa/gencode/internal/message"
)

func fakeSummarizer(summary string) contextmgr.Summarizer {
	return func(_ context.Context, _ []message.Message) (string, error) {
		return summary, nil
	}
}

func TestAdaptiveTrim_DropsSupersededToolOutput(t *testing.T) {
	history := []message.Message{
		message.UserMessage("first", nil),
		message.AssistantMessage("", "", []message.ToolCall{{ID: "tc1", Name: "Read"}}),
		message.ToolResultMessage(message.ToolResult{ToolCallID: "tc1", Content: "stale output"}),
		message.AssistantMessage("", "", []message.ToolCall{{ID: "tc1", Name: "Read"}}),
		message.ToolResultMessage(message.ToolResult{ToolCallID: "tc1", Content: "fresh output"}),
		message.UserMessage("latest turn", nil),
	}

	out := contextmgr.AdaptiveTrim(context.Background(), fakeSummarizer(""), history, contextmgr.HintConsider)
	if out.Phase != contextmgr.PhaseDropSupersededToolOutput {
		t.Fatalf("expected drop-superseded phase, got %v", out.Phase)
	}
	if out.MessagesHit != 1 {
		t.Errorf("expected 1 message dropped, got %d", out.MessagesHit)
	}
	for _, m := range out.Messages {
		if m.ToolResult != nil && m.ToolResult.Content == "stale output" {
			t.Error("stale tool output should have been dropped")
		}
	}
}

func TestAdaptiveTrim_ProtectsLastUserMessage(t *testing.T) {
	history := []message.Message{
		message.UserMessage("only turn", nil),
	}
	out := contextmgr.AdaptiveTrim(context.Background(), fakeSummarizer(""), history, contextmgr.HintEmergency)
	if len(out.Messages) != 1 {
		t.Fatalf("expected the sole user message to survive, got %d messages", len(out.Messages))
	}
}

func TestAdaptiveTrim_SummarizesOldestPair(t *testing.T) {
	history := []message.Message{
		message.UserMessage("old question", nil),
		message.AssistantMessage("old answer", "", nil),
		message.UserMessage("latest turn", nil),
	}
	out := contextmgr.AdaptiveTrim(context.Background(), fakeSummarizer("condensed"), history, contextmgr.HintCompact)
	if out.Phase != contextmgr.PhaseSummarizeOldestPair {
		t.Fatalf("expected summarize phase, got %v", out.Phase)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 messages (summary + latest), got %d", len(out.Messages))
	}
}

func TestAdaptiveTrim_EmergencyDropsOldestWhenSummarizeFails(t *testing.T) {
	failing := func(_ context.Context, _ []message.Message) (string, error) {
		return "", errors.New("model unavailable")
	}
	history := []message.Message{
		message.UserMessage("old question", nil),
		message.AssistantMessage("old answer", "", nil),
		message.UserMessage("latest turn", nil),
	}
	out := contextmgr.AdaptiveTrim(context.Background(), failing, history, contextmgr.HintEmergency)
	if out.Phase != contextmgr.PhaseEmergencyDropOldest {
		t.Fatalf("expected emergency drop phase, got %v", out.Phase)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected oldest pair dropped, got %d messages", len(out.Messages))
	}
}

func TestAdaptiveTrim_HintNoneIsNoop(t *testing.T) {
	history := []message.Message{message.UserMessage("hi", nil)}
	out := contextmgr.AdaptiveTrim(context.Background(), fakeSummarizer(""), history, contextmgr.HintNone)
	if len(out.Messages) != 1 {
		t.Errorf("expected no-op trim to preserve history")
	}
}
