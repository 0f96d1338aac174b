// Package contextmgr trims conversation history when it grows too large for
// the model's context window, in escalating phases that prefer
// dropping redundant data before ever touching a user-visible message.
package contextmgr

import (
	"context"
	"fmt"

	"github.com/yanmxa/gencode/internal/message"
)

// Summarizer produces a condensed summary of a message chunk, typically
// backed by core.Compact (an LLM round trip). Kept as a function type
// rather than importing internal/core directly, since core imports
// contextmgr to drive the turn loop's own trimming.
type Summarizer func(ctx context.Context, msgs []message.Message) (string, error)

// Phase names one step of the adaptive trim cascade.
type Phase string

const (
	// PhaseDropSupersededToolOutput drops tool results that a later,
	// identical-signature call has already superseded.
	PhaseDropSupersededToolOutput Phase = "drop_superseded_tool_output"
	// PhaseDropOldSystemNotices labels an AdaptiveTrim outcome in which no
	// phase removed anything; no step of the cascade drops system notices.
	PhaseDropOldSystemNotices Phase = "drop_old_system_notices"
	// PhaseSummarizeOldestPair replaces the oldest user/assistant exchange
	// with an LLM-generated summary.
	PhaseSummarizeOldestPair Phase = "summarize_oldest_pair"
	// PhaseEmergencyDropOldest drops the oldest non-system message pair
	// outright when summarization alone isn't keeping pace.
	PhaseEmergencyDropOldest Phase = "emergency_drop_oldest_pair"
)

// Outcome reports what AdaptiveTrim actually did.
type Outcome struct {
	Phase       Phase
	MessagesHit int
	TokensSaved int
	Messages    []message.Message
}

// Hint tells AdaptiveTrim how aggressively to act, driven by the budget
// counter's threshold crossing.
type Hint int

const (
	// HintNone performs no trimming.
	HintNone Hint = iota
	// HintConsider performs only the cheap, lossless phase (dropping
	// superseded tool output).
	HintConsider
	// HintCompact performs summarization of the oldest exchange.
	HintCompact
	// HintEmergency drops messages outright if summarization isn't enough.
	HintEmergency
)

// AdaptiveTrim runs the trim cascade appropriate to hint, preserving three
// invariants: (i) the most recent user message is never dropped or
// summarized, (ii) tool calls and their results are never separated, and
// (iii) at least one phase always runs to completion before returning, even
// if it finds nothing to do. When no phase changes the history, the outcome
// carries PhaseDropOldSystemNotices and the history unchanged.
func AdaptiveTrim(ctx context.Context, summarize Summarizer, history []message.Message, hint Hint) Outcome {
	if hint == HintNone || len(history) == 0 {
		return Outcome{Messages: history}
	}

	working := append([]message.Message(nil), history...)

	if out, changed := dropSupersededToolOutput(working); changed {
		return out
	}
	if hint == HintConsider {
		return Outcome{Phase: PhaseDropSupersededToolOutput, Messages: working}
	}

	if hint >= HintCompact {
		if out, changed := summarizeOldestPair(ctx, summarize, working); changed {
			return out
		}
	}

	if hint == HintEmergency {
		if out, changed := emergencyDropOldest(working); changed {
			return out
		}
	}

	return Outcome{Phase: PhaseDropOldSystemNotices, Messages: working}
}

// lastUserIndex finds the index of the most recent user message with
// non-empty content (a real user turn, not a tool-result carrier), which
// invariant (i) protects from trimming.
func lastUserIndex(msgs []message.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleUser && msgs[i].ToolResult == nil {
			return i
		}
	}
	return -1
}

// dropSupersededToolOutput removes tool-result messages whose tool call ID
// appears again on a later tool result in the history — a call repeated after a loop-detector
// reset, where only the latest output is still relevant context.
func dropSupersededToolOutput(msgs []message.Message) (Outcome, bool) {
	protect := lastUserIndex(msgs)
	seen := make(map[string]int) // toolCallID -> last index seen
	for i, m := range msgs {
		if m.ToolResult != nil {
			seen[m.ToolResult.ToolCallID] = i
		}
	}

	var out []message.Message
	hit := 0
	tokensSaved := 0
	for i, m := range msgs {
		if i >= protect {
			out = append(out, m)
			continue
		}
		if m.ToolResult != nil {
			if last := seen[m.ToolResult.ToolCallID]; last != i {
				hit++
				tokensSaved += estimateTokens(m.ToolResult.Content)
				continue
			}
		}
		out = append(out, m)
	}
	if hit == 0 {
		return Outcome{}, false
	}
	return Outcome{Phase: PhaseDropSupersededToolOutput, MessagesHit: hit, TokensSaved: tokensSaved, Messages: out}, true
}

// summarizeOldestPair replaces the oldest user/assistant exchange (up to but
// not including the protected final user turn) with a single summary
// message produced by summarize — normally core.Compact, reusing the turn
// loop's own compaction call rather than inventing a second summarization
// path.
func summarizeOldestPair(ctx context.Context, summarize Summarizer, msgs []message.Message) (Outcome, bool) {
	protect := lastUserIndex(msgs)
	if protect <= 1 {
		return Outcome{}, false
	}

	// Find the oldest exchange: the message at index 0, the reply after it,
	// and any tool results that follow that reply, so a call and its result
	// are never split (invariant ii).
	end := 2
	for end < protect && msgs[end].ToolResult != nil {
		end++
	}
	if end > protect {
		return Outcome{}, false
	}

	chunk := msgs[:end]
	summary, err := summarize(ctx, chunk)
	if err != nil {
		return Outcome{}, false
	}

	summaryMsg := message.Message{
		Role:    message.RoleUser,
		Content: fmt.Sprintf("[Earlier conversation summary]\n%s", summary),
	}

	tokensBefore := 0
	for _, m := range chunk {
		tokensBefore += estimateTokens(m.Content)
	}
	tokensAfter := estimateTokens(summaryMsg.Content)

	out := append([]message.Message{summaryMsg}, msgs[end:]...)
	return Outcome{
		Phase:       PhaseSummarizeOldestPair,
		MessagesHit: len(chunk),
		TokensSaved: tokensBefore - tokensAfter,
		Messages:    out,
	}, true
}

// emergencyDropOldest drops the oldest non-system message pair outright
// when trimming must make progress immediately and summarization (which
// costs a model round trip) can't be afforded.
func emergencyDropOldest(msgs []message.Message) (Outcome, bool) {
	protect := lastUserIndex(msgs)
	if protect <= 1 {
		return Outcome{}, false
	}

	// The pair is the message at index 0, the reply after it, and any tool
	// results that follow that reply (invariant ii).
	end := 2
	for end < protect && msgs[end].ToolResult != nil {
		end++
	}
	if end > protect {
		return Outcome{}, false
	}

	tokensSaved := 0
	for _, dropped := range msgs[:end] {
		tokensSaved += estimateTokens(dropped.Content)
		if dropped.ToolResult != nil {
			tokensSaved += estimateTokens(dropped.ToolResult.Content)
		}
	}

	return Outcome{
		Phase:       PhaseEmergencyDropOldest,
		MessagesHit: end,
		TokensSaved: tokensSaved,
		Messages:    msgs[end:],
	}, true
}

// estimateTokens is a rough chars/4 estimate used only to size trim savings
// for reporting; the authoritative count comes from provider usage data.
func estimateTokens(s string) int {
	return len(s) / 4
}
