// Package core provides a reusable agent loop that manages conversation state
// and orchestrates LLM interactions. It serves as the runtime for all agent types:
// subagents, the TUI, and custom agents.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yanmxa/gencode/internal/breaker"
	"github.com/yanmxa/gencode/internal/budget"
	"github.com/yanmxa/gencode/internal/client"
	"github.com/yanmxa/gencode/internal/config"
	"github.com/yanmxa/gencode/internal/contextmgr"
	"github.com/yanmxa/gencode/internal/executor"
	"github.com/yanmxa/gencode/internal/hooks"
	"github.com/yanmxa/gencode/internal/interrupt"
	"github.com/yanmxa/gencode/internal/ledger"
	"github.com/yanmxa/gencode/internal/log"
	"github.com/yanmxa/gencode/internal/loopdetect"
	"github.com/yanmxa/gencode/internal/message"
	"github.com/yanmxa/gencode/internal/permission"
	"github.com/yanmxa/gencode/internal/safety"
	"github.com/yanmxa/gencode/internal/status"
	"github.com/yanmxa/gencode/internal/system"
	"github.com/yanmxa/gencode/internal/tool"
	"github.com/yanmxa/gencode/internal/tool/ui"
	"github.com/yanmxa/gencode/internal/trajectory"
)

const defaultMaxTurns = 50

// RunOptions controls the synchronous Run() loop.
type RunOptions struct {
	MaxTurns    int
	OnResponse  func(resp *message.CompletionResponse)
	OnToolStart func(tc message.ToolCall) bool
	OnToolDone  func(tc message.ToolCall, result message.ToolResult)
}

// Result is returned by Loop.Run() upon completion.
type Result struct {
	Content    string
	Messages   []message.Message
	Turns      int
	Tokens     client.TokenUsage
	StopReason string // "end_turn", "max_turns" or "cancelled"
}

// --- Loop ---

// Loop is a reusable agent runtime that manages conversation state
// and orchestrates LLM interactions. It supports two execution models:
//
//	Synchronous: loop.Run(ctx, opts) — drives the full turn loop
//	Incremental: loop.Stream()/Collect()/AddResponse()/FilterToolCalls()/ExecTool() — for event-driven callers
//
// Every field beyond System/Client/Tool/Permission is optional: a nil value
// disables that subsystem so callers that only need the original turn loop
// behavior (e.g. existing tests) can construct a Loop exactly as before.
type Loop struct {
	System     *system.System
	Client     *client.Client
	Tool       *tool.Set
	Permission permission.Checker
	Hooks      *hooks.Engine

	Interrupt    *interrupt.Bus
	Budget       *budget.Counter
	Safety       *safety.Validator
	LoopDetector *loopdetect.Detector
	Breaker      *breaker.Breaker
	Ledger       *ledger.Ledger
	Trajectory   *trajectory.Logger
	Status       *status.Projector
	Executor     *executor.Executor

	// State (managed by the loop)
	messages []message.Message
}

// --- High-level: synchronous agent loop ---

// Run drives the full conversation loop: stream -> response -> tools -> repeat.
// Stops on end_turn, max turns, or cancellation (of the context or on the
// interrupt bus). A call blocked by Guard (open circuit breaker, detected
// tool-call loop, or exceeded safety cap) does not stop the loop: its error
// result is recorded and the remaining calls and turns go on.
func (l *Loop) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		if l.Safety != nil {
			l.Safety.StartTurn()
		}
		if l.LoopDetector != nil {
			l.LoopDetector.Reset()
		}
		l.trace(trajectory.EventTurnStart, turn+1, nil)

		if done, result, err := l.checkCancellation(ctx, turn); done {
			return result, err
		}

		// 1. Stream + collect response
		resp, err := Collect(ctx, l.Stream(ctx))
		if err != nil {
			return nil, err
		}
		l.trace(trajectory.EventModelCall, turn+1, map[string]any{"stop_reason": resp.StopReason})

		// 2. Process response
		calls := l.AddResponse(resp)
		if opts.OnResponse != nil {
			opts.OnResponse(resp)
		}
		l.MaybeTrim(ctx)

		// 3. No tool calls -> done
		if len(calls) == 0 {
			r := l.buildResult("end_turn", turn+1)
			r.Content = resp.Content
			return r, nil
		}

		// 4. Filter through hooks
		allowed, blocked := l.FilterToolCalls(ctx, calls)
		for _, br := range blocked {
			l.AddToolResult(br)
		}

		// 5. Execute tools, subject to safety caps and loop detection
		for _, tc := range allowed {
			if done, result, err := l.checkCancellation(ctx, turn+1); done {
				return result, err
			}

			if opts.OnToolStart != nil && !opts.OnToolStart(tc) {
				continue
			}

			if verdict, ok := l.Guard(tc); !ok {
				l.AddToolResult(verdict)
				if opts.OnToolDone != nil {
					opts.OnToolDone(tc, verdict)
				}
				continue
			}

			result := l.ExecTool(ctx, tc)
			l.AddToolResult(*result)
			l.trace(trajectory.EventToolResult, turn+1, map[string]any{"tool": tc.Name, "error": result.IsError})
			if opts.OnToolDone != nil {
				opts.OnToolDone(tc, *result)
			}
		}
	}

	return l.buildResult("max_turns", maxTurns), nil
}

// checkCancellation reports whether the turn loop should stop immediately,
// racing both the context and the interrupt bus (if configured).
func (l *Loop) checkCancellation(ctx context.Context, turn int) (bool, *Result, error) {
	select {
	case <-ctx.Done():
		return true, l.buildResult("cancelled", turn), ctx.Err()
	default:
	}
	if l.Interrupt != nil && l.Interrupt.IsCancelRequested() {
		l.Interrupt.ClearCancel()
		return true, l.buildResult("cancelled", turn), nil
	}
	return false, nil, nil
}

// Guard runs the circuit breaker, loop detector, and safety validator ahead
// of execution, folding a clean error result instead of executing when any
// trips. Returns ok=false when the call was blocked, with verdict holding
// the result to record. Callers that drive tool execution outside Run()
// (e.g. an event-driven TUI) should call Guard before RunTool for every
// tool call so these subsystems see the same traffic Run() would produce.
func (l *Loop) Guard(tc message.ToolCall) (message.ToolResult, bool) {
	params, _ := message.ParseToolInput(tc.Input)

	if l.Breaker != nil && !l.Breaker.Allow(tc.Name) {
		l.recordDecision(tc.Name, "breaker_open", "blocked")
		return *message.ErrorResult(tc, fmt.Sprintf("Tool %s is temporarily unavailable after repeated failures", tc.Name)), false
	}

	if l.LoopDetector != nil {
		sig := loopdetect.Signature(tc.Name, params)
		if isLoop, count := l.LoopDetector.RecordToolCall(sig); isLoop {
			l.trace(trajectory.EventLoopDetected, 0, map[string]any{"tool": tc.Name, "count": count})
			l.recordDecision(tc.Name, "loop_detected", "blocked")
			return *message.ErrorResult(tc, fmt.Sprintf(
				"Detected a repeated call to %s with the same arguments (%d times). Stopping to avoid a stuck loop.",
				tc.Name, count)), false
		}
	}

	if l.Safety != nil {
		if _, err := l.Safety.ValidateCall(tc.Name); err != nil {
			l.recordDecision(tc.Name, "safety_cap", "blocked")
			return *message.ErrorResult(tc, err.Error()), false
		}
	}

	return message.ToolResult{}, true
}

func (l *Loop) recordBreakerResult(tool string, success bool) {
	if l.Breaker == nil {
		return
	}
	l.Breaker.RecordResult(tool, success)
	if !success && l.Breaker.StateOf(tool) == breaker.Open {
		l.trace(trajectory.EventCircuitOpen, 0, map[string]any{"tool": tool})
	}
}

// RecordToolOutcome feeds a call's success/failure into the circuit breaker
// for callers that execute a tool call outside RunTool (e.g. an MCP call
// dispatched directly by the TUI, which RunTool doesn't know how to run).
func (l *Loop) RecordToolOutcome(tool string, success bool) {
	l.recordBreakerResult(tool, success)
}

func (l *Loop) recordDecision(toolName, action, outcome string) {
	if l.Ledger == nil {
		return
	}
	l.Ledger.RecordDecision(0, toolName, action, outcome)
}

func (l *Loop) trace(evt trajectory.EventType, turn int, data map[string]any) {
	if l.Trajectory == nil {
		return
	}
	_ = l.Trajectory.Record(trajectory.Event{Type: evt, Turn: turn, Data: data})
}

func (l *Loop) buildResult(reason string, turns int) *Result {
	return &Result{
		Content:    l.lastAssistantContent(),
		Messages:   l.messages,
		Turns:      turns,
		Tokens:     l.Client.Tokens(),
		StopReason: reason,
	}
}

// lastAssistantContent returns the content of the most recent assistant message.
func (l *Loop) lastAssistantContent() string {
	for i := len(l.messages) - 1; i >= 0; i-- {
		msg := l.messages[i]
		if msg.Role == message.RoleAssistant && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// --- Low-level: incremental control (for TUI / event-driven callers) ---

// Stream starts an LLM stream and returns the chunk channel.
// It builds the system prompt and tool set from the loop's fields.
func (l *Loop) Stream(ctx context.Context) <-chan message.StreamChunk {
	sysPrompt := l.System.Prompt()
	tools := l.Tool.Tools()
	return l.Client.Stream(ctx, l.messages, tools, sysPrompt)
}

// Collect synchronously drains a stream into a CompletionResponse.
func Collect(ctx context.Context, ch <-chan message.StreamChunk) (*message.CompletionResponse, error) {
	var response message.CompletionResponse

	for chunk := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch chunk.Type {
		case message.ChunkTypeText:
			response.Content += chunk.Text
		case message.ChunkTypeThinking:
			response.Thinking += chunk.Text
		case message.ChunkTypeToolStart:
			response.ToolCalls = append(response.ToolCalls, message.ToolCall{
				ID:   chunk.ToolID,
				Name: chunk.ToolName,
			})
		case message.ChunkTypeToolInput:
			if len(response.ToolCalls) > 0 {
				idx := len(response.ToolCalls) - 1
				response.ToolCalls[idx].Input += chunk.Text
			}
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				return chunk.Response, nil
			}
			return &response, nil
		case message.ChunkTypeError:
			return nil, chunk.Error
		}
	}

	return &response, nil
}

// --- Message management ---

// Messages returns the current conversation messages.
func (l *Loop) Messages() []message.Message {
	return l.messages
}

// SetMessages replaces the conversation messages.
func (l *Loop) SetMessages(msgs []message.Message) {
	l.messages = msgs
}

// Tokens returns the accumulated token usage from the client.
func (l *Loop) Tokens() client.TokenUsage {
	if l.Client == nil {
		return client.TokenUsage{}
	}
	return l.Client.Tokens()
}

// AddUser appends a user message to the conversation.
func (l *Loop) AddUser(content string, images []message.ImageData) {
	l.messages = append(l.messages, message.UserMessage(content, images))
	if l.Budget != nil {
		l.Budget.Add("user", estimateTokens(content))
	}
}

// AddResponse processes a CompletionResponse: appends the assistant message
// to the conversation, updates token counters, and returns the tool calls.
func (l *Loop) AddResponse(resp *message.CompletionResponse) []message.ToolCall {
	if l.Client != nil {
		l.Client.AddUsage(resp.Usage)
	}
	if l.Budget != nil {
		l.Budget.Add("assistant", resp.Usage.OutputTokens)
		l.Budget.Add("system", resp.Usage.InputTokens)
	}

	l.messages = append(l.messages, message.AssistantMessage(resp.Content, resp.Thinking, resp.ToolCalls))

	return resp.ToolCalls
}

// AddToolResult appends a tool result message to the conversation.
func (l *Loop) AddToolResult(r message.ToolResult) {
	l.messages = append(l.messages, message.ToolResultMessage(r))
	if l.Budget != nil {
		l.Budget.Add("tool_output", estimateTokens(r.Content))
	}
}

func estimateTokens(s string) int {
	return len(s) / 4
}

// --- Adaptive trim ---

// MaybeTrim checks the budget counter for a newly crossed threshold and, if
// one fired, runs the appropriate phase of contextmgr.AdaptiveTrim against
// the current history. Returns the threshold name that fired, or "" if no
// trimming was needed. Callers without a Budget counter configured get a
// no-op.
func (l *Loop) MaybeTrim(ctx context.Context) budget.Threshold {
	if l.Budget == nil {
		return ""
	}
	name, crossed := l.Budget.CheckThreshold()
	if !crossed {
		return ""
	}

	hint := contextmgr.HintConsider
	switch name {
	case budget.ThresholdCompact:
		hint = contextmgr.HintCompact
	case budget.ThresholdEmergency:
		hint = contextmgr.HintEmergency
	}

	out := contextmgr.AdaptiveTrim(ctx, l.summarizer(), l.messages, hint)
	if out.Messages != nil {
		l.messages = out.Messages
	}
	if l.Ledger != nil && out.MessagesHit > 0 {
		l.Ledger.RecordPruning(0, string(out.Phase), out.MessagesHit, out.TokensSaved)
	}
	if l.Status != nil {
		l.Status.PushNotice(fmt.Sprintf("context budget %s: trimmed via %s", name, out.Phase))
	}
	l.trace(trajectory.EventBudgetThreshold, 0, map[string]any{"threshold": string(name), "phase": string(out.Phase)})
	return name
}

func (l *Loop) summarizer() contextmgr.Summarizer {
	return func(ctx context.Context, msgs []message.Message) (string, error) {
		summary, _, err := Compact(ctx, l.Client, msgs, "")
		return summary, err
	}
}

// --- Tool dispatch ---

// FilterToolCalls runs PreToolUse hooks, returning allowed tool calls and blocked results.
func (l *Loop) FilterToolCalls(ctx context.Context, calls []message.ToolCall) (
	allowed []message.ToolCall, blocked []message.ToolResult,
) {
	if l.Hooks == nil {
		return calls, nil
	}

	for _, tc := range calls {
		params, _ := message.ParseToolInput(tc.Input)
		outcome := l.Hooks.Execute(ctx, hooks.PreToolUse, hooks.HookInput{
			ToolName:  tc.Name,
			ToolInput: params,
			ToolUseID: tc.ID,
		})

		if outcome.ShouldBlock {
			blocked = append(blocked, *message.ErrorResult(tc, "Blocked by hook: "+outcome.BlockReason))
			continue
		}

		if outcome.UpdatedInput != nil {
			if updated, err := json.Marshal(outcome.UpdatedInput); err == nil {
				tc.Input = string(updated)
			}
		}
		allowed = append(allowed, tc)
	}
	return allowed, blocked
}

// ExecTool executes a single tool call, consulting the Permission checker.
// Rejected tools return an error result; Prompt decisions are auto-approved.
func (l *Loop) ExecTool(ctx context.Context, tc message.ToolCall) *message.ToolResult {
	params, err := message.ParseToolInput(tc.Input)
	if err != nil {
		return message.ErrorResult(tc, fmt.Sprintf("Error parsing tool input: %v", err))
	}

	decision := permission.Permit
	if l.Permission != nil {
		decision = l.Permission.Check(tc.Name, params)
	}
	l.recordDecision(tc.Name, "permission_check", decisionString(decision))

	if decision == permission.Reject {
		return message.ErrorResult(tc, fmt.Sprintf("Tool %s is not permitted in this mode", tc.Name))
	}

	// Permit and Prompt both execute the tool (non-interactive callers auto-approve)
	result := l.RunTool(ctx, tc, params)
	if l.Hooks != nil {
		l.Hooks.Execute(ctx, hooks.PostToolUse, hooks.HookInput{
			ToolName:     tc.Name,
			ToolInput:    params,
			ToolUseID:    tc.ID,
			ToolResponse: result.Content,
		})
	}
	return result
}

func decisionString(d permission.Decision) string {
	switch d {
	case permission.Reject:
		return "deny"
	case permission.Prompt:
		return "prompt"
	default:
		return "permit"
	}
}

// approvedAdapter presents a PermissionAwareTool's already-approved path as
// a plain tool.Tool so the executor doesn't need to know about the
// permission-aware variant.
type approvedAdapter struct {
	tool.PermissionAwareTool
}

func (a approvedAdapter) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	return a.ExecuteApproved(ctx, params, cwd)
}

// toolPath extracts the filesystem path a tool call touched, for cache
// keying and invalidation. Falls back to cwd when the call carries no
// recognizable path argument (e.g. Bash).
func toolPath(params map[string]any, cwd string) string {
	for _, key := range []string{"file_path", "path", "dir_path", "notebook_path"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return cwd
}

// RunTool runs the actual tool execution, routing through the configured
// Executor when present and recording the outcome with the circuit breaker.
// Callers that bypass ExecTool's permission/hook wrapping (e.g. a TUI that
// already resolved permission via its own prompt flow) call this directly
// once a call has cleared Guard.
func (l *Loop) RunTool(ctx context.Context, tc message.ToolCall, params map[string]any) *message.ToolResult {
	cwd := ""
	if l.System != nil {
		cwd = l.System.Cwd
	}

	t, ok := tool.Get(tc.Name)
	if !ok {
		return message.ErrorResult(tc, fmt.Sprintf("Unknown tool: %s", tc.Name))
	}

	runnable := t
	if pat, ok := t.(tool.PermissionAwareTool); ok && pat.RequiresPermission() {
		runnable = approvedAdapter{PermissionAwareTool: pat}
	}

	var toolResult ui.ToolResult
	if l.Executor != nil {
		readOnly := config.IsReadOnlyTool(tc.Name)
		path := toolPath(params, cwd)
		cacheKey := ""
		if readOnly {
			cacheKey = executor.CacheKey(tc.Name, params, "")
		}
		var cancel <-chan struct{}
		if l.Interrupt != nil {
			cancel = l.Interrupt.Done()
		}
		res := l.Executor.Run(ctx, runnable, params, cwd, cancel, readOnly, cacheKey, path)
		if !readOnly && res.Tool.Success {
			l.Executor.Invalidate(path)
		}
		toolResult = res.Tool
	} else {
		toolResult = runnable.Execute(ctx, params, cwd)
	}

	log.Logger().Debug("Tool executed",
		zap.String("tool", tc.Name),
		zap.Bool("success", toolResult.Success),
	)
	l.recordBreakerResult(tc.Name, toolResult.Success)

	return &message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    toolResult.FormatForLLM(),
		IsError:    !toolResult.Success,
	}
}

// --- Compaction ---

// Compact summarizes a conversation to reduce context window usage.
// It sends the conversation to the LLM with a compact prompt and returns
// the summary text, the original message count, and any error.
func Compact(ctx context.Context, c *client.Client,
	msgs []message.Message, focus string) (summary string, count int, err error) {
	count = len(msgs)

	conversationText := message.BuildConversationText(msgs)

	if focus != "" {
		conversationText += fmt.Sprintf("\n\n**Important**: Focus the summary on: %s", focus)
	}

	response, err := c.Complete(ctx,
		system.CompactPrompt(),
		[]message.Message{message.UserMessage(conversationText, nil)},
		2048,
	)
	if err != nil {
		return "", count, fmt.Errorf("failed to generate summary: %w", err)
	}

	return strings.TrimSpace(response.Content), count, nil
}
