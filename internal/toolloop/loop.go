package toolloop

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/compresr/llm-gateway/internal/budget"
	"github.com/compresr/llm-gateway/internal/dispatch"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/pruner"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

const (
	budgetExhaustedError   = "tool_call_budget_exhausted"
	toolExecutionFailedErr = "tool_execution_failed"
	truncationMarker       = "[tool result truncated]"
	finalPromptText        = "All tool calls have been consumed. Respond using only the information already gathered."
)

// Turn performs one non-streaming provider call against the given history
// and effective (sanitized) tool set. A nil tools argument means "no
// tools" (the final-prompt call, spec.md §4.9).
type Turn func(ctx context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error)

// Loop drives one coordinator run's assistant/tool/assistant cycle
// (spec.md §4.9, component C9). Tools and AliasMap are the effective,
// sanitized-name set discovery assembled for this run (spec.md §4.7); the
// alias map resolves a wire tool call's sanitized name back to the
// original the dispatcher routes on.
type Loop struct {
	Dispatcher *dispatch.Dispatcher
	Turn       Turn
	Tools      []model.UnifiedTool
	AliasMap   *sanitize.AliasMap
	Budget     *budget.ToolCallBudget
	Flags      Flags

	RequestID string
	BatchID   string
}

// Run drives the non-streaming iteration described in spec.md §4.9,
// starting from an initial provider response. It returns the final
// response and the full updated message history.
func (l *Loop) Run(ctx context.Context, messages []model.Message, last *model.LLMResponse) (*model.LLMResponse, []model.Message, error) {
	for {
		// Reasoning on the response is carried along with the assistant
		// message so providers requiring a signed reasoning block keep
		// functioning across turns (spec.md §4.9).
		messages = append(messages, last.Message)

		if !last.HasToolCalls() {
			return last, messages, nil
		}

		toolMsgs, budgetHit := l.executeRound(ctx, last.Message.ToolCalls)
		messages = append(messages, toolMsgs...)

		if l.Flags.Countdown && !l.Budget.IsUnbounded() {
			messages = append(messages, countdownMessage(l.Budget))
		}

		messages = pruner.PruneToolResults(messages, l.Flags.PreserveToolResults)
		messages = pruner.PruneReasoning(messages, l.Flags.PreserveReasoning)

		if budgetHit && l.Flags.FinalPrompt {
			messages = append(messages, finalPromptMessage())
			resp, err := l.Turn(ctx, messages, nil)
			if err != nil {
				return nil, messages, err
			}
			return resp, messages, nil
		}

		resp, err := l.Turn(ctx, messages, l.Tools)
		if err != nil {
			return nil, messages, err
		}
		last = resp
	}
}

// scheduledCall pairs a tool call with the budget progress computed at
// the moment it was admitted (spec.md §4.9 "Progress fields").
type scheduledCall struct {
	call     model.ToolCall
	progress budget.Progress
}

// executeRound consumes budget for each call in order, executes the
// admitted subset (sequentially or in parallel per Flags.Parallel), and
// returns one tool message per original call in call order — including a
// budget-exhausted message for every call rejected once the budget runs
// out (spec.md §4.9 "for each tool call ... if budget.consume(1) rejects
// ... append a tool message ... for this and all remaining calls").
func (l *Loop) executeRound(ctx context.Context, calls []model.ToolCall) ([]model.Message, bool) {
	msgs := make([]model.Message, len(calls))
	scheduled := make([]scheduledCall, 0, len(calls))
	budgetHit := false
	rejectedFrom := len(calls)

	for i, c := range calls {
		if !l.Budget.Consume(1) {
			budgetHit = true
			rejectedFrom = i
			break
		}
		progress := budget.ProgressFor(l.Budget, 0, len(calls))
		scheduled = append(scheduled, scheduledCall{call: c, progress: progress})
	}

	outcomes := l.executeParallel(ctx, scheduled)
	for i, o := range outcomes {
		msgs[i] = formatToolMessage(o, l.Flags.ToolResultMaxChars)
	}
	for i := rejectedFrom; i < len(calls); i++ {
		msgs[i] = budgetExhaustedMessage(calls[i])
	}
	return msgs, budgetHit
}

// callOutcome is the result of invoking one admitted tool call.
type callOutcome struct {
	call   model.ToolCall
	result any
	err    error
}

// executeParallel executes admitted calls concurrently, bounded by
// Flags.MaxParallel, when Flags.Parallel is set and the batch has more
// than one call; otherwise it takes the sequential fast path with no
// goroutine overhead.
func (l *Loop) executeParallel(ctx context.Context, scheduled []scheduledCall) []callOutcome {
	outcomes := make([]callOutcome, len(scheduled))
	if len(scheduled) == 0 {
		return outcomes
	}
	if len(scheduled) == 1 || !l.Flags.Parallel {
		for i, sc := range scheduled {
			outcomes[i] = l.invoke(ctx, sc)
		}
		return outcomes
	}

	limit := l.Flags.MaxParallel
	if limit <= 0 {
		limit = defaultMaxParallel
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range scheduled {
		i, sc := i, sc
		g.Go(func() error {
			outcomes[i] = l.invoke(gCtx, sc)
			return nil // never propagate: failures are captured in the outcome
		})
	}
	_ = g.Wait()
	return outcomes
}

// invoke resolves the original tool name and dispatches a single call,
// threading the progress fields into the dispatcher context for telemetry
// (spec.md §4.9).
func (l *Loop) invoke(ctx context.Context, sc scheduledCall) callOutcome {
	originalName := sc.call.Name
	if l.AliasMap != nil {
		if orig, ok := l.AliasMap.Resolve(sc.call.Name); ok {
			originalName = orig
		}
	}

	tc := dispatch.ToolContext{
		CallID:    sc.call.ID,
		ToolName:  originalName,
		Arguments: sc.call.Arguments,
		RequestID: l.RequestID,
		BatchID:   l.BatchID,
	}
	if sc.progress.Bounded {
		tc.ToolCallNumber = sc.progress.ToolCallNumber
		tc.ToolCallTotal = sc.progress.ToolCallTotal
		tc.ToolCallsRemaining = sc.progress.ToolCallsRemaining
		tc.FinalToolCall = sc.progress.FinalToolCall
	}

	result, err := l.Dispatcher.Dispatch(ctx, tc)
	return callOutcome{call: sc.call, result: result, err: err}
}

// formatToolMessage builds the tool message for one executed call: a text
// part plus a tool_result part, truncating the text per maxChars when set
// (spec.md §4.9).
func formatToolMessage(o callOutcome, maxChars int) model.Message {
	if o.err != nil {
		return errorToolMessage(o.call, o.err)
	}

	text := stringifyResult(o.result)
	var parts []model.ContentPart
	if maxChars > 0 && len(text) > maxChars {
		parts = append(parts, model.TextPart(text[:maxChars]+"…"), model.TextPart(truncationMarker))
	} else {
		parts = append(parts, model.TextPart(text))
	}
	parts = append(parts, model.ToolResultPart(o.call.Name, o.result, false))

	return model.Message{Role: model.RoleTool, ToolCallID: o.call.ID, Content: parts}
}

// errorToolMessage converts any dispatcher error into the fixed
// {error:"tool_execution_failed", message, tool} shape (spec.md §4.9
// "Tool error handling").
func errorToolMessage(call model.ToolCall, err error) model.Message {
	payload := map[string]any{
		"error":   toolExecutionFailedErr,
		"message": err.Error(),
		"tool":    call.Name,
	}
	return model.Message{
		Role:       model.RoleTool,
		ToolCallID: call.ID,
		Content: []model.ContentPart{
			model.TextPart(stringifyResult(payload)),
			model.ToolResultPart(call.Name, payload, true),
		},
	}
}

// budgetExhaustedMessage is appended for a call that was never invoked
// because the budget ran out (spec.md §4.9).
func budgetExhaustedMessage(call model.ToolCall) model.Message {
	payload := map[string]any{"error": budgetExhaustedError, "tool": call.Name}
	return model.Message{
		Role:       model.RoleTool,
		ToolCallID: call.ID,
		Content: []model.ContentPart{
			model.TextPart(stringifyResult(payload)),
			model.ToolResultPart(call.Name, payload, true),
		},
	}
}

// countdownMessage is appended once per round, after every tool message,
// when countdown is enabled and the budget is bounded (spec.md §4.9,
// §8 "Messages appended by the tool loop preserve provider-observed
// order ... then optional countdown, then the next assistant turn").
func countdownMessage(b *budget.ToolCallBudget) model.Message {
	return model.Message{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart(budget.CountdownText(b))}}
}

// finalPromptMessage is the synthetic user message appended when the
// budget is exhausted and the final prompt is enabled (spec.md §4.9).
func finalPromptMessage() model.Message {
	return model.Message{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart(finalPromptText)}}
}

// stringifyResult renders a dispatcher result (or error payload) as the
// text part of a tool message: strings pass through verbatim, everything
// else is JSON-encoded.
func stringifyResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
