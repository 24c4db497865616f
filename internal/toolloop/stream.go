package toolloop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/pruner"
)

// StreamEventType tags the façade-level events a streaming tool-loop run
// emits: compat.StreamEvent passed through, plus the TOOL_RESULT variant
// the loop synthesizes after executing a batch (spec.md §4.9 "Streaming
// iteration").
type StreamEventType string

const (
	StreamDelta            StreamEventType = "DELTA"
	StreamReasoningDelta   StreamEventType = "REASONING_DELTA"
	StreamToolCallStart    StreamEventType = "TOOL_CALL_START"
	StreamToolCallArgsDelta StreamEventType = "TOOL_CALL_ARGUMENTS_DELTA"
	StreamToolCallEnd      StreamEventType = "TOOL_CALL_END"
	StreamToolResult       StreamEventType = "TOOL_RESULT"
	StreamUsage            StreamEventType = "USAGE"
	StreamDone             StreamEventType = "DONE"
)

// StreamEvent is one event yielded from a streaming tool-loop run.
type StreamEvent struct {
	Type StreamEventType

	Text string

	CallID         string
	ToolName       string
	ArgumentsDelta string
	Arguments      string

	ToolResult *model.ToolResultPayload
	Usage      *model.UsageInfo
}

// OpenStream starts one provider streaming call against the given history
// and tool set (nil tools means the final-prompt call). The error channel
// carries at most one value, sent before the event channel closes.
type OpenStream func(ctx context.Context, messages []model.Message, tools []model.UnifiedTool) (<-chan compat.StreamEvent, <-chan error, error)

// StreamRun drives the streaming iteration of spec.md §4.9. It returns a
// channel of façade-level events and a finish function the caller invokes
// once the channel is drained (closed) to obtain the final aggregated
// response plus updated history — the Go stand-in for a generator's
// return value.
func (l *Loop) StreamRun(ctx context.Context, messages []model.Message, open OpenStream) (<-chan StreamEvent, func() (*model.LLMResponse, []model.Message, error)) {
	out := make(chan StreamEvent)

	type final struct {
		resp *model.LLMResponse
		msgs []model.Message
		err  error
	}
	doneCh := make(chan final, 1)

	go func() {
		defer close(out)
		resp, msgs, err := l.runStream(ctx, messages, open, out)
		doneCh <- final{resp, msgs, err}
	}()

	return out, func() (*model.LLMResponse, []model.Message, error) {
		f := <-doneCh
		return f.resp, f.msgs, f.err
	}
}

func (l *Loop) runStream(ctx context.Context, messages []model.Message, open OpenStream, out chan<- StreamEvent) (*model.LLMResponse, []model.Message, error) {
	for {
		resp, assistantMsg, err := l.streamTurn(ctx, messages, l.Tools, open, out)
		if err != nil {
			return nil, messages, err
		}
		messages = append(messages, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			out <- StreamEvent{Type: StreamDone}
			return resp, messages, nil
		}

		toolMsgs, budgetHit := l.executeRound(ctx, assistantMsg.ToolCalls)
		for i, tm := range toolMsgs {
			messages = append(messages, tm)
			if ev := toolResultEvent(assistantMsg.ToolCalls[i], tm); ev != nil {
				out <- *ev
			}
		}

		if l.Flags.Countdown && !l.Budget.IsUnbounded() {
			messages = append(messages, countdownMessage(l.Budget))
		}

		messages = pruner.PruneToolResults(messages, l.Flags.PreserveToolResults)
		messages = pruner.PruneReasoning(messages, l.Flags.PreserveReasoning)

		if budgetHit && l.Flags.FinalPrompt {
			messages = append(messages, finalPromptMessage())
			resp, finalMsg, err := l.streamTurn(ctx, messages, nil, open, out)
			if err != nil {
				return nil, messages, err
			}
			messages = append(messages, finalMsg)
			out <- StreamEvent{Type: StreamDone}
			return resp, messages, nil
		}
	}
}

// streamTurn opens one streaming provider call, forwards its deltas as
// façade events, and aggregates the stream into a normalized response and
// assistant message.
func (l *Loop) streamTurn(ctx context.Context, messages []model.Message, tools []model.UnifiedTool, open OpenStream, out chan<- StreamEvent) (*model.LLMResponse, model.Message, error) {
	events, errCh, err := open(ctx, messages, tools)
	if err != nil {
		return nil, model.Message{}, err
	}

	agg := newAggregator()
	for ev := range events {
		agg.apply(ev)
		if fe, ok := translateEvent(ev); ok {
			out <- fe
		}
	}
	if err := drainErr(errCh); err != nil {
		return nil, model.Message{}, err
	}

	msg := agg.message()
	return agg.response(), msg, nil
}

func drainErr(errCh <-chan error) error {
	if errCh == nil {
		return nil
	}
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
	default:
	}
	return nil
}

// toolResultEvent extracts the tool_result payload already built into a
// formatted tool message, for the outward TOOL_RESULT event.
func toolResultEvent(call model.ToolCall, msg model.Message) *StreamEvent {
	for _, c := range msg.Content {
		if c.Type == model.ContentToolResult && c.ToolResult != nil {
			return &StreamEvent{Type: StreamToolResult, CallID: call.ID, ToolName: call.Name, ToolResult: c.ToolResult}
		}
	}
	return nil
}

func translateEvent(ev compat.StreamEvent) (StreamEvent, bool) {
	switch ev.Type {
	case compat.EventDelta:
		return StreamEvent{Type: StreamDelta, Text: ev.Text}, true
	case compat.EventReasoningDelta:
		return StreamEvent{Type: StreamReasoningDelta, Text: ev.Text}, true
	case compat.EventToolCallStart:
		return StreamEvent{Type: StreamToolCallStart, CallID: ev.CallID, ToolName: ev.ToolName}, true
	case compat.EventToolCallArgsDelta:
		return StreamEvent{Type: StreamToolCallArgsDelta, CallID: ev.CallID, ArgumentsDelta: ev.ArgumentsDelta}, true
	case compat.EventToolCallEnd:
		return StreamEvent{Type: StreamToolCallEnd, CallID: ev.CallID, Arguments: ev.Arguments}, true
	case compat.EventUsage:
		u := model.UsageInfo{
			PromptTokens:     ev.PromptTokens,
			CompletionTokens: ev.CompletionTokens,
			TotalTokens:      ev.TotalTokens,
			ReasoningTokens:  ev.ReasoningTokens,
		}
		return StreamEvent{Type: StreamUsage, Usage: &u}, true
	default:
		// FINISHED_WITH_TOOL_CALLS and DONE are internal-turn signals the
		// loop consumes itself; it emits its own DONE once the whole run
		// (not just one provider call) has finished.
		return StreamEvent{}, false
	}
}

// aggregator accumulates one streamed provider turn into a normalized
// assistant message and LLMResponse.
type aggregator struct {
	text      strings.Builder
	reasoning strings.Builder
	usage     model.UsageInfo

	toolOrder []string
	tools     map[string]*model.ToolCall
	toolArgs  map[string]*strings.Builder
}

func newAggregator() *aggregator {
	return &aggregator{
		tools:    map[string]*model.ToolCall{},
		toolArgs: map[string]*strings.Builder{},
	}
}

func (a *aggregator) apply(ev compat.StreamEvent) {
	switch ev.Type {
	case compat.EventDelta:
		a.text.WriteString(ev.Text)
	case compat.EventReasoningDelta:
		a.reasoning.WriteString(ev.Text)
	case compat.EventToolCallStart:
		a.toolOrder = append(a.toolOrder, ev.CallID)
		a.tools[ev.CallID] = &model.ToolCall{ID: ev.CallID, Name: ev.ToolName}
		a.toolArgs[ev.CallID] = &strings.Builder{}
	case compat.EventToolCallArgsDelta:
		if b, ok := a.toolArgs[ev.CallID]; ok {
			b.WriteString(ev.ArgumentsDelta)
		}
	case compat.EventToolCallEnd:
		if tc, ok := a.tools[ev.CallID]; ok {
			raw := ev.Arguments
			if raw == "" {
				if b, ok := a.toolArgs[ev.CallID]; ok {
					raw = b.String()
				}
			}
			tc.Arguments = parseArguments(raw)
		}
	case compat.EventUsage:
		a.usage = model.UsageInfo{
			PromptTokens:     ev.PromptTokens,
			CompletionTokens: ev.CompletionTokens,
			TotalTokens:      ev.TotalTokens,
			ReasoningTokens:  ev.ReasoningTokens,
		}
	}
}

func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (a *aggregator) message() model.Message {
	var content []model.ContentPart
	if a.text.Len() > 0 {
		content = append(content, model.TextPart(a.text.String()))
	}

	var calls []model.ToolCall
	for _, id := range a.toolOrder {
		if tc := a.tools[id]; tc != nil {
			calls = append(calls, *tc)
		}
	}

	msg := model.Message{Role: model.RoleAssistant, Content: content, ToolCalls: calls}
	if a.reasoning.Len() > 0 {
		msg.Reasoning = &model.Reasoning{Text: a.reasoning.String()}
	}
	return msg
}

func (a *aggregator) response() *model.LLMResponse {
	msg := a.message()
	finish := model.FinishStop
	if len(msg.ToolCalls) > 0 {
		finish = model.FinishToolCalls
	}
	return &model.LLMResponse{Message: msg, FinishReason: finish, Usage: a.usage}
}
