package compat

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/compat/toolstate"
	"github.com/compresr/llm-gateway/internal/model"
)

// OpenAI implements Compat for the Chat Completions wire format
// (messages[] with role="tool" items), grounded on
// internal/adapters/openai.go's extractChatCompletions path.
type OpenAI struct {
	stream *toolstate.IndexFirst
}

// NewOpenAI returns a Compat driving a fresh stream state machine.
func NewOpenAI() *OpenAI {
	return &OpenAI{stream: toolstate.NewIndexFirst()}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) BuildPayload(req BuildRequest) (map[string]any, error) {
	payload := map[string]any{
		"model": req.Model,
	}
	msgs := make([]map[string]any, 0, len(req.Messages)+1)
	if req.SystemMessage != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": req.SystemMessage})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage(m))
	}
	payload["messages"] = msgs

	if len(req.Tools) > 0 {
		payload["tools"] = o.SerializeTools(req.Tools)
	}
	if req.ToolChoice != "" {
		payload["tool_choice"] = o.SerializeToolChoice(req.ToolChoice)
	}
	applyOpenAISettings(payload, req.Settings)
	return payload, nil
}

func openAIMessage(m model.Message) map[string]any {
	out := map[string]any{"role": string(m.Role)}
	if m.Role == model.RoleTool {
		out["tool_call_id"] = m.ToolCallID
		out["content"] = m.Text()
		return out
	}
	if text := m.Text(); text != "" || len(m.ToolCalls) == 0 {
		out["content"] = text
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": string(args),
				},
			})
		}
		out["tool_calls"] = calls
	}
	return out
}

func applyOpenAISettings(payload map[string]any, s *model.LLMCallSettings) {
	if s == nil {
		return
	}
	if s.Temperature != nil {
		payload["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		payload["top_p"] = *s.TopP
	}
	if s.MaxTokens != nil {
		payload["max_tokens"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		payload["stop"] = s.Stop
	}
	if s.Seed != nil {
		payload["seed"] = *s.Seed
	}
	if s.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *s.FrequencyPenalty
	}
	if s.PresencePenalty != nil {
		payload["presence_penalty"] = *s.PresencePenalty
	}
	applyOpenAIReasoning(payload, s)
}

// applyOpenAIReasoning implements the OpenAI-family row of the reasoning
// serialization contract (spec.md §4.5): effort, when set, is forwarded as
// reasoning.effort; otherwise reasoning.budget (or the reasoningBudget
// alias, budget taking precedence) is forwarded as reasoning.max_tokens.
func applyOpenAIReasoning(payload map[string]any, s *model.LLMCallSettings) {
	r := s.Reasoning
	if r == nil {
		return
	}
	reasoning := map[string]any{}
	if r.Enabled != nil && *r.Enabled {
		reasoning["enabled"] = true
	}
	if r.Effort != "" {
		reasoning["effort"] = r.Effort
	} else {
		var budget *int
		if s.ReasoningBudget != nil {
			budget = s.ReasoningBudget
		}
		if r.Budget != nil {
			budget = r.Budget
		}
		if budget != nil {
			reasoning["max_tokens"] = *budget
		}
	}
	if r.Exclude != nil {
		reasoning["exclude"] = *r.Exclude
	}
	if len(reasoning) > 0 {
		payload["reasoning"] = reasoning
	}
}

func (o *OpenAI) ParseResponse(body []byte) (*model.LLMResponse, error) {
	res := gjson.ParseBytes(body)
	choice := res.Get("choices.0")
	msg := choice.Get("message")

	out := &model.Message{Role: model.RoleAssistant}
	if text := msg.Get("content"); text.Exists() && text.String() != "" {
		out.Content = append(out.Content, model.TextPart(text.String()))
	}
	for _, tc := range msg.Get("tool_calls").Array() {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args)
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: args,
		})
	}
	if reasoning := msg.Get("reasoning"); reasoning.Exists() {
		out.Reasoning = &model.Reasoning{Text: reasoning.String()}
	}

	return &model.LLMResponse{
		Message:      *out,
		FinishReason: normalizeOpenAIFinish(choice.Get("finish_reason").String()),
		Usage:        parseOpenAIUsage(res),
		Model:        res.Get("model").String(),
		RawID:        res.Get("id").String(),
	}, nil
}

func normalizeOpenAIFinish(reason string) model.FinishReason {
	switch reason {
	case "stop":
		return model.FinishStop
	case "length":
		return model.FinishLength
	case "tool_calls", "function_call":
		return model.FinishToolCalls
	case "content_filter":
		return model.FinishContentFilter
	default:
		return model.FinishReason(reason)
	}
}

func parseOpenAIUsage(res gjson.Result) model.UsageInfo {
	u := res.Get("usage")
	return model.UsageInfo{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
		ReasoningTokens:  int(u.Get("completion_tokens_details.reasoning_tokens").Int()),
	}
}

// ParseStreamChunk parses one SSE "data: {...}" payload (without the
// "data: " prefix) into canonical events, driving the index-first tool
// call state machine (spec.md §4.4).
func (o *OpenAI) ParseStreamChunk(chunk []byte) ([]StreamEvent, error) {
	if strings.TrimSpace(string(chunk)) == "[DONE]" {
		return []StreamEvent{{Type: EventDone}}, nil
	}
	c := gjson.ParseBytes(chunk)
	choice := c.Get("choices.0")
	delta := choice.Get("delta")

	var events []StreamEvent
	if text := delta.Get("content"); text.Exists() && text.String() != "" {
		events = append(events, StreamEvent{Type: EventDelta, Text: text.String()})
	}
	if reasoning := delta.Get("reasoning"); reasoning.Exists() && reasoning.String() != "" {
		events = append(events, StreamEvent{Type: EventReasoningDelta, Text: reasoning.String()})
	}
	for _, tc := range delta.Get("tool_calls").Array() {
		index := int(tc.Get("index").Int())
		id := tc.Get("id").String()
		name := tc.Get("function.name").String()
		args := tc.Get("function.arguments").String()
		events = append(events, o.stream.Delta(index, id, name, args))
	}

	finish := choice.Get("finish_reason").String()
	if finish == "tool_calls" {
		events = append(events, o.stream.FinishToolCalls()...)
		events = append(events, StreamEvent{Type: EventFinishedWithToolCalls})
	}
	if finish != "" {
		o.stream.Reset()
	}
	if u := c.Get("usage"); u.Exists() {
		events = append(events, StreamEvent{
			Type:             EventUsage,
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		})
	}
	return events, nil
}

func (o *OpenAI) GetStreamingFlags() StreamFlags {
	return StreamFlags{"stream": true, "stream_options": map[string]any{"include_usage": true}}
}

func (o *OpenAI) SerializeTools(tools []model.UnifiedTool) any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.ParametersJSONSchema,
			},
		})
	}
	return out
}

func (o *OpenAI) SerializeToolChoice(choice string) any {
	switch choice {
	case "", "auto":
		return "auto"
	case "none", "required":
		return choice
	default:
		return map[string]any{"type": "function", "function": map[string]any{"name": choice}}
	}
}
