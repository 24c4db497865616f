package compat

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/compat/toolstate"
	"github.com/compresr/llm-gateway/internal/model"
)

const defaultThinkingBudget = 51200

// Anthropic implements Compat for the Messages API wire format,
// grounded on internal/adapters/anthropic.go's content-array helpers and
// tool_result block extraction, extended with signed thinking blocks and
// block-indexed streaming per spec.md §4.4/§4.5.
type Anthropic struct {
	stream *toolstate.BlockIndexed
}

// NewAnthropic returns a Compat driving a fresh stream state machine.
func NewAnthropic() *Anthropic {
	return &Anthropic{stream: toolstate.NewBlockIndexed()}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) BuildPayload(req BuildRequest) (map[string]any, error) {
	payload := map[string]any{"model": req.Model}
	if req.SystemMessage != "" {
		payload["system"] = req.SystemMessage
	}

	msgs := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, a.anthropicMessage(m))
	}
	payload["messages"] = msgs

	if len(req.Tools) > 0 {
		payload["tools"] = a.SerializeTools(req.Tools)
	}
	if req.ToolChoice != "" {
		payload["tool_choice"] = a.SerializeToolChoice(req.ToolChoice)
	}
	if req.Settings != nil && req.Settings.MaxTokens != nil {
		payload["max_tokens"] = *req.Settings.MaxTokens
	} else {
		payload["max_tokens"] = 4096
	}
	if req.Settings != nil && req.Settings.Temperature != nil {
		payload["temperature"] = *req.Settings.Temperature
	}
	a.applyReasoning(payload, req.Settings, req.Messages)
	return payload, nil
}

// anthropicMessage renders one message, placing a thinking block first
// in assistant content when reasoning with a signature is present
// (spec.md §4.4 "Anthropic-specific contract" — must be re-sent
// unaltered; the redacted flag is ignored here).
func (a *Anthropic) anthropicMessage(m model.Message) map[string]any {
	role := string(m.Role)
	if m.Role == model.RoleTool {
		role = "user"
		return map[string]any{
			"role": role,
			"content": []map[string]any{{
				"type":        "tool_result",
				"tool_use_id": m.ToolCallID,
				"content":     m.Text(),
			}},
		}
	}

	var content []map[string]any
	if m.Role == model.RoleAssistant && m.Reasoning != nil && m.Reasoning.HasSignature() {
		content = append(content, map[string]any{
			"type":      "thinking",
			"thinking":  m.Reasoning.Text,
			"signature": m.Reasoning.Metadata.Signature,
		})
	}
	for _, c := range m.Content {
		if c.Type == model.ContentText {
			if c.IsEmptyText() {
				continue
			}
			content = append(content, map[string]any{"type": "text", "text": c.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": tc.Arguments,
		})
	}
	return map[string]any{"role": role, "content": content}
}

// applyReasoning implements the Anthropic-family row of the reasoning
// serialization contract (spec.md §4.5): budget_tokens defaults to
// defaultThinkingBudget, overridden by reasoning.budget or the
// reasoningBudget alias (budget takes precedence). When thinking is
// requested but the last assistant message carries no reasoning, the
// request downgrades silently to preserve API contract compatibility.
func (a *Anthropic) applyReasoning(payload map[string]any, s *model.LLMCallSettings, msgs []model.Message) {
	if s == nil || s.Reasoning == nil || s.Reasoning.Enabled == nil || !*s.Reasoning.Enabled {
		return
	}
	if !lastAssistantHasReasoning(msgs) {
		return
	}
	budget := defaultThinkingBudget
	if s.ReasoningBudget != nil {
		budget = *s.ReasoningBudget
	}
	if s.Reasoning.Budget != nil {
		budget = *s.Reasoning.Budget
	}
	payload["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
}

func lastAssistantHasReasoning(msgs []model.Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Reasoning != nil
		}
	}
	return true
}

func (a *Anthropic) ParseResponse(body []byte) (*model.LLMResponse, error) {
	res := gjson.ParseBytes(body)
	out := &model.Message{Role: model.RoleAssistant}

	for _, block := range res.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			out.Content = append(out.Content, model.TextPart(block.Get("text").String()))
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal([]byte(block.Get("input").Raw), &args)
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: args,
			})
		case "thinking":
			out.Reasoning = &model.Reasoning{
				Text: block.Get("thinking").String(),
				Metadata: &model.ReasoningMetadata{
					Signature: block.Get("signature").String(),
				},
			}
		}
	}

	return &model.LLMResponse{
		Message:      *out,
		FinishReason: normalizeAnthropicFinish(res.Get("stop_reason").String()),
		Usage:        parseAnthropicUsage(res),
		Model:        res.Get("model").String(),
		RawID:        res.Get("id").String(),
	}, nil
}

func normalizeAnthropicFinish(reason string) model.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.FinishStop
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return model.FinishReason(reason)
	}
}

func parseAnthropicUsage(res gjson.Result) model.UsageInfo {
	u := res.Get("usage")
	prompt := int(u.Get("input_tokens").Int())
	completion := int(u.Get("output_tokens").Int())
	return model.UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// ParseStreamChunk parses one Anthropic SSE event body into canonical
// events, driving the block-indexed tool call state machine.
func (a *Anthropic) ParseStreamChunk(chunk []byte) ([]StreamEvent, error) {
	c := gjson.ParseBytes(chunk)
	typ := c.Get("type").String()

	var events []StreamEvent
	switch typ {
	case "message_start":
		a.stream.Reset()
	case "content_block_start":
		block := c.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			events = append(events, a.stream.Start(int(c.Get("index").Int()), block.Get("id").String(), block.Get("name").String()))
		}
	case "content_block_delta":
		delta := c.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			events = append(events, StreamEvent{Type: EventDelta, Text: delta.Get("text").String()})
		case "thinking_delta":
			events = append(events, StreamEvent{Type: EventReasoningDelta, Text: delta.Get("thinking").String()})
		case "input_json_delta":
			if ev, ok := a.stream.Delta(int(c.Get("index").Int()), delta.Get("partial_json").String()); ok {
				events = append(events, ev)
			}
		}
	case "content_block_stop":
		if ev, ok := a.stream.Stop(int(c.Get("index").Int())); ok {
			events = append(events, ev)
		}
	case "message_delta":
		if c.Get("delta.stop_reason").String() == "tool_use" {
			events = append(events, StreamEvent{Type: EventFinishedWithToolCalls})
		}
		if u := c.Get("usage"); u.Exists() {
			events = append(events, StreamEvent{Type: EventUsage, CompletionTokens: int(u.Get("output_tokens").Int())})
		}
	case "message_stop":
		a.stream.Reset()
		events = append(events, StreamEvent{Type: EventDone})
	}
	return events, nil
}

func (a *Anthropic) GetStreamingFlags() StreamFlags {
	return StreamFlags{"stream": true}
}

func (a *Anthropic) SerializeTools(tools []model.UnifiedTool) any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.ParametersJSONSchema,
		})
	}
	return out
}

func (a *Anthropic) SerializeToolChoice(choice string) any {
	switch choice {
	case "", "auto":
		return map[string]any{"type": "auto"}
	case "none":
		return map[string]any{"type": "none"}
	case "required":
		return map[string]any{"type": "any"}
	default:
		return map[string]any{"type": "tool", "name": choice}
	}
}
