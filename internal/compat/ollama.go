package compat

import (
	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/compat/toolstate"
	"github.com/compresr/llm-gateway/internal/model"
)

// Ollama implements Compat for a local Ollama server's chat API, which
// mirrors OpenAI's messages[]/tool_calls[] shape closely enough to reuse
// OpenAI's message and tool serialization, but lacks OpenAI's
// reasoning/usage fields and instead reports eval_count/prompt_eval_count
// on a single trailing "done" chunk rather than incremental usage
// deltas.
type Ollama struct {
	stream *toolstate.IndexFirst
}

// NewOllama returns a Compat driving a fresh stream state machine.
func NewOllama() *Ollama {
	return &Ollama{stream: toolstate.NewIndexFirst()}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) BuildPayload(req BuildRequest) (map[string]any, error) {
	msgs := make([]map[string]any, 0, len(req.Messages)+1)
	if req.SystemMessage != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": req.SystemMessage})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage(m))
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": msgs,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = o.SerializeTools(req.Tools)
	}
	options := map[string]any{}
	if req.Settings != nil {
		if req.Settings.Temperature != nil {
			options["temperature"] = *req.Settings.Temperature
		}
		if req.Settings.TopP != nil {
			options["top_p"] = *req.Settings.TopP
		}
		if req.Settings.MaxTokens != nil {
			options["num_predict"] = *req.Settings.MaxTokens
		}
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	return payload, nil
}

func (o *Ollama) ParseResponse(body []byte) (*model.LLMResponse, error) {
	res := gjson.ParseBytes(body)
	msg := res.Get("message")
	out := &model.Message{Role: model.RoleAssistant}
	if text := msg.Get("content"); text.Exists() && text.String() != "" {
		out.Content = append(out.Content, model.TextPart(text.String()))
	}
	for _, tc := range msg.Get("tool_calls").Array() {
		var args map[string]any
		for k, v := range tc.Get("function.arguments").Map() {
			if args == nil {
				args = map[string]any{}
			}
			args[k] = v.Value()
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:      tc.Get("function.name").String(),
			Arguments: args,
		})
	}
	finish := model.FinishStop
	if len(out.ToolCalls) > 0 {
		finish = model.FinishToolCalls
	}
	return &model.LLMResponse{
		Message:      *out,
		FinishReason: finish,
		Usage: model.UsageInfo{
			PromptTokens:     int(res.Get("prompt_eval_count").Int()),
			CompletionTokens: int(res.Get("eval_count").Int()),
			TotalTokens:      int(res.Get("prompt_eval_count").Int() + res.Get("eval_count").Int()),
		},
		Model: res.Get("model").String(),
	}, nil
}

// ParseStreamChunk parses one Ollama NDJSON line. Ollama streams whole
// tool calls on the message that carries them rather than incremental
// argument fragments, so each call is emitted as an immediate START+END
// pair.
func (o *Ollama) ParseStreamChunk(chunk []byte) ([]StreamEvent, error) {
	c := gjson.ParseBytes(chunk)
	msg := c.Get("message")
	var events []StreamEvent
	if text := msg.Get("content"); text.Exists() && text.String() != "" {
		events = append(events, StreamEvent{Type: EventDelta, Text: text.String()})
	}
	for _, tc := range msg.Get("tool_calls").Array() {
		name := tc.Get("function.name").String()
		args := tc.Get("function.arguments").Raw
		events = append(events,
			StreamEvent{Type: EventToolCallStart, ToolName: name},
			StreamEvent{Type: EventToolCallEnd, ToolName: name, Arguments: args},
		)
	}
	if len(events) > 0 && msg.Get("tool_calls").Exists() {
		events = append(events, StreamEvent{Type: EventFinishedWithToolCalls})
	}
	if c.Get("done").Bool() {
		events = append(events, StreamEvent{
			Type:             EventUsage,
			PromptTokens:     int(c.Get("prompt_eval_count").Int()),
			CompletionTokens: int(c.Get("eval_count").Int()),
		}, StreamEvent{Type: EventDone})
	}
	return events, nil
}

func (o *Ollama) GetStreamingFlags() StreamFlags {
	return StreamFlags{"stream": true}
}

func (o *Ollama) SerializeTools(tools []model.UnifiedTool) any {
	return NewOpenAI().SerializeTools(tools)
}

func (o *Ollama) SerializeToolChoice(choice string) any {
	return nil
}
