package compat

import (
	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/model"
)

// Gemini implements Compat for Google's contents[]/parts[] wire format
// with functionCall/functionResponse parts, grounded on
// internal/adapters/gemini.go's extraction shape. Gemini is not listed
// in spec.md §4.4/§4.5's reasoning and streaming-family tables, so
// reasoning settings are not serialized and streaming reads the
// candidates[0].content.parts delta shape Gemini actually emits. No
// tool-call streaming state machine is wired for this family: a whole
// functionCall part becomes an immediate START/END pair (see
// ParseStreamChunk).
type Gemini struct{}

// NewGemini returns a stateless Gemini Compat.
func NewGemini() *Gemini { return &Gemini{} }

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) BuildPayload(req BuildRequest) (map[string]any, error) {
	payload := map[string]any{}
	if req.SystemMessage != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemMessage}},
		}
	}

	contents := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, geminiContent(m))
	}
	payload["contents"] = contents

	if len(req.Tools) > 0 {
		payload["tools"] = g.SerializeTools(req.Tools)
	}
	applyGeminiGenerationConfig(payload, req.Settings)
	return payload, nil
}

func geminiContent(m model.Message) map[string]any {
	role := "user"
	if m.Role == model.RoleAssistant {
		role = "model"
	}
	var parts []map[string]any
	if m.Role == model.RoleTool {
		parts = append(parts, map[string]any{
			"functionResponse": map[string]any{"name": m.Name, "response": map[string]any{"result": m.Text()}},
		})
		return map[string]any{"role": "user", "parts": parts}
	}
	for _, c := range m.Content {
		if c.Type == model.ContentText && !c.IsEmptyText() {
			parts = append(parts, map[string]any{"text": c.Text})
		}
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, map[string]any{
			"functionCall": map[string]any{"name": tc.Name, "args": tc.Arguments},
		})
	}
	return map[string]any{"role": role, "parts": parts}
}

func applyGeminiGenerationConfig(payload map[string]any, s *model.LLMCallSettings) {
	if s == nil {
		return
	}
	cfg := map[string]any{}
	if s.Temperature != nil {
		cfg["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		cfg["topP"] = *s.TopP
	}
	if s.MaxTokens != nil {
		cfg["maxOutputTokens"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		cfg["stopSequences"] = s.Stop
	}
	if len(cfg) > 0 {
		payload["generationConfig"] = cfg
	}
}

func (g *Gemini) ParseResponse(body []byte) (*model.LLMResponse, error) {
	res := gjson.ParseBytes(body)
	candidate := res.Get("candidates.0")
	out := &model.Message{Role: model.RoleAssistant}
	for _, part := range candidate.Get("content.parts").Array() {
		if text := part.Get("text"); text.Exists() {
			out.Content = append(out.Content, model.TextPart(text.String()))
			continue
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			var args map[string]any
			for k, v := range fc.Get("args").Map() {
				if args == nil {
					args = map[string]any{}
				}
				args[k] = v.Value()
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:      fc.Get("name").String(),
				Arguments: args,
			})
		}
	}
	usage := res.Get("usageMetadata")
	return &model.LLMResponse{
		Message:      *out,
		FinishReason: normalizeGeminiFinish(candidate.Get("finishReason").String()),
		Usage: model.UsageInfo{
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		},
	}, nil
}

func normalizeGeminiFinish(reason string) model.FinishReason {
	switch reason {
	case "STOP":
		return model.FinishStop
	case "MAX_TOKENS":
		return model.FinishLength
	case "SAFETY", "RECITATION":
		return model.FinishContentFilter
	default:
		return model.FinishReason(reason)
	}
}

// ParseStreamChunk parses one Gemini streaming JSON chunk. Gemini has no
// tool-call delta/terminator events of its own shape in the supported
// subset; a functionCall always arrives whole in a single chunk, so it
// is emitted as an immediate START+END pair rather than via a stateful
// machine.
func (g *Gemini) ParseStreamChunk(chunk []byte) ([]StreamEvent, error) {
	c := gjson.ParseBytes(chunk)
	candidate := c.Get("candidates.0")
	var events []StreamEvent
	for _, part := range candidate.Get("content.parts").Array() {
		if text := part.Get("text"); text.Exists() {
			events = append(events, StreamEvent{Type: EventDelta, Text: text.String()})
			continue
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			name := fc.Get("name").String()
			args := fc.Get("args").Raw
			events = append(events,
				StreamEvent{Type: EventToolCallStart, ToolName: name},
				StreamEvent{Type: EventToolCallEnd, ToolName: name, Arguments: args},
				StreamEvent{Type: EventFinishedWithToolCalls},
			)
		}
	}
	if usage := c.Get("usageMetadata"); usage.Exists() {
		events = append(events, StreamEvent{
			Type:             EventUsage,
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		})
	}
	return events, nil
}

func (g *Gemini) GetStreamingFlags() StreamFlags {
	return StreamFlags{}
}

func (g *Gemini) SerializeTools(tools []model.UnifiedTool) any {
	decls := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.ParametersJSONSchema,
		})
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

func (g *Gemini) SerializeToolChoice(choice string) any {
	mode := "AUTO"
	switch choice {
	case "none":
		mode = "NONE"
	case "required":
		mode = "ANY"
	}
	return map[string]any{"functionCallingConfig": map[string]any{"mode": mode}}
}
