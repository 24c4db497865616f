package compat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/compat/toolstate"
	"github.com/compresr/llm-gateway/internal/model"
)

const responsesAPIURL = "https://api.openai.com/v1/responses"

// CallSDK implements the SDKCaller capability for the Responses family:
// a non-streaming call against the Responses endpoint using the
// input[]/output[] item shape rather than messages[]/choices[].
func (r *Responses) CallSDK(req BuildRequest) (*model.LLMResponse, error) {
	payload := r.buildResponsesPayload(req, false)
	body, err := postResponses(payload)
	if err != nil {
		return nil, err
	}
	return parseResponsesBody(body)
}

// StreamSDK implements the SDKStreamer capability, driving the item-id
// tool-call state machine against the Responses SSE stream.
func (r *Responses) StreamSDK(req BuildRequest) (<-chan StreamEvent, error) {
	payload := r.buildResponsesPayload(req, true)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, responsesAPIURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+os.Getenv("OPENAI_API_KEY"))

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		state := toolstate.NewItemID()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			for _, ev := range parseResponsesStreamEvent(data, state) {
				out <- ev
			}
		}
	}()
	return out, nil
}

func (r *Responses) buildResponsesPayload(req BuildRequest, streaming bool) map[string]any {
	input := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		input = append(input, responsesItem(m))
	}
	payload := map[string]any{
		"model": req.Model,
		"input": input,
	}
	if req.SystemMessage != "" {
		payload["instructions"] = req.SystemMessage
	}
	if len(req.Tools) > 0 {
		payload["tools"] = r.SerializeTools(req.Tools)
	}
	if streaming {
		payload["stream"] = true
	}
	if req.Settings != nil && req.Settings.Reasoning != nil && req.Settings.Reasoning.Effort != "" {
		payload["reasoning"] = map[string]any{"effort": req.Settings.Reasoning.Effort}
	}
	return payload
}

func responsesItem(m model.Message) map[string]any {
	if m.Role == model.RoleTool {
		return map[string]any{
			"type":    "function_call_output",
			"call_id": m.ToolCallID,
			"output":  m.Text(),
		}
	}
	return map[string]any{"role": string(m.Role), "content": m.Text()}
}

func postResponses(payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, responsesAPIURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+os.Getenv("OPENAI_API_KEY"))

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("responses API error: status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func parseResponsesBody(body []byte) (*model.LLMResponse, error) {
	res := gjson.ParseBytes(body)
	out := &model.Message{Role: model.RoleAssistant}
	for _, item := range res.Get("output").Array() {
		switch item.Get("type").String() {
		case "message":
			for _, c := range item.Get("content").Array() {
				if c.Get("type").String() == "output_text" {
					out.Content = append(out.Content, model.TextPart(c.Get("text").String()))
				}
			}
		case "function_call":
			var args map[string]any
			_ = json.Unmarshal([]byte(item.Get("arguments").String()), &args)
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        item.Get("call_id").String(),
				Name:      item.Get("name").String(),
				Arguments: args,
			})
		}
	}
	finish := model.FinishStop
	if len(out.ToolCalls) > 0 {
		finish = model.FinishToolCalls
	}
	usage := res.Get("usage")
	return &model.LLMResponse{
		Message:      *out,
		FinishReason: finish,
		Usage: model.UsageInfo{
			PromptTokens:     int(usage.Get("input_tokens").Int()),
			CompletionTokens: int(usage.Get("output_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		},
		Model: res.Get("model").String(),
		RawID: res.Get("id").String(),
	}, nil
}

// parseResponsesStreamEvent drives the item-id state machine for one SSE
// "data:" payload (spec.md §4.4 "Item-id providers").
func parseResponsesStreamEvent(data string, state *toolstate.ItemID) []StreamEvent {
	c := gjson.Parse(data)
	typ := c.Get("type").String()

	switch typ {
	case "response.output_text.delta":
		return []StreamEvent{{Type: EventDelta, Text: c.Get("delta").String()}}
	case "response.reasoning_text.delta":
		return []StreamEvent{{Type: EventReasoningDelta, Text: c.Get("delta").String()}}
	case "response.output_item.added":
		item := c.Get("item")
		if item.Get("type").String() == "function_call" {
			return []StreamEvent{state.Start(item.Get("id").String(), item.Get("call_id").String(), item.Get("name").String())}
		}
	case "response.function_call_arguments.delta":
		if ev, ok := state.Delta(c.Get("item_id").String(), c.Get("delta").String()); ok {
			return []StreamEvent{ev}
		}
	case "response.output_item.done":
		item := c.Get("item")
		if item.Get("type").String() == "function_call" {
			if ev, ok := state.Done(item.Get("id").String()); ok {
				return []StreamEvent{ev}
			}
		}
	case "response.completed":
		events := []StreamEvent{}
		if state.FinishedWithToolCalls() {
			events = append(events, StreamEvent{Type: EventFinishedWithToolCalls})
		}
		if usage := c.Get("response.usage"); usage.Exists() {
			events = append(events, StreamEvent{
				Type:             EventUsage,
				PromptTokens:     int(usage.Get("input_tokens").Int()),
				CompletionTokens: int(usage.Get("output_tokens").Int()),
			})
		}
		events = append(events, StreamEvent{Type: EventDone})
		state.Reset()
		return events
	}
	return nil
}

var (
	_ SDKCaller   = (*Responses)(nil)
	_ SDKStreamer = (*Responses)(nil)
)
