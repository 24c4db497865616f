package compat

import "github.com/compresr/llm-gateway/internal/model"

// Responses implements Compat for OpenAI's Responses API, an SDK-only
// family per spec.md §4.4: BuildPayload fails with ErrSDKOnly and the
// provider manager dispatches to CallSDK/StreamSDK instead. The item-id
// tool-call state machine (toolstate.ItemID) is owned by StreamSDK, the
// only place that ever sees output_item.added/done events.
type Responses struct{}

// NewResponses returns a stateless Responses Compat; streaming state
// lives inside StreamSDK, scoped to one call.
func NewResponses() *Responses { return &Responses{} }

func (r *Responses) Name() string { return "openai-responses" }

func (r *Responses) BuildPayload(req BuildRequest) (map[string]any, error) {
	return nil, &ErrSDKOnly{Compat: r.Name()}
}

func (r *Responses) ParseResponse(body []byte) (*model.LLMResponse, error) {
	return nil, &ErrSDKOnly{Compat: r.Name()}
}

func (r *Responses) ParseStreamChunk(chunk []byte) ([]StreamEvent, error) {
	return nil, &ErrSDKOnly{Compat: r.Name()}
}

func (r *Responses) GetStreamingFlags() StreamFlags {
	return StreamFlags{"stream": true}
}

func (r *Responses) SerializeTools(tools []model.UnifiedTool) any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.ParametersJSONSchema,
		})
	}
	return out
}

func (r *Responses) SerializeToolChoice(choice string) any {
	if choice == "" {
		return "auto"
	}
	return choice
}

var _ Compat = (*Responses)(nil)
