package model

// FinishReason is the normalized terminal state of a single provider call
// (spec.md §3). Compats translate each provider's own vocabulary into one
// of these.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// UsageInfo is normalized token accounting for one provider call.
type UsageInfo struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`

	// ReasoningTokens counts tokens spent on extended thinking, when the
	// provider reports it separately from CompletionTokens.
	ReasoningTokens int `json:"reasoningTokens,omitempty"`

	// Estimated marks usage computed locally rather than reported by the
	// provider (spec.md §9 "token accounting"). No code path in this module
	// sets it.
	Estimated bool `json:"estimated,omitempty"`
}

// LLMResponse is the normalized result of a single provider call, before
// any tool loop continuation (spec.md §3, §4.10).
type LLMResponse struct {
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finishReason"`
	Usage        UsageInfo    `json:"usage"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	// RawID is the provider's own response/request identifier, kept for
	// log correlation.
	RawID string `json:"rawId,omitempty"`

	// Raw is an escape hatch for data that doesn't fit the normalized
	// shape above: per-tool-call results (raw.toolResults), recoverable
	// warnings surfaced from tool discovery, and similar diagnostics a
	// caller may want without scraping logs (spec.md §9 Open Questions).
	Raw map[string]any `json:"raw,omitempty"`
}

// ToolResultEntry records one executed tool call for LLMResponse.Raw
// ("toolResults").
type ToolResultEntry struct {
	Tool     string `json:"tool"`
	CallID   string `json:"callId"`
	Result   any    `json:"result"`
	IsError  bool   `json:"isError,omitempty"`
}

// AddToolResult appends to Raw["toolResults"], initializing Raw and the
// slice as needed.
func (r *LLMResponse) AddToolResult(e ToolResultEntry) {
	if r.Raw == nil {
		r.Raw = map[string]any{}
	}
	list, _ := r.Raw["toolResults"].([]ToolResultEntry)
	list = append(list, e)
	r.Raw["toolResults"] = list
}

// AddWarning appends a recoverable-failure message to Raw["warnings"].
func (r *LLMResponse) AddWarning(msg string) {
	if r.Raw == nil {
		r.Raw = map[string]any{}
	}
	list, _ := r.Raw["warnings"].([]string)
	list = append(list, msg)
	r.Raw["warnings"] = list
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *LLMResponse) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}
