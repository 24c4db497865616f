// Package compat holds one translator per provider wire format: OpenAI
// chat completions, Anthropic messages, Gemini, Bedrock (Anthropic on
// Bedrock + SigV4), Ollama, and the Responses SDK-only family. Each
// implements the Compat capability interface; optional capabilities are
// detected with type assertions, mirroring the teacher's adapter registry
// (internal/adapters/registry.go) generalized from a map of response
// extractors to a map of full request/response translators.
package compat

import "github.com/compresr/llm-gateway/internal/model"

// BuildRequest bundles everything a Compat needs to construct an outgoing
// payload (spec.md §4.3).
type BuildRequest struct {
	Model         string
	Messages      []model.Message
	SystemMessage string
	Tools         []model.UnifiedTool
	ToolChoice    string
	Settings      *model.LLMCallSettings
	Streaming     bool
}

// StreamFlags are merged into a payload when a call streams (spec.md
// §4.3 step 3).
type StreamFlags map[string]any

// Compat is the required capability set every provider translator
// implements (spec.md §4.4).
type Compat interface {
	// Name identifies this compat in manifests and logs.
	Name() string

	// BuildPayload builds the wire-format request body. SDK-only compats
	// return ErrSDKOnly and implement CallSDK/StreamSDK instead.
	BuildPayload(req BuildRequest) (map[string]any, error)

	// ParseResponse normalizes a non-streaming HTTP response body into
	// an LLMResponse.
	ParseResponse(body []byte) (*model.LLMResponse, error)

	// ParseStreamChunk normalizes one SSE data chunk into zero or more
	// canonical stream events. See toolstate for the per-family tool
	// call state machines each compat drives internally.
	ParseStreamChunk(chunk []byte) ([]StreamEvent, error)

	// GetStreamingFlags returns the flags BuildPayload's caller merges
	// into the payload when streaming (spec.md §4.3 step 3).
	GetStreamingFlags() StreamFlags

	// SerializeTools renders the unified tool list into this provider's
	// wire shape.
	SerializeTools(tools []model.UnifiedTool) any

	// SerializeToolChoice renders a tool-choice setting into this
	// provider's wire shape.
	SerializeToolChoice(choice string) any
}

// ProviderExtensionApplier is an optional Compat capability: when
// present, the payload builder calls it with the compat-consumed extras
// left over after manifest extension application (spec.md §4.3 step 6).
type ProviderExtensionApplier interface {
	ApplyProviderExtensions(payload map[string]any, extras map[string]any) map[string]any
}

// SDKCaller is an optional Compat capability for SDK-only provider
// families (e.g. Responses) that cannot build a raw HTTP payload.
type SDKCaller interface {
	CallSDK(req BuildRequest) (*model.LLMResponse, error)
}

// SDKStreamer is the streaming counterpart of SDKCaller.
type SDKStreamer interface {
	StreamSDK(req BuildRequest) (<-chan StreamEvent, error)
}

// ErrSDKOnly is returned by BuildPayload on an SDK-only compat.
type ErrSDKOnly struct{ Compat string }

func (e *ErrSDKOnly) Error() string {
	return e.Compat + " is an SDK-only compat; call CallSDK/StreamSDK instead of BuildPayload"
}
