package model

import "strconv"

// VectorContextMode controls how vector retrieval is surfaced to the model.
type VectorContextMode string

const (
	VectorContextOff  VectorContextMode = "off"
	VectorContextTool VectorContextMode = "tool"
	VectorContextAuto VectorContextMode = "auto"
	VectorContextBoth VectorContextMode = "both"
)

// VectorContext configures retrieval-augmented context for a call.
type VectorContext struct {
	Mode  VectorContextMode `json:"mode,omitempty"`
	TopK  int               `json:"topK,omitempty"`
	Store string            `json:"store,omitempty"`
}

// ProviderChoice is one entry in a call spec's provider priority list.
// Settings is kept as a raw map (rather than *LLMCallSettings) because it
// may carry both recognized setting keys and unrecognized provider
// extras (spec.md §4.10 step 2) — decoding straight into the typed
// struct would silently drop the extras before the coordinator ever sees
// them.
type ProviderChoice struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Settings map[string]any `json:"settings,omitempty"`
}

// LLMCallSpec is the provider-agnostic call specification accepted at the
// HTTP boundary (spec.md §3, §6).
type LLMCallSpec struct {
	Messages []Message `json:"messages"`

	LLMPriority []ProviderChoice `json:"llmPriority"`

	Tools              []UnifiedTool `json:"tools,omitempty"`
	FunctionToolNames  []string      `json:"functionToolNames,omitempty"`
	MCPServers         []string      `json:"mcpServers,omitempty"`
	VectorPriority     []string      `json:"vectorPriority,omitempty"`
	VectorContext      *VectorContext `json:"vectorContext,omitempty"`

	// Settings is a raw map for the same reason as ProviderChoice.Settings:
	// it may hold both recognized keys and provider extras.
	Settings map[string]any `json:"settings,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks required fields and structural invariants (spec.md §6).
func (s *LLMCallSpec) Validate() error {
	if len(s.Messages) == 0 {
		return ErrValidation("messages is required and must be non-empty")
	}
	if len(s.LLMPriority) == 0 {
		return ErrValidation("llmPriority is required and must be non-empty")
	}
	for i, p := range s.LLMPriority {
		if p.Provider == "" {
			return ErrValidation("llmPriority[" + strconv.Itoa(i) + "].provider is required")
		}
		if p.Model == "" {
			return ErrValidation("llmPriority[" + strconv.Itoa(i) + "].model is required")
		}
	}
	for i, m := range s.Messages {
		if err := validateMessage(i, m); err != nil {
			return err
		}
	}
	return nil
}

func validateMessage(i int, m Message) error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return ErrValidation("messages[" + strconv.Itoa(i) + "].role is invalid: " + string(m.Role))
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return ErrValidation("messages[" + strconv.Itoa(i) + "] has role=tool but no toolCallId")
	}
	if m.Role != RoleTool && m.ToolCallID != "" {
		return ErrValidation("messages[" + strconv.Itoa(i) + "] has toolCallId but role != tool")
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return ErrValidation("messages[" + strconv.Itoa(i) + "] has toolCalls but role != assistant")
	}
	return nil
}

// ValidationError is returned by Validate on a malformed spec; the HTTP
// façade maps it to 400 (spec.md §6, §7).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrValidation builds a *ValidationError.
func ErrValidation(msg string) error { return &ValidationError{Message: msg} }
