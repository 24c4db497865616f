package model

// ReasoningMetadata carries provider-specific, loss-free round-trip data
// for a reasoning block — most importantly a cryptographic signature some
// providers (Anthropic) require unaltered on subsequent turns.
type ReasoningMetadata struct {
	Signature string `json:"signature,omitempty"`
	// RawDetails preserves a rich provider-specific reasoning_details list
	// verbatim so it can be re-sent without loss (see spec.md §4.4).
	RawDetails []map[string]any `json:"rawDetails,omitempty"`
}

// Reasoning is a single normalized thinking/reasoning block.
type Reasoning struct {
	Text     string             `json:"text"`
	Redacted bool               `json:"redacted,omitempty"`
	Metadata *ReasoningMetadata `json:"metadata,omitempty"`
}

// HasSignature reports whether this reasoning block must be round-tripped
// verbatim because it carries a provider signature.
func (r *Reasoning) HasSignature() bool {
	return r != nil && r.Metadata != nil && r.Metadata.Signature != ""
}

// ToolCall is a single function/tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Message is one turn in the conversation. Role-dependent invariants
// (spec.md §3) are enforced by Validate, not by the type system, since Go
// has no sum types over struct shape.
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	Reasoning  *Reasoning    `json:"reasoning,omitempty"`
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if c.Type == ContentText {
			out += c.Text
		}
	}
	return out
}

// FirstTextIndex returns the index of the first text part, or -1.
func (m Message) FirstTextIndex() int {
	for i, c := range m.Content {
		if c.Type == ContentText {
			return i
		}
	}
	return -1
}

// IsToolCycleStart reports whether this assistant message begins a tool
// cycle (spec.md §4.2 GLOSSARY: "tool cycle").
func (m Message) IsToolCycleStart() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
