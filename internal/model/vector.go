package model

import "strconv"

// VectorCallSpec is the request envelope accepted by the façade's
// /vector/run and /vector/stream endpoints (spec.md §4.12, §6): query one
// or more configured vector stores in priority order and return the raw
// similarity-search hits (as opposed to the tool-shaped recommendations
// internal/discovery folds into a call's effective tool set).
type VectorCallSpec struct {
	Query         string         `json:"query"`
	StorePriority []string       `json:"storePriority"`
	TopK          int            `json:"topK,omitempty"`
	Filter        map[string]any `json:"filter,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate checks required fields (spec.md §6 "Validation errors return
// HTTP 400").
func (s *VectorCallSpec) Validate() error {
	if s.Query == "" {
		return ErrValidation("query is required and must be non-empty")
	}
	if len(s.StorePriority) == 0 {
		return ErrValidation("storePriority is required and must be non-empty")
	}
	return nil
}

// VectorResult is one similarity-search hit.
type VectorResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorCallResult is the data payload of a successful /vector/run
// response: which store in the priority list actually answered, plus its
// hits. Stores earlier in the priority list that errored are recorded so
// a caller can see the fallback happened (spec.md §4.7 step 4 "treat
// errors as recoverable warnings").
type VectorCallResult struct {
	Store    string         `json:"store"`
	Results  []VectorResult `json:"results"`
	Warnings []string       `json:"warnings,omitempty"`
}

// EmbeddingCallSpec is the request envelope accepted by
// /vector/embeddings/run: embed one or more input strings against the
// first embedding provider in priority order that succeeds (spec.md §7
// "EmbeddingError / EmbeddingProviderError ... tried in priority order").
type EmbeddingCallSpec struct {
	Input            []string `json:"input"`
	ProviderPriority []string `json:"providerPriority"`
	Model            string   `json:"model,omitempty"`
}

// Validate checks required fields.
func (s *EmbeddingCallSpec) Validate() error {
	if len(s.Input) == 0 {
		return ErrValidation("input is required and must be non-empty")
	}
	for i, in := range s.Input {
		if in == "" {
			return ErrValidation("input[" + strconv.Itoa(i) + "] must be non-empty")
		}
	}
	if len(s.ProviderPriority) == 0 {
		return ErrValidation("providerPriority is required and must be non-empty")
	}
	return nil
}

// EmbeddingCallResult is the data payload of a successful
// /vector/embeddings/run response.
type EmbeddingCallResult struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Usage      UsageInfo   `json:"usage,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}
