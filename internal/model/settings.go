package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ReasoningSettings configures extended-thinking behavior (spec.md §4.5).
type ReasoningSettings struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Budget  *int   `json:"budget,omitempty"`
	Effort  string `json:"effort,omitempty"` // minimal|low|medium|high
	Exclude *bool  `json:"exclude,omitempty"`
}

// LLMCallSettings is the recognized-option subset of a call's settings
// (spec.md §3 table). Unrecognized keys travel as "provider extras" and
// never appear here (see internal/coordinator's settings partition).
type LLMCallSettings struct {
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"topP,omitempty"`
	MaxTokens        *int               `json:"maxTokens,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	ResponseFormat   any                `json:"responseFormat,omitempty"`
	Seed             *int               `json:"seed,omitempty"`
	FrequencyPenalty *float64           `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64           `json:"presencePenalty,omitempty"`
	LogitBias        map[string]float64 `json:"logitBias,omitempty"`
	Logprobs         *bool              `json:"logprobs,omitempty"`
	TopLogprobs      *int               `json:"topLogprobs,omitempty"`

	Reasoning       *ReasoningSettings `json:"reasoning,omitempty"`
	ReasoningBudget *int               `json:"reasoningBudget,omitempty"`

	MaxToolIterations      any  `json:"maxToolIterations,omitempty"` // numeric or numeric string
	ToolCountdownEnabled   any  `json:"toolCountdownEnabled,omitempty"`
	ToolFinalPromptEnabled any  `json:"toolFinalPromptEnabled,omitempty"`
	PreserveToolResults    any  `json:"preserveToolResults,omitempty"` // "all"|"none"|N
	PreserveReasoning      any  `json:"preserveReasoning,omitempty"`
	ParallelToolExecution  any  `json:"parallelToolExecution,omitempty"`
	ToolResultMaxChars     *int `json:"toolResultMaxChars,omitempty"`
}

// DefaultMaxToolIterations is used when the setting is absent or invalid.
const DefaultMaxToolIterations = 10

// NormalizeFlag coerces a setting value of unknown shape (bool, numeric
// string, "yes"/"no"/"true"/"false", 0/1) to a bool, per spec.md §4.9 /
// §9 "Settings coercion". Non-coercible values fall back to def.
func NormalizeFlag(v any, def bool) bool {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "on":
			return true
		case "false", "no", "0", "off", "":
			return false
		default:
			return def
		}
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return def
	}
}

// ParseMaxToolIterations parses spec.md's "maxToolIterations" setting:
// coerced from numeric strings, non-finite ⇒ default, clamped at zero.
func ParseMaxToolIterations(v any) int {
	switch t := v.(type) {
	case nil:
		return DefaultMaxToolIterations
	case int:
		return clampIterations(t)
	case int64:
		return clampIterations(int(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return DefaultMaxToolIterations
		}
		return clampIterations(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return DefaultMaxToolIterations
		}
		return clampIterations(n)
	default:
		return DefaultMaxToolIterations
	}
}

func clampIterations(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// PreservePolicy is the parsed form of preserveToolResults/preserveReasoning:
// "all", "none", or a non-negative count of cycles/messages to keep.
type PreservePolicy struct {
	All   bool
	None  bool
	Count int
}

// ParsePreservePolicy parses the "all"|"none"|N shape used by both
// preserveToolResults and preserveReasoning (spec.md §3, §4.2).
func ParsePreservePolicy(v any) PreservePolicy {
	switch t := v.(type) {
	case nil:
		return PreservePolicy{All: true}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "all", "":
			return PreservePolicy{All: true}
		case "none":
			return PreservePolicy{None: true}
		default:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return countPolicy(n)
			}
			return PreservePolicy{All: true}
		}
	case int:
		return countPolicy(t)
	case int64:
		return countPolicy(int(t))
	case float64:
		return countPolicy(int(t))
	default:
		return PreservePolicy{All: true}
	}
}

func countPolicy(n int) PreservePolicy {
	if n <= 0 {
		return PreservePolicy{None: true}
	}
	return PreservePolicy{Count: n}
}

// recognizedSettingKeys is the JSON tag of every LLMCallSettings field,
// used to split a raw settings map into "recognized" (decoded into the
// typed struct) and "extras" (everything else, spec.md §4.10 step 2).
var recognizedSettingKeys = map[string]bool{
	"temperature": true, "topP": true, "maxTokens": true, "stop": true,
	"responseFormat": true, "seed": true, "frequencyPenalty": true,
	"presencePenalty": true, "logitBias": true, "logprobs": true,
	"topLogprobs": true, "reasoning": true, "reasoningBudget": true,
	"maxToolIterations": true, "toolCountdownEnabled": true,
	"toolFinalPromptEnabled": true, "preserveToolResults": true,
	"preserveReasoning": true, "parallelToolExecution": true,
	"toolResultMaxChars": true,
}

// DecodeSettings splits a raw settings map into the typed, recognized
// subset and everything else ("provider extras", spec.md §4.10 step 2).
// Runtime-only keys (tool loop flags, preservation policies) remain
// accessible on the typed struct but are never copied into extras, so
// callers that forward extras to the wire payload never leak them.
func DecodeSettings(raw map[string]any) (*LLMCallSettings, map[string]any) {
	extras := map[string]any{}
	if raw == nil {
		return &LLMCallSettings{}, extras
	}
	recognized := map[string]any{}
	for k, v := range raw {
		if recognizedSettingKeys[k] {
			recognized[k] = v
		} else {
			extras[k] = v
		}
	}

	settings := &LLMCallSettings{}
	if data, err := json.Marshal(recognized); err == nil {
		_ = json.Unmarshal(data, settings)
	}
	return settings, extras
}

// MergeSettings deep-merges override onto base: override wins key-by-key,
// and values that are themselves objects (e.g. "reasoning") are merged
// recursively rather than replaced wholesale (spec.md §4.10 step 1).
// Neither input is mutated.
func MergeSettings(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		baseVal, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		baseObj, baseIsObj := baseVal.(map[string]any)
		overrideObj, overrideIsObj := v.(map[string]any)
		if baseIsObj && overrideIsObj {
			out[k] = MergeSettings(baseObj, overrideObj)
		} else {
			out[k] = v
		}
	}
	return out
}
