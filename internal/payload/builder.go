// Package payload implements the provider payload builder (spec.md §4.3,
// component C4): aggregates system messages, invokes the chosen compat to
// build the wire payload, applies manifest-declared payload extensions by
// projecting setting values into dotted JSON paths, and partitions the
// caller's provider extras into "manifest-consumed", "compat-consumed",
// and "unused" so the caller can log what nobody claimed.
//
// DESIGN: dotted-path projection is implemented with tidwall/gjson+sjson
// (already used by this module's compat layer for wire-shape surgery)
// rather than hand-rolled map-path-walking, keeping with the pack's
// convention of using gjson/sjson for anything JSON-path-shaped.
package payload

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
)

// BuildInput bundles everything the builder needs for one payload
// construction (spec.md §4.3).
type BuildInput struct {
	Manifest      *model.ProviderManifest
	Compat        compat.Compat
	Model         string
	Messages      []model.Message
	Tools         []model.UnifiedTool
	ToolChoice    string
	Settings      *model.LLMCallSettings
	ProviderExtras map[string]any
	Streaming     bool
}

// BuildResult is the outcome of Build: the wire payload plus the extras
// keys nobody consumed.
type BuildResult struct {
	Payload         map[string]any
	UnconsumedExtras map[string]any
}

// Build runs the full payload-construction pipeline (spec.md §4.3 steps 1-7).
func Build(in BuildInput) (*BuildResult, error) {
	systemMessage, rest := aggregateSystemMessages(in.Messages)

	req := compat.BuildRequest{
		Model:         in.Model,
		Messages:      rest,
		SystemMessage: systemMessage,
		Tools:         in.Tools,
		ToolChoice:    in.ToolChoice,
		Settings:      in.Settings,
		Streaming:     in.Streaming,
	}

	payload, err := in.Compat.BuildPayload(req)
	if err != nil {
		return nil, err
	}

	if in.Streaming {
		for k, v := range in.Compat.GetStreamingFlags() {
			payload[k] = v
		}
	}

	manifestKeys := map[string]bool{}
	if in.Manifest != nil {
		manifestKeys = in.Manifest.SettingKeys()
	}

	manifestExtras := map[string]any{}
	compatExtras := map[string]any{}
	for k, v := range in.ProviderExtras {
		if manifestKeys[k] {
			manifestExtras[k] = v
		} else {
			compatExtras[k] = v
		}
	}

	unconsumed := map[string]any{}
	payload, manifestLeftover := applyManifestExtensions(payload, in.Manifest, manifestExtras)
	for k, v := range manifestLeftover {
		unconsumed[k] = v
	}

	if applier, ok := in.Compat.(compat.ProviderExtensionApplier); ok && len(compatExtras) > 0 {
		payload = applier.ApplyProviderExtensions(payload, compatExtras)
	} else {
		for k, v := range compatExtras {
			unconsumed[k] = v
		}
	}

	return &BuildResult{Payload: payload, UnconsumedExtras: unconsumed}, nil
}

// aggregateSystemMessages joins every system-role message's text content
// (in encounter order) with "\n\n" and returns the remaining non-system
// messages unchanged (spec.md §4.3 step 1).
func aggregateSystemMessages(messages []model.Message) (string, []model.Message) {
	var parts []string
	rest := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}

// applyManifestExtensions projects each manifest-consumed extra into its
// declared target path within payload (spec.md §4.3 step 5). Extensions
// whose source value fails the declared valueType check are skipped and
// returned as leftover instead of being applied.
func applyManifestExtensions(payload map[string]any, manifest *model.ProviderManifest, extras map[string]any) (map[string]any, map[string]any) {
	leftover := map[string]any{}
	if manifest == nil || len(extras) == 0 {
		for k, v := range extras {
			leftover[k] = v
		}
		return payload, leftover
	}

	data, err := json.Marshal(payload)
	if err != nil {
		for k, v := range extras {
			leftover[k] = v
		}
		return payload, leftover
	}

	for _, ext := range manifest.PayloadExtensions {
		value, ok := extras[ext.SettingKey]
		if !ok {
			continue
		}
		if !matchesValueType(value, ext.ValueType) {
			leftover[ext.SettingKey] = value
			continue
		}
		updated, err := sjson.SetBytes(data, ext.TargetPath, value)
		if err != nil {
			leftover[ext.SettingKey] = value
			continue
		}
		data = updated
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return payload, extras
	}
	return out, leftover
}

func matchesValueType(value any, valueType string) bool {
	_, isArray := value.([]any)
	_, isObject := value.(map[string]any)
	switch valueType {
	case "":
		return true
	case "scalar":
		return !isArray && !isObject
	case "array":
		return isArray
	case "object":
		return isObject
	default:
		return true
	}
}
