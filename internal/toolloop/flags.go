// Package toolloop drives the assistant/tool/assistant cycle within a
// single coordinator run: sequential or parallel tool execution, budget
// enforcement, countdown messaging, final-prompt generation, and the
// streaming counterpart that fans provider deltas out while executing
// tools in the background (spec.md §4.9, component C9).
//
// DESIGN: the round structure (execute a batch, format tool messages,
// prune, decide whether to continue or issue a final prompt) and the
// bounded-concurrency parallel execution shape are grounded on
// other_examples' orchestrator-toolloop sample (executeParallel: a
// single-call fast path, otherwise an errgroup with SetLimit), adapted
// from its edge-agent/MQTT tool transport to this module's
// internal/dispatch.Dispatcher.
package toolloop

import "github.com/compresr/llm-gateway/internal/model"

// Flags are the runtime-only tool loop settings for one run, already
// coerced from a call's raw settings (spec.md §4.9 "Common state").
type Flags struct {
	Countdown   bool
	FinalPrompt bool
	Parallel    bool
	MaxParallel int

	// ToolResultMaxChars is the truncation threshold; zero means no limit.
	ToolResultMaxChars int

	PreserveToolResults model.PreservePolicy
	PreserveReasoning   model.PreservePolicy
}

// defaultMaxParallel bounds concurrent tool execution when Parallel is
// enabled but the caller didn't specify a limit.
const defaultMaxParallel = 5

// FlagsFromSettings derives Flags from a call's recognized settings,
// applying the coercion rules spec.md §4.9 requires (normalizeFlag for
// booleans, the "all"/"none"/N shape for preservation policies).
func FlagsFromSettings(s *model.LLMCallSettings) Flags {
	f := Flags{
		Countdown:           true,
		FinalPrompt:         true,
		Parallel:            false,
		MaxParallel:         defaultMaxParallel,
		PreserveToolResults: model.PreservePolicy{All: true},
		PreserveReasoning:   model.PreservePolicy{All: true},
	}
	if s == nil {
		return f
	}
	f.Countdown = model.NormalizeFlag(s.ToolCountdownEnabled, f.Countdown)
	f.FinalPrompt = model.NormalizeFlag(s.ToolFinalPromptEnabled, f.FinalPrompt)
	f.Parallel = model.NormalizeFlag(s.ParallelToolExecution, f.Parallel)
	if s.ToolResultMaxChars != nil {
		f.ToolResultMaxChars = *s.ToolResultMaxChars
	}
	f.PreserveToolResults = model.ParsePreservePolicy(s.PreserveToolResults)
	f.PreserveReasoning = model.ParsePreservePolicy(s.PreserveReasoning)
	return f
}
