package pruner

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/compresr/llm-gateway/internal/model"
)

var (
	encodingCache = map[string]*tiktoken.Tiktoken{}
	encodingMu    sync.Mutex
)

// EstimateTokens returns a token-count estimate for text using model's
// tiktoken encoding when model is recognized and cl100k_base otherwise, or
// 0 when no encoding can be loaded. No other package calls it; the
// provider manager computes no usage estimate when a response omits token
// counts.
func EstimateTokens(model, text string) int {
	enc := encodingFor(model)
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	encodingCache[model] = enc
	return enc
}

// CycleTokenWeight estimates the combined token weight of a cycle's tool
// messages. PruneToolResults and PruneReasoning do not call it and log
// nothing.
func CycleTokenWeight(msgs []model.Message, modelName string, cycle Cycle) int {
	total := 0
	for _, idx := range cycle.ToolIndices {
		total += EstimateTokens(modelName, msgs[idx].Text())
	}
	return total
}
