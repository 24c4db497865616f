package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/model"
)

func sampleRequest() BuildRequest {
	return BuildRequest{
		Model: "test-model",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart("hello")}},
		},
		SystemMessage: "be nice",
	}
}

func TestOpenAIBuildPayloadIncludesSystemAndMessages(t *testing.T) {
	payload, err := NewOpenAI().BuildPayload(sampleRequest())
	require.NoError(t, err)
	msgs := payload["messages"].([]map[string]any)
	assert.Equal(t, "system", msgs[0]["role"])
	assert.Equal(t, "be nice", msgs[0]["content"])
	assert.Equal(t, "user", msgs[1]["role"])
}

func TestOpenAIParseResponseExtractsToolCalls(t *testing.T) {
	body := []byte(`{
		"id": "resp_1",
		"model": "gpt-4",
		"choices": [{
			"message": {"role":"assistant","tool_calls":[{"id":"c1","function":{"name":"t","arguments":"{\"a\":1}"}}]},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`)
	resp, err := NewOpenAI().ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, model.FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "t", resp.Message.ToolCalls[0].Name)
	assert.Equal(t, float64(1), resp.Message.ToolCalls[0].Arguments["a"])
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestAnthropicBuildPayloadPlacesThinkingFirst(t *testing.T) {
	req := sampleRequest()
	req.Messages = append(req.Messages, model.Message{
		Role:    model.RoleAssistant,
		Content: []model.ContentPart{model.TextPart("ok")},
		Reasoning: &model.Reasoning{
			Text:     "thinking...",
			Metadata: &model.ReasoningMetadata{Signature: "sig123"},
		},
	})
	payload, err := NewAnthropic().BuildPayload(req)
	require.NoError(t, err)
	msgs := payload["messages"].([]map[string]any)
	last := msgs[len(msgs)-1]
	content := last["content"].([]map[string]any)
	assert.Equal(t, "thinking", content[0]["type"])
	assert.Equal(t, "sig123", content[0]["signature"])
}

func TestAnthropicParseResponseExtractsThinkingSignature(t *testing.T) {
	body := []byte(`{
		"id":"msg_1","model":"claude-3",
		"content":[{"type":"thinking","thinking":"hmm","signature":"abc"},{"type":"text","text":"hi"}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":3,"output_tokens":4}
	}`)
	resp, err := NewAnthropic().ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, model.FinishStop, resp.FinishReason)
	require.NotNil(t, resp.Message.Reasoning)
	assert.Equal(t, "abc", resp.Message.Reasoning.Metadata.Signature)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestBedrockDelegatesToAnthropicAndDropsModelField(t *testing.T) {
	payload, err := NewBedrock().BuildPayload(sampleRequest())
	require.NoError(t, err)
	_, hasModel := payload["model"]
	assert.False(t, hasModel)
	assert.Equal(t, "bedrock-2023-05-31", payload["anthropic_version"])
}

func TestResponsesBuildPayloadFailsWithSDKOnly(t *testing.T) {
	_, err := NewResponses().BuildPayload(sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SDK-only")
}

func TestGeminiParseResponseExtractsFunctionCall(t *testing.T) {
	body := []byte(`{
		"candidates":[{"content":{"parts":[{"functionCall":{"name":"t","args":{"x":1}}}]},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":3,"totalTokenCount":5}
	}`)
	resp, err := NewGemini().ParseResponse(body)
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "t", resp.Message.ToolCalls[0].Name)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestOpenAIReasoningEffortTakesPrecedenceOverBudget(t *testing.T) {
	req := sampleRequest()
	budget := 2048
	req.Settings = &model.LLMCallSettings{
		Reasoning: &model.ReasoningSettings{Effort: "high", Budget: &budget},
	}
	payload, err := NewOpenAI().BuildPayload(req)
	require.NoError(t, err)
	reasoning := payload["reasoning"].(map[string]any)
	assert.Equal(t, "high", reasoning["effort"])
	assert.NotContains(t, reasoning, "max_tokens")
}

func TestOpenAIReasoningBudgetMapsToMaxTokensWhenNoEffort(t *testing.T) {
	req := sampleRequest()
	budget := 4096
	req.Settings = &model.LLMCallSettings{
		Reasoning: &model.ReasoningSettings{Budget: &budget},
	}
	payload, err := NewOpenAI().BuildPayload(req)
	require.NoError(t, err)
	reasoning := payload["reasoning"].(map[string]any)
	assert.Equal(t, 4096, reasoning["max_tokens"])
}

func TestOpenAIReasoningBudgetFieldOverridesAlias(t *testing.T) {
	req := sampleRequest()
	alias := 1000
	budget := 2000
	req.Settings = &model.LLMCallSettings{
		ReasoningBudget: &alias,
		Reasoning:       &model.ReasoningSettings{Budget: &budget},
	}
	payload, err := NewOpenAI().BuildPayload(req)
	require.NoError(t, err)
	reasoning := payload["reasoning"].(map[string]any)
	assert.Equal(t, 2000, reasoning["max_tokens"])
}

func TestOpenAIReasoningAliasUsedWhenBudgetFieldUnset(t *testing.T) {
	req := sampleRequest()
	alias := 1500
	req.Settings = &model.LLMCallSettings{
		ReasoningBudget: &alias,
		Reasoning:       &model.ReasoningSettings{},
	}
	payload, err := NewOpenAI().BuildPayload(req)
	require.NoError(t, err)
	reasoning := payload["reasoning"].(map[string]any)
	assert.Equal(t, 1500, reasoning["max_tokens"])
}

func TestOllamaBuildPayloadMapsMaxTokensToNumPredict(t *testing.T) {
	req := sampleRequest()
	maxTokens := 512
	req.Settings = &model.LLMCallSettings{MaxTokens: &maxTokens}
	payload, err := NewOllama().BuildPayload(req)
	require.NoError(t, err)
	options := payload["options"].(map[string]any)
	assert.Equal(t, 512, options["num_predict"])
}

func TestRegistryReturnsBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.Get("openai"))
	assert.NotNil(t, r.Get("anthropic"))
	assert.NotNil(t, r.Get("bedrock"))
	assert.NotNil(t, r.Get("gemini"))
	assert.NotNil(t, r.Get("ollama"))
	assert.NotNil(t, r.Get("openai-responses"))
	assert.Nil(t, r.Get("unknown"))
}
