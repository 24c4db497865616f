package providermanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
)

func TestManager_Call_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "openai",
		Compat: "openai",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL + "/v1/chat/completions",
			Method:      http.MethodPost,
		},
	}

	resp, err := m.Call(context.Background(), CallRequest{
		RequestID: "req-1",
		Manifest:  manifest,
		Compat:    compat.NewOpenAI(),
		Model:     "gpt-4",
		Payload:   map[string]any{"model": "gpt-4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Message.Content[0].Text)
}

func TestManager_Call_ErrorClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "openai",
		Compat: "openai",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL,
			Method:      http.MethodPost,
		},
		RetryWords: []string{"limit"},
	}

	_, err := m.Call(context.Background(), CallRequest{
		Manifest: manifest,
		Compat:   compat.NewOpenAI(),
		Model:    "gpt-4",
		Payload:  map[string]any{},
	})
	require.Error(t, err)
	execErr, ok := err.(*ExecutionError)
	require.True(t, ok)
	assert.True(t, execErr.IsRateLimit)
	assert.Equal(t, http.StatusTooManyRequests, execErr.StatusCode)
}

func TestManager_Call_NonRateLimitErrorWithoutKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"something went wrong"}`))
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "openai",
		Compat: "openai",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL,
			Method:      http.MethodPost,
		},
	}

	_, err := m.Call(context.Background(), CallRequest{
		Manifest: manifest,
		Compat:   compat.NewOpenAI(),
		Model:    "gpt-4",
		Payload:  map[string]any{},
	})
	require.Error(t, err)
	execErr := err.(*ExecutionError)
	assert.False(t, execErr.IsRateLimit, "429 without a retry word must not classify as rate-limited")
}

func TestManager_Call_URLTemplateSubstitutesModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"model":"claude-3"}`))
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "anthropic",
		Compat: "anthropic",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL + "/v1/models/{model}/messages",
			Method:      http.MethodPost,
		},
	}

	_, err := m.Call(context.Background(), CallRequest{
		Manifest: manifest,
		Compat:   compat.NewAnthropic(),
		Model:    "claude-3-opus",
		Payload:  map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/models/claude-3-opus/messages", gotPath)
}

func TestManager_Stream_ParsesSSEFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte(": comment\n\n"))
		w.Write([]byte(`data: {"type":"delta","text":"hi"}` + "\n\n"))
		w.Write([]byte("data: not-json\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "openai",
		Compat: "openai",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL,
			Method:      http.MethodPost,
		},
	}

	dataCh, errCh, err := m.Stream(context.Background(), CallRequest{
		Manifest: manifest,
		Compat:   compat.NewOpenAI(),
		Model:    "gpt-4",
		Payload:  map[string]any{},
	})
	require.NoError(t, err)

	var chunks [][]byte
	for chunk := range dataCh {
		chunks = append(chunks, chunk)
	}
	select {
	case err := <-errCh:
		require.NoError(t, err)
	default:
	}

	require.Len(t, chunks, 1, "comments, malformed JSON, and [DONE] must not be forwarded")
	assert.JSONEq(t, `{"type":"delta","text":"hi"}`, string(chunks[0]))
}

func TestManager_Stream_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	m := New()
	manifest := &model.ProviderManifest{
		ID:     "openai",
		Compat: "openai",
		Endpoint: model.EndpointManifest{
			URLTemplate: srv.URL,
			Method:      http.MethodPost,
		},
	}

	_, _, err := m.Stream(context.Background(), CallRequest{
		Manifest: manifest,
		Compat:   compat.NewOpenAI(),
		Model:    "gpt-4",
		Payload:  map[string]any{},
	})
	require.Error(t, err)
}
