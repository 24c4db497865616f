package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/registry"
)

const defaultEmbeddingTimeout = 30 * time.Second

// EmbeddingManager embeds text against a priority-ordered list of
// registry-declared embedding providers, mirroring the LLM provider
// fallback classification spec.md §7 describes for embeddings ("providers
// are tried in priority order and only fatal-all-providers is surfaced").
//
// DESIGN: grounded on internal/providermanager's URL-templating and
// truncated-error-body shape (external/llm.go CallLLM lineage), simplified
// to a single request/response round trip since embedding APIs have no
// streaming or tool-call concerns. Response parsing uses gjson to read
// whichever of the handful of common embedding response shapes
// (OpenAI-style `data[].embedding`, bare `embedding`, bare `embeddings[]`)
// the configured provider returns, rather than hard-coding one vendor.
type EmbeddingManager struct {
	registry   *registry.Registry
	httpClient *http.Client
}

// NewEmbeddingManager builds an EmbeddingManager over reg.
func NewEmbeddingManager(reg *registry.Registry, httpClient *http.Client) *EmbeddingManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultEmbeddingTimeout}
	}
	return &EmbeddingManager{registry: reg, httpClient: httpClient}
}

// Embed tries each provider in priority order, returning the first
// success. Per-provider failures are collected as warnings on the
// eventual success, or joined into the final error if every provider
// fails (spec.md §7 "only fatal-all-providers is surfaced").
func (m *EmbeddingManager) Embed(ctx context.Context, providerPriority []string, input []string, modelOverride string) (*model.EmbeddingCallResult, error) {
	var warnings []string
	for _, providerID := range providerPriority {
		manifest, err := m.registry.GetEmbeddingProvider(providerID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", providerID, err))
			continue
		}
		vectors, usage, err := m.embedOne(ctx, manifest, input, modelOverride)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", providerID, err))
			continue
		}
		modelName := modelOverride
		if modelName == "" {
			modelName = manifest.Model
		}
		return &model.EmbeddingCallResult{
			Provider:   providerID,
			Model:      modelName,
			Embeddings: vectors,
			Usage:      usage,
			Warnings:   warnings,
		}, nil
	}
	return nil, &EmbeddingProviderError{Providers: providerPriority, Warnings: warnings}
}

// EmbedOne embeds a single string against one named provider, used by the
// vector-store manager to compute a query embedding for an embedded store
// (spec.md §4.13 "VectorStoreManifest.Embedding").
func (m *EmbeddingManager) EmbedOne(ctx context.Context, providerID, text string) ([]float32, error) {
	manifest, err := m.registry.GetEmbeddingProvider(providerID)
	if err != nil {
		return nil, err
	}
	vectors, _, err := m.embedOne(ctx, manifest, []string{text}, "")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("retrieval: embedding provider %q returned no vectors", providerID)
	}
	return vectors[0], nil
}

func (m *EmbeddingManager) embedOne(ctx context.Context, manifest *model.EmbeddingProviderManifest, input []string, modelOverride string) ([][]float32, model.UsageInfo, error) {
	modelName := manifest.Model
	if modelOverride != "" {
		modelName = modelOverride
	}

	reqBody, err := json.Marshal(map[string]any{
		"input": input,
		"model": modelName,
	})
	if err != nil {
		return nil, model.UsageInfo{}, fmt.Errorf("marshaling embedding request: %w", err)
	}

	url := strings.ReplaceAll(manifest.Endpoint.URLTemplate, "{model}", modelName)
	method := manifest.Endpoint.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, model.UsageInfo{}, fmt.Errorf("building embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range manifest.Endpoint.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, model.UsageInfo{}, fmt.Errorf("embedding request transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, model.UsageInfo{}, fmt.Errorf("reading embedding response: %w", err)
	}

	if resp.StatusCode >= 400 {
		isRateLimit := containsAny(strings.ToLower(string(body)), manifest.RetryWords)
		return nil, model.UsageInfo{}, &EmbeddingError{StatusCode: resp.StatusCode, Body: string(body), IsRateLimit: isRateLimit}
	}

	parsed := gjson.ParseBytes(body)
	vectors := parseEmbeddingVectors(parsed)
	if len(vectors) == 0 {
		return nil, model.UsageInfo{}, fmt.Errorf("embedding response had no recognizable embedding field")
	}

	usage := model.UsageInfo{
		PromptTokens: int(parsed.Get("usage.prompt_tokens").Int()),
		TotalTokens:  int(parsed.Get("usage.total_tokens").Int()),
	}
	return vectors, usage, nil
}

// parseEmbeddingVectors reads whichever shape the provider returned:
// OpenAI-style `data[].embedding`, a bare top-level `embeddings` array of
// arrays, or a single bare `embedding` array.
func parseEmbeddingVectors(parsed gjson.Result) [][]float32 {
	if data := parsed.Get("data"); data.IsArray() {
		var out [][]float32
		data.ForEach(func(_, item gjson.Result) bool {
			out = append(out, toFloat32Slice(item.Get("embedding")))
			return true
		})
		if len(out) > 0 {
			return out
		}
	}
	if embeddings := parsed.Get("embeddings"); embeddings.IsArray() {
		var out [][]float32
		embeddings.ForEach(func(_, item gjson.Result) bool {
			out = append(out, toFloat32Slice(item))
			return true
		})
		if len(out) > 0 {
			return out
		}
	}
	if embedding := parsed.Get("embedding"); embedding.IsArray() {
		return [][]float32{toFloat32Slice(embedding)}
	}
	return nil
}

func toFloat32Slice(r gjson.Result) []float32 {
	arr := r.Array()
	out := make([]float32, len(arr))
	for i, v := range arr {
		out[i] = float32(v.Float())
	}
	return out
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(haystack, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// EmbeddingError mirrors providermanager.ProviderExecutionError's
// rate-limit classification for a single provider attempt (spec.md §7).
type EmbeddingError struct {
	StatusCode  int
	Body        string
	IsRateLimit bool
}

func (e *EmbeddingError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("embedding provider returned status %d: %s", e.StatusCode, body)
}

// EmbeddingProviderError is raised when every provider in priority order
// fails (spec.md §7 "only fatal-all-providers is surfaced").
type EmbeddingProviderError struct {
	Providers []string
	Warnings  []string
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("retrieval: all %d embedding providers failed: %s", len(e.Providers), strings.Join(e.Warnings, "; "))
}
