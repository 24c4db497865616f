// Package providermanager performs the HTTP exchange with a remote LLM
// provider: URL templating, headers, non-streaming request/response,
// SSE stream parsing, rate-limit classification, and structured per-call
// logging (spec.md §4.6, component C6).
//
// DESIGN: the request/response shape (context timeout, io.LimitReader on
// the body, truncated error bodies) is grounded on the teacher's
// external/llm.go CallLLM, generalized from a fixed three-provider switch
// to a manifest-driven URL template plus the Compat capability interface,
// and extended with SSE parsing and the rate-limit/logging contract
// external/llm.go never had.
package providermanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/monitoring"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

const (
	// maxResponseBytes caps how much of a provider's body we buffer.
	maxResponseBytes = 32 * 1024 * 1024
	maxErrorBodyLen  = 2000

	defaultTimeout = 120 * time.Second
)

// Manager performs provider HTTP exchanges on behalf of the coordinator.
type Manager struct {
	httpClient *http.Client
	bedrock    *BedrockSigner

	tracker *monitoring.Tracker
	reqLog  *monitoring.RequestLogger
	alerts  *monitoring.AlertManager
	metrics *monitoring.MetricsCollector
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the default client (tests, custom transports).
func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.httpClient = c } }

// WithBedrockSigner enables SigV4 signing for bedrock-compat providers.
func WithBedrockSigner(s *BedrockSigner) Option { return func(m *Manager) { m.bedrock = s } }

// WithTelemetry wires structured logging/metrics/alerting.
func WithTelemetry(tracker *monitoring.Tracker, reqLog *monitoring.RequestLogger, alerts *monitoring.AlertManager, metrics *monitoring.MetricsCollector) Option {
	return func(m *Manager) {
		m.tracker, m.reqLog, m.alerts, m.metrics = tracker, reqLog, alerts, metrics
	}
}

// New creates a Manager with a plain http.Client that has no client-level
// timeout; Call bounds each exchange with defaultTimeout (120s) through its
// request context, and Stream sets no timeout of its own.
func New(opts ...Option) *Manager {
	m := &Manager{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CallRequest bundles one provider exchange (spec.md §4.6).
type CallRequest struct {
	RequestID string
	BatchID   string

	Manifest *model.ProviderManifest
	Compat   compat.Compat
	Model    string
	Payload  map[string]any

	// Build is the original BuildRequest, forwarded to SDK-only compats
	// (spec.md §4.4 "the manager dispatches to SDK methods when present").
	Build compat.BuildRequest

	UnconsumedExtras []string
}

// Call performs a single non-streaming exchange.
func (m *Manager) Call(ctx context.Context, req CallRequest) (*model.LLMResponse, error) {
	if caller, ok := req.Compat.(compat.SDKCaller); ok {
		return caller.CallSDK(req.Build)
	}

	url := templateURL(req.Manifest.Endpoint.URLTemplate, req.Model)
	headers := req.Manifest.Endpoint.Headers

	body, err := marshalPayload(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("providermanager: marshaling payload: %w", err)
	}

	start := time.Now()
	httpResp, respBody, err := m.doRequest(ctx, req.Manifest.Endpoint.Method, url, headers, body)
	latency := time.Since(start)

	if err != nil {
		m.logCall(req, url, body, nil, 0, nil, latency, false, err)
		return nil, &ExecutionError{Provider: req.Manifest.ID, Err: err}
	}

	isRateLimit := httpResp.StatusCode >= 400 && classifyRateLimit(respBody, httpResp.Header, req.Manifest.RetryWords)
	m.logCall(req, url, body, httpResp.Header, httpResp.StatusCode, respBody, latency, httpResp.StatusCode < 400, nil)

	if m.metrics != nil {
		m.metrics.RecordProviderCall(isRateLimit)
	}

	if httpResp.StatusCode >= 400 {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		if isRateLimit && m.alerts != nil {
			m.alerts.FlagRateLimited(req.RequestID, req.Manifest.ID)
		}
		if m.alerts != nil {
			m.alerts.FlagProviderError(req.RequestID, req.Manifest.ID, httpResp.StatusCode, errBody)
		}
		return nil, &ExecutionError{
			Provider:    req.Manifest.ID,
			StatusCode:  httpResp.StatusCode,
			Body:        errBody,
			IsRateLimit: isRateLimit,
		}
	}

	resp, err := req.Compat.ParseResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("providermanager: parsing %s response: %w", req.Manifest.ID, err)
	}
	return resp, nil
}

// doRequest issues one HTTP exchange, optionally SigV4-signing it when the
// manifest's compat is bedrock.
func (m *Manager) doRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if m.bedrock != nil && strings.Contains(strings.ToLower(url), "bedrock") {
		if err := m.bedrock.SignRequest(ctx, req, body); err != nil {
			return nil, nil, fmt.Errorf("bedrock signing: %w", err)
		}
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

func (m *Manager) logCall(req CallRequest, url string, body []byte, headers http.Header, status int, respBody []byte, latency time.Duration, success bool, err error) {
	if m.reqLog != nil {
		info := &monitoring.OutgoingRequestInfo{
			RequestID: req.RequestID,
			Provider:  req.Manifest.ID,
			Model:     req.Model,
			URL:       url,
			Streaming: false,
			BodySize:  len(body),
		}
		m.reqLog.LogOutgoing(info)
		if len(req.UnconsumedExtras) > 0 {
			m.reqLog.LogUnconsumedExtras(&monitoring.UnconsumedExtrasInfo{
				RequestID: req.RequestID,
				Provider:  req.Manifest.ID,
				Keys:      req.UnconsumedExtras,
			})
		}
	}
	if m.tracker == nil {
		return
	}
	event := &monitoring.ProviderCallEvent{
		RequestID:        req.RequestID,
		Timestamp:        time.Now(),
		Provider:         req.Manifest.ID,
		Model:            req.Model,
		Streaming:        false,
		URL:              url,
		RequestBody:      decodeJSONForLog(body),
		ResponseBody:     decodeJSONForLog(respBody),
		Headers:          sanitize.Headers(headersToMap(headers)),
		StatusCode:       status,
		LatencyMs:        latency.Milliseconds(),
		UnconsumedExtras: req.UnconsumedExtras,
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.tracker.RecordProviderCall(req.BatchID, event)
}

// decodeJSONForLog best-effort decodes a request/response body for
// structured logging; non-JSON or empty bodies log as nil.
func decodeJSONForLog(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}

func headersToMap(h http.Header) map[string]string {
	out := map[string]string{}
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func templateURL(tmpl, model string) string {
	return strings.ReplaceAll(tmpl, "{model}", model)
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
