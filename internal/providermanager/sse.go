package providermanager

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/monitoring"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

// Stream performs a streaming exchange and returns a channel of raw SSE
// data-line payloads, each ready for compat.ParseStreamChunk (spec.md
// §4.6 "Streaming call"). The channel is closed when the stream ends
// normally (EOF) or on `data: [DONE]`; read errors are reported on the
// returned error channel before the data channel closes.
func (m *Manager) Stream(ctx context.Context, req CallRequest) (<-chan []byte, <-chan error, error) {
	if streamer, ok := req.Compat.(compat.SDKStreamer); ok {
		return m.streamSDK(streamer, req)
	}

	url := req.Manifest.Endpoint.StreamingURLTemplate
	if url == "" {
		url = req.Manifest.Endpoint.URLTemplate
	}
	url = templateURL(url, req.Model)

	headers := map[string]string{}
	for k, v := range req.Manifest.Endpoint.Headers {
		headers[k] = v
	}
	for k, v := range req.Manifest.Endpoint.StreamingHeaders {
		headers[k] = v
	}

	body, err := marshalPayload(req.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("providermanager: marshaling payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Manifest.Endpoint.Method, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if m.bedrock != nil && strings.Contains(strings.ToLower(url), "bedrock") {
		if err := m.bedrock.SignRequest(ctx, httpReq, body); err != nil {
			return nil, nil, fmt.Errorf("bedrock signing: %w", err)
		}
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, &ExecutionError{Provider: req.Manifest.ID, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		isRateLimit := classifyRateLimit(respBody, resp.Header, req.Manifest.RetryWords)
		m.logStreamStart(req, url, body, resp.Header, resp.StatusCode)
		if isRateLimit && m.alerts != nil {
			m.alerts.FlagRateLimited(req.RequestID, req.Manifest.ID)
		}
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return nil, nil, &ExecutionError{
			Provider:    req.Manifest.ID,
			StatusCode:  resp.StatusCode,
			Body:        errBody,
			IsRateLimit: isRateLimit,
		}
	}

	m.logStreamStart(req, url, body, resp.Header, resp.StatusCode)
	if m.metrics != nil {
		m.metrics.RecordProviderCall(false)
	}

	dataCh := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(dataCh)
		scanSSE(resp.Body, dataCh, errCh)
	}()

	return dataCh, errCh, nil
}

// scanSSE implements spec.md §4.6's line-oriented SSE parser: comments
// (lines starting with ':') are ignored, blank lines are frame
// separators, "data: [DONE]" terminates, every other "data:" line is
// JSON-validated and forwarded; malformed JSON is silently skipped.
func scanSSE(body io.Reader, dataCh chan<- []byte, errCh chan<- error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}
		if !json.Valid([]byte(payload)) {
			continue
		}
		dataCh <- []byte(payload)
	}
	if err := scanner.Err(); err != nil {
		errCh <- err
	}
}

func (m *Manager) streamSDK(streamer compat.SDKStreamer, req CallRequest) (<-chan []byte, <-chan error, error) {
	events, err := streamer.StreamSDK(req.Build)
	if err != nil {
		return nil, nil, err
	}
	dataCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		defer close(dataCh)
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			dataCh <- data
		}
	}()
	return dataCh, errCh, nil
}

func (m *Manager) logStreamStart(req CallRequest, url string, body []byte, headers http.Header, status int) {
	if m.reqLog != nil {
		m.reqLog.LogOutgoing(&monitoring.OutgoingRequestInfo{
			RequestID: req.RequestID,
			Provider:  req.Manifest.ID,
			Model:     req.Model,
			URL:       url,
			Streaming: true,
			BodySize:  len(body),
		})
	}
	if m.tracker == nil {
		return
	}
	m.tracker.RecordProviderCall(req.BatchID, &monitoring.ProviderCallEvent{
		RequestID:   req.RequestID,
		Timestamp:   time.Now(),
		Provider:    req.Manifest.ID,
		Model:       req.Model,
		Streaming:   true,
		URL:         url,
		RequestBody: decodeJSONForLog(body),
		Headers:     sanitize.Headers(headersToMap(headers)),
		StatusCode:  status,
	})
}
