package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/monitoring"
	"github.com/compresr/llm-gateway/internal/providermanager"
	"github.com/compresr/llm-gateway/internal/toolloop"
)

// responseEnvelope is the `{type:"response", data:...}` shape spec.md
// §4.12's endpoint table specifies for every non-streaming endpoint.
type responseEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// errorEnvelope is the `{type:"error", error:{code, message}}` shape
// spec.md §6 specifies for validation and runtime failures.
type errorEnvelope struct {
	Type  string    `json:"type"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Type: "error", Error: errorBody{Code: code, Message: message}})
}

// decodeBody implements spec.md §4.12 steps 2, 5, 7: method/content-type
// checks, a maximum byte count, and a read timeout, before unmarshaling
// into dst.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "bad_content_type", "Content-Type must be application/json")
		return false
	}

	limited := http.MaxBytesReader(w, r.Body, g.cfg.Server.MaxBodyBytes)
	bodyCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		data, err := io.ReadAll(limited)
		if err != nil {
			errCh <- err
			return
		}
		bodyCh <- data
	}()

	select {
	case data := <-bodyCh:
		if err := json.Unmarshal(data, dst); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "malformed JSON body: "+err.Error())
			return false
		}
		return true
	case err := <-errCh:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds the configured maximum")
		} else {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "failed to read request body: "+err.Error())
		}
		return false
	case <-time.After(g.cfg.Server.BodyReadTimeout):
		writeJSONError(w, http.StatusRequestTimeout, "body_read_timeout", "timed out reading request body")
		return false
	}
}

// writeRunError maps a prepare/dispatch failure to the HTTP status spec.md
// §7 assigns each error kind.
func writeRunError(w http.ResponseWriter, err error) {
	var valErr *model.ValidationError
	var admitErr *AdmissionError
	var execErr *providermanager.ExecutionError
	switch {
	case errors.As(err, &valErr):
		writeJSONError(w, http.StatusBadRequest, "validation_error", valErr.Error())
	case errors.As(err, &admitErr):
		writeJSONError(w, http.StatusServiceUnavailable, "admission_error", admitErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "timeout", "request timeout exceeded")
	case errors.As(err, &execErr) && execErr.IsRateLimit:
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", execErr.Error())
	default:
		writeJSONError(w, http.StatusBadGateway, "provider_error", err.Error())
	}
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun implements POST /run (spec.md §4.12, §6).
func (g *Gateway) handleRun(w http.ResponseWriter, r *http.Request) {
	release, err := g.admission.llmRun.acquire(r.Context())
	if err != nil {
		writeRunError(w, err)
		return
	}

	var spec model.LLMCallSpec
	if !g.decodeBody(w, r, &spec) {
		release()
		return
	}

	coord := g.buildCoordinator()
	resp, err := runDeferred(r.Context(), release, g.cfg.Server.RequestTimeout, func(ctx context.Context) (*model.LLMResponse, error) {
		return coord.Run(ctx, &spec)
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responseEnvelope{Type: "response", Data: resp})
}

// streamEventPayload is the wire shape of one `LLMStreamEvent` (spec.md
// §6 "Streaming event types"). Exactly one of the typed fields beyond
// Type/Kind is populated, matching Type.
type streamEventPayload struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"` // delta / reasoning

	Kind           string                    `json:"kind,omitempty"` // tool
	CallID         string                    `json:"callId,omitempty"`
	ToolName       string                    `json:"toolName,omitempty"`
	ArgumentsDelta string                    `json:"argumentsDelta,omitempty"`
	Arguments      string                    `json:"arguments,omitempty"`
	ToolResult     *model.ToolResultPayload  `json:"toolResult,omitempty"`

	Usage *model.UsageInfo `json:"usage,omitempty"` // usage
}

func translateStreamEvent(ev toolloop.StreamEvent) (any, bool) {
	switch ev.Type {
	case toolloop.StreamDelta:
		return streamEventPayload{Type: "delta", Text: ev.Text}, true
	case toolloop.StreamReasoningDelta:
		return streamEventPayload{Type: "reasoning", Text: ev.Text}, true
	case toolloop.StreamToolCallStart:
		return streamEventPayload{Type: "tool", Kind: string(ev.Type), CallID: ev.CallID, ToolName: ev.ToolName}, true
	case toolloop.StreamToolCallArgsDelta:
		return streamEventPayload{Type: "tool", Kind: string(ev.Type), CallID: ev.CallID, ArgumentsDelta: ev.ArgumentsDelta}, true
	case toolloop.StreamToolCallEnd:
		return streamEventPayload{Type: "tool", Kind: string(ev.Type), CallID: ev.CallID, Arguments: ev.Arguments}, true
	case toolloop.StreamToolResult:
		return streamEventPayload{Type: "tool", Kind: string(ev.Type), CallID: ev.CallID, ToolName: ev.ToolName, ToolResult: ev.ToolResult}, true
	case toolloop.StreamUsage:
		return streamEventPayload{Type: "usage", Usage: ev.Usage}, true
	case toolloop.StreamDone:
		return nil, false
	default:
		return nil, false
	}
}

// handleStream implements POST /stream (spec.md §4.12, §6).
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	release, err := g.admission.llmStream.acquire(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "admission_error", err.Error())
		return
	}

	var spec model.LLMCallSpec
	if !g.decodeBody(w, r, &spec) {
		release()
		return
	}

	coord := g.buildCoordinator()
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Server.RequestTimeout)
	events, finish, err := coord.Stream(ctx, &spec)
	if err != nil {
		cancel()
		release()
		writeRunError(w, err)
		return
	}

	sse := newSSEWriter(w)
	deadline := time.Now().Add(g.cfg.Server.RequestTimeout)
	pump(sse, events, r.Context().Done(), g.cfg.Server.StreamIdleTimeout, deadline, translateStreamEvent, cancel)

	go func() {
		defer release()
		defer cancel()
		if _, err := finish(); err != nil {
			g.logger.Error().Err(err).Str("requestId", monitoring.RequestIDFromContext(r.Context())).Msg("stream finished with error")
		}
	}()
}

// handleVectorRun implements POST /vector/run.
func (g *Gateway) handleVectorRun(w http.ResponseWriter, r *http.Request) {
	release, err := g.admission.vectorRun.acquire(r.Context())
	if err != nil {
		writeRunError(w, err)
		return
	}

	var spec model.VectorCallSpec
	if !g.decodeBody(w, r, &spec) {
		release()
		return
	}
	if err := spec.Validate(); err != nil {
		release()
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := runDeferred(r.Context(), release, g.cfg.Server.RequestTimeout, func(ctx context.Context) (*model.VectorCallResult, error) {
		return g.retrieval.QueryPriority(ctx, &spec)
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responseEnvelope{Type: "response", Data: result})
}

// handleVectorStream implements POST /vector/stream: a single-shot query
// surfaced as a degenerate SSE stream (one result event, then close) so
// vector clients can share the same streaming transport as /stream
// without this gateway maintaining a second incremental wire format.
func (g *Gateway) handleVectorStream(w http.ResponseWriter, r *http.Request) {
	release, err := g.admission.vectorStream.acquire(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "admission_error", err.Error())
		return
	}

	var spec model.VectorCallSpec
	if !g.decodeBody(w, r, &spec) {
		release()
		return
	}
	if err := spec.Validate(); err != nil {
		release()
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	sse := newSSEWriter(w)
	result, err := runDeferred(r.Context(), release, g.cfg.Server.RequestTimeout, func(ctx context.Context) (*model.VectorCallResult, error) {
		return g.retrieval.QueryPriority(ctx, &spec)
	})
	if err != nil {
		sse.writeTerminalError("provider_error", err.Error())
		return
	}
	_ = sse.writeEvent(responseEnvelope{Type: "response", Data: result})
}

// handleEmbeddingsRun implements POST /vector/embeddings/run.
func (g *Gateway) handleEmbeddingsRun(w http.ResponseWriter, r *http.Request) {
	release, err := g.admission.embeddingRun.acquire(r.Context())
	if err != nil {
		writeRunError(w, err)
		return
	}

	var spec model.EmbeddingCallSpec
	if !g.decodeBody(w, r, &spec) {
		release()
		return
	}
	if err := spec.Validate(); err != nil {
		release()
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := runDeferred(r.Context(), release, g.cfg.Server.RequestTimeout, func(ctx context.Context) (*model.EmbeddingCallResult, error) {
		return g.retrieval.Embed(ctx, &spec)
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responseEnvelope{Type: "response", Data: result})
}
