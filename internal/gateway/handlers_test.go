package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/config"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/toolloop"
)

func newDecodeGateway() *Gateway {
	return &Gateway{cfg: &config.Config{Server: config.ServerConfig{
		MaxBodyBytes:    1 << 20,
		BodyReadTimeout: time.Second,
	}}}
}

func TestDecodeBody_RejectsNonPOST(t *testing.T) {
	g := newDecodeGateway()
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()

	var dst map[string]any
	ok := g.decodeBody(rec, req, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDecodeBody_RejectsBadContentType(t *testing.T) {
	g := newDecodeGateway()
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	var dst map[string]any
	ok := g.decodeBody(rec, req, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDecodeBody_AllowsMissingContentType(t *testing.T) {
	g := newDecodeGateway()
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(`{"a":1}`))
	rec := httptest.NewRecorder()

	var dst map[string]any
	ok := g.decodeBody(rec, req, &dst)
	assert.True(t, ok)
	assert.Equal(t, float64(1), dst["a"])
}

func TestDecodeBody_RejectsMalformedJSON(t *testing.T) {
	g := newDecodeGateway()
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	var dst map[string]any
	ok := g.decodeBody(rec, req, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeBody_RejectsOversizedBody(t *testing.T) {
	g := newDecodeGateway()
	g.cfg.Server.MaxBodyBytes = 4
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(`{"abc":"defghij"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	var dst map[string]any
	ok := g.decodeBody(rec, req, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWriteRunError_MapsValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRunError(rec, &model.ValidationError{Message: "bad spec"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteRunError_MapsAdmissionError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRunError(rec, &AdmissionError{Limiter: "llmRun", Reason: "queue full"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteRunError_MapsDeadlineExceeded(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRunError(rec, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestWriteRunError_DefaultsToBadGateway(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRunError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTranslateStreamEvent_Delta(t *testing.T) {
	payload, emit := translateStreamEvent(toolloop.StreamEvent{Type: toolloop.StreamDelta, Text: "hi"})
	require.True(t, emit)
	assert.Equal(t, "delta", payload.(streamEventPayload).Type)
	assert.Equal(t, "hi", payload.(streamEventPayload).Text)
}

func TestTranslateStreamEvent_ToolLifecycleCarriesKind(t *testing.T) {
	payload, emit := translateStreamEvent(toolloop.StreamEvent{
		Type: toolloop.StreamToolCallStart, CallID: "c1", ToolName: "search",
	})
	require.True(t, emit)
	p := payload.(streamEventPayload)
	assert.Equal(t, "tool", p.Type)
	assert.Equal(t, string(toolloop.StreamToolCallStart), p.Kind)
	assert.Equal(t, "c1", p.CallID)
}

func TestTranslateStreamEvent_DoneIsSuppressed(t *testing.T) {
	_, emit := translateStreamEvent(toolloop.StreamEvent{Type: toolloop.StreamDone})
	assert.False(t, emit)
}
