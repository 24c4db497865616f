package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/llm-gateway/internal/config"
)

func newAuthGateway(enabled bool, keys ...string) *Gateway {
	return &Gateway{cfg: &config.Config{Auth: config.AuthConfig{Enabled: enabled, APIKeys: keys}}}
}

func TestAuthenticate_DisabledAllowsAnyRequest(t *testing.T) {
	g := newAuthGateway(false)
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	identity, ok := g.authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", identity)
}

func TestAuthenticate_MissingKeyRejected(t *testing.T) {
	g := newAuthGateway(true, "secret")
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	_, ok := g.authenticate(req)
	assert.False(t, ok)
}

func TestAuthenticate_ValidAPIKeyHeader(t *testing.T) {
	g := newAuthGateway(true, "secret")
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("x-api-key", "secret")

	identity, ok := g.authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "secret", identity)
}

func TestAuthenticate_ValidBearerToken(t *testing.T) {
	g := newAuthGateway(true, "secret")
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer secret")

	identity, ok := g.authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "secret", identity)
}

func TestAuthenticate_WrongKeyRejected(t *testing.T) {
	g := newAuthGateway(true, "secret")
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("x-api-key", "wrong")

	_, ok := g.authenticate(req)
	assert.False(t, ok)
}

func TestAuthMiddleware_HealthzBypassesAuth(t *testing.T) {
	g := newAuthGateway(true, "secret")
	called := false
	handler := g.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_RejectsWithoutKey(t *testing.T) {
	g := newAuthGateway(true, "secret")
	called := false
	handler := g.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityKey_FallsBackToClientIP(t *testing.T) {
	g := newAuthGateway(false)
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	assert.Equal(t, "192.168.1.1", g.identityKey(req))
}
