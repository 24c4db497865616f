package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/llm-gateway/internal/config"
)

func newOriginGateway(allowed ...string) *Gateway {
	return &Gateway{cfg: &config.Config{CORS: config.CORSConfig{AllowedOrigins: allowed}}}
}

func TestIsAllowedOrigin_ExactMatch(t *testing.T) {
	g := newOriginGateway("https://example.com")
	assert.True(t, g.isAllowedOrigin("https://example.com"))
	assert.False(t, g.isAllowedOrigin("https://evil.com"))
}

func TestIsAllowedOrigin_Wildcard(t *testing.T) {
	g := newOriginGateway("*")
	assert.True(t, g.isAllowedOrigin("https://anything.example"))
}

func TestIsAllowedOrigin_EmptyAllowlistDeniesAll(t *testing.T) {
	g := newOriginGateway()
	assert.False(t, g.isAllowedOrigin("https://example.com"))
}

func TestRateLimiter_AllowsBurstThenThrottles(t *testing.T) {
	rl := newRateLimiter(2)
	assert.True(t, rl.allow("ip1"))
	assert.True(t, rl.allow("ip1"))
	assert.False(t, rl.allow("ip1"))
}

func TestRateLimiter_TracksBucketsIndependently(t *testing.T) {
	rl := newRateLimiter(1)
	assert.True(t, rl.allow("ip1"))
	assert.True(t, rl.allow("ip2"))
	assert.False(t, rl.allow("ip1"))
}

func TestGetClientIP_TrustsForwardedForOnlyFromLocalhost(t *testing.T) {
	g := &Gateway{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", g.getClientIP(req))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "203.0.113.9:1234"
	req2.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.9", g.getClientIP(req2))
}

func TestSecurityMiddleware_SetsHeadersAndCORS(t *testing.T) {
	g := newOriginGateway("https://example.com")
	handler := g.security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityMiddleware_OptionsShortCircuits(t *testing.T) {
	g := newOriginGateway()
	called := false
	handler := g.security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
