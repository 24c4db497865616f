package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type identityContextKey struct{}

// identityKey returns the rate-limit key established by authMiddleware,
// falling back to the client IP when auth is disabled or the request
// never passed through the middleware chain (spec.md §4.12 step 3).
func (g *Gateway) identityKey(r *http.Request) string {
	if v, ok := r.Context().Value(identityContextKey{}).(string); ok && v != "" {
		return v
	}
	return g.getClientIP(r)
}

// authMiddleware implements spec.md §4.12 step 3: authenticate (if
// enabled) before rate limiting and admission are applied.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		identity, ok := g.authenticate(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "auth_error", "missing or invalid API key")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate enforces spec.md §4.12 step 3's optional API-key check.
// When auth is disabled every request is admitted and the rate-limit key
// is the client IP. When enabled, the key is read from the `x-api-key`
// header or an `Authorization: Bearer <key>` header and compared against
// the configured allowlist using a constant-time check; the key itself
// (not the IP) becomes the rate-limit identity so a shared NAT address
// doesn't throttle every tenant behind it together.
func (g *Gateway) authenticate(r *http.Request) (identity string, ok bool) {
	if !g.cfg.Auth.Enabled {
		return g.getClientIP(r), true
	}

	key := r.Header.Get("x-api-key")
	if key == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if key == "" {
		return "", false
	}

	for _, configured := range g.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(configured)) == 1 {
			return key, true
		}
	}
	return "", false
}
