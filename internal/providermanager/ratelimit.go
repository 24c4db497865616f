package providermanager

import (
	"encoding/json"
	"net/http"
	"strings"
)

// classifyRateLimit reports whether any word in retryWords (case-insensitive)
// occurs in the serialized response body or in the response headers
// (spec.md §4.6). This is a textual heuristic, not a status-code check —
// SPEC_FULL.md §E documents the default conservative word list and notes
// it may false-positive on providers whose success responses happen to
// mention one of these words.
func classifyRateLimit(body []byte, headers http.Header, retryWords []string) bool {
	words := retryWords
	if len(words) == 0 {
		words = DefaultRetryWords
	}

	haystack := strings.ToLower(string(body) + " " + serializeHeaders(headers))
	for _, w := range words {
		if w == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// DefaultRetryWords is the conservative fallback word list used when a
// provider manifest declares none (SPEC_FULL.md §E open-question decision).
var DefaultRetryWords = []string{
	"rate_limit",
	"429",
	"retry-after",
	"overloaded",
}

func serializeHeaders(h http.Header) string {
	data, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return string(data)
}
