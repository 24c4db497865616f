package sanitize

import "strings"

// sensitiveHeaders lists header names whose values are replaced before a
// request/response pair reaches the per-call log sink (spec.md §4.6
// "Logging: request and response ... are written to a dedicated per-call
// log sink ... (including headers, redacted)").
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
	"x-goog-api-key": true,
	"cookie":        true,
	"set-cookie":    true,
}

const redactedValue = "[REDACTED]"

// Headers returns a copy of headers with sensitive values replaced by a
// fixed placeholder. Header name matching is case-insensitive; the
// returned map keeps the original casing of its keys.
func Headers(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}
