// Package sanitize provides the deterministic name/id sanitization and
// header-redaction utilities shared by tool discovery, dispatch, and the
// provider manager's logging sink.
package sanitize

import "strings"

const maxNameLen = 64

// ToolName replaces every character outside [A-Za-z0-9_-] with '_',
// substitutes "tool" for the empty string, and truncates to 64 bytes.
// Sanitization is many-to-one and idempotent: ToolName(ToolName(x)) ==
// ToolName(x).
func ToolName(name string) string {
	if name == "" {
		return "tool"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}

// ID is the same sanitization class as ToolName, used for batch and
// correlation ids. Kept as a distinct entry point since the two may grow
// different rules over time.
func ID(id string) string {
	return ToolName(id)
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	default:
		return false
	}
}
