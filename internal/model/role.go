// Package model defines the provider-agnostic data contract the rest of
// the gateway operates on: messages, content parts, tool calls, call
// specs, and responses. Nothing in this package talks to a network or
// knows about a specific vendor's wire format — that translation is the
// job of internal/compat.
package model

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)
