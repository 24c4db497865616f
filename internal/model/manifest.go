package model

// EndpointManifest describes how to reach a provider's HTTP API.
type EndpointManifest struct {
	URLTemplate         string            `yaml:"urlTemplate" json:"urlTemplate"`
	StreamingURLTemplate string           `yaml:"streamingUrlTemplate,omitempty" json:"streamingUrlTemplate,omitempty"`
	Method              string            `yaml:"method" json:"method"`
	Headers             map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	StreamingHeaders    map[string]string `yaml:"streamingHeaders,omitempty" json:"streamingHeaders,omitempty"`
}

// PayloadExtension declaratively maps a spec-side setting name to a
// dotted-path position within the outgoing payload (spec.md §4.3).
type PayloadExtension struct {
	SettingKey string `yaml:"settingKey" json:"settingKey"`
	TargetPath string `yaml:"targetPath" json:"targetPath"`
	ValueType  string `yaml:"valueType,omitempty" json:"valueType,omitempty"` // scalar|array|object
}

// ProviderManifest is the registry-loaded description of one reachable
// provider (spec.md §3 "ProviderManifest").
type ProviderManifest struct {
	ID                string             `yaml:"id" json:"id"`
	Compat            string             `yaml:"compat" json:"compat"`
	Endpoint          EndpointManifest   `yaml:"endpoint" json:"endpoint"`
	RetryWords        []string           `yaml:"retryWords,omitempty" json:"retryWords,omitempty"`
	PayloadExtensions []PayloadExtension `yaml:"payloadExtensions,omitempty" json:"payloadExtensions,omitempty"`
}

// SettingKeys returns the set of settingKey values declared across this
// manifest's payload extensions, used to partition provider extras
// between manifest-consumed and compat-consumed (spec.md §4.3 step 4).
func (p *ProviderManifest) SettingKeys() map[string]bool {
	keys := make(map[string]bool, len(p.PayloadExtensions))
	for _, ext := range p.PayloadExtensions {
		keys[ext.SettingKey] = true
	}
	return keys
}

// RouteMatchType selects how ProcessRoute.Match.Pattern is interpreted.
type RouteMatchType string

const (
	MatchExact  RouteMatchType = "exact"
	MatchPrefix RouteMatchType = "prefix"
	MatchRegex  RouteMatchType = "regex"
	MatchGlob   RouteMatchType = "glob"
)

// RouteMatch is the match clause of a ProcessRoute.
type RouteMatch struct {
	Type    RouteMatchType `yaml:"type" json:"type"`
	Pattern string         `yaml:"pattern" json:"pattern"`
}

// InvokeKind selects how a ProcessRoute's tool call is executed.
type InvokeKind string

const (
	InvokeModule      InvokeKind = "module"
	InvokeHTTP        InvokeKind = "http"
	InvokeCommand     InvokeKind = "command"
	InvokeMCP         InvokeKind = "mcp"
	InvokeVectorSearch InvokeKind = "vector_search"
)

// RouteInvoke is the invoke clause of a ProcessRoute.
type RouteInvoke struct {
	Kind InvokeKind `yaml:"kind" json:"kind"`

	// Module names a registered in-process handler (InvokeModule).
	Module string `yaml:"module,omitempty" json:"module,omitempty"`
	// URL is the target for InvokeHTTP.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Command and Args are the subprocess to run for InvokeCommand.
	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
	// Env holds overrides applied on top of the inherited environment
	// when spawning Command (InvokeCommand).
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// Server names the registered MCP server for InvokeMCP.
	Server string `yaml:"server,omitempty" json:"server,omitempty"`
	// Store names the vector store for InvokeVectorSearch.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
}

// ProcessRoute maps a sanitized tool name to an execution target
// (spec.md §3 "ProcessRoute").
type ProcessRoute struct {
	ID        string      `yaml:"id" json:"id"`
	Match     RouteMatch  `yaml:"match" json:"match"`
	Invoke    RouteInvoke `yaml:"invoke" json:"invoke"`
	TimeoutMs int         `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
}

// ToolManifest is a registry-loaded function tool, addressable by name from
// spec.functionToolNames (spec.md §4.7 step 2).
type ToolManifest struct {
	UnifiedTool `yaml:",inline"`
}

// MCPServerManifest describes a stdio MCP server the retrieval layer can
// launch and query for tools (spec.md §4.7 step 3, §4.13).
type MCPServerManifest struct {
	ID      string            `yaml:"id" json:"id"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// VectorStoreManifest describes an embedded or remote vector store
// available for retrieval (spec.md §4.7 step 4, §4.13).
type VectorStoreManifest struct {
	ID         string `yaml:"id" json:"id"`
	Compat     string `yaml:"compat" json:"compat"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	Embedding  string `yaml:"embedding,omitempty" json:"embedding,omitempty"`
}

// EmbeddingProviderManifest describes one embedding provider in an
// embedding manager's fallback priority chain (spec.md §4.13).
type EmbeddingProviderManifest struct {
	ID         string            `yaml:"id" json:"id"`
	Compat     string            `yaml:"compat" json:"compat"`
	Endpoint   EndpointManifest  `yaml:"endpoint" json:"endpoint"`
	Model      string            `yaml:"model,omitempty" json:"model,omitempty"`
	RetryWords []string          `yaml:"retryWords,omitempty" json:"retryWords,omitempty"`
}
