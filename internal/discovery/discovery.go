// Package discovery assembles the effective tool set for a call spec from
// inline, registry, MCP, and vector-recommended sources (spec.md §4.7,
// component C7).
//
// DESIGN: grounded on the teacher's internal/adapters.Registry pattern of
// a small capability-scoped collaborator plus a dedup step, generalized
// to the four-source assembly spec.md describes. MCPManager/VectorManager
// are declared here (consumer-side, narrow interfaces) rather than in
// internal/retrieval, matching this module's existing pattern of small
// capability interfaces colocated with their caller (see
// internal/compat.ProviderExtensionApplier).
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/registry"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

// VectorSearchToolName is the sanitized name of the built-in tool
// synthesized when vectorContext.mode is "tool" or "both".
const VectorSearchToolName = "vector_search"

// MCPManager lists the tools exposed by one configured MCP server.
type MCPManager interface {
	ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error)
}

// VectorManager queries one configured vector store for tool-shaped
// recommendations (spec.md §4.7 step 4).
type VectorManager interface {
	Query(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error)
}

// Result is the assembled tool set for a single call (spec.md §4.7).
type Result struct {
	Tools      []model.UnifiedTool
	AliasMap   *sanitize.AliasMap
	MCPServers []*model.MCPServerManifest
	Warnings   []string
}

// Input bundles everything Discover needs.
type Input struct {
	Spec     *model.LLMCallSpec
	Registry *registry.Registry
	MCP      MCPManager   // nil when no MCP manager is active for this run
	Vector   VectorManager // nil when no vector manager is active for this run
}

// Discover runs the full six-step assembly (spec.md §4.7).
func Discover(ctx context.Context, in Input) (*Result, error) {
	type named struct {
		tool   model.UnifiedTool
		source string
	}
	var collected []named
	seen := map[string]bool{}

	add := func(tools []model.UnifiedTool, source string) {
		for _, t := range tools {
			if seen[t.Name] {
				continue // step 6: later sources never override an earlier original name
			}
			seen[t.Name] = true
			collected = append(collected, named{tool: t, source: source})
		}
	}

	// Step 1: inline tools.
	add(in.Spec.Tools, "inline")

	// Step 2: registry tools referenced by name, failing fast on unknowns.
	if len(in.Spec.FunctionToolNames) > 0 {
		manifests, err := in.Registry.GetTools(in.Spec.FunctionToolNames)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
		tools := make([]model.UnifiedTool, 0, len(manifests))
		for _, m := range manifests {
			tools = append(tools, m.UnifiedTool)
		}
		add(tools, "registry")
	}

	result := &Result{}

	// Step 3: MCP servers; empty-tool servers are dropped from the active
	// set, per-server errors are recorded as warnings and skipped.
	if in.MCP != nil && len(in.Spec.MCPServers) > 0 {
		manifests, err := in.Registry.GetMCPServers(in.Spec.MCPServers)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
		for _, srv := range manifests {
			tools, err := in.MCP.ListTools(ctx, srv.ID)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("mcp server %q: %v", srv.ID, err))
				continue
			}
			if len(tools) == 0 {
				continue
			}
			add(tools, "mcp:"+srv.ID)
			result.MCPServers = append(result.MCPServers, srv)
		}
	}

	// Step 4: vector-recommended tools, queried in priority order.
	if in.Vector != nil && len(in.Spec.VectorPriority) > 0 {
		query := vectorQuery(in.Spec)
		topK := 5
		if in.Spec.VectorContext != nil && in.Spec.VectorContext.TopK > 0 {
			topK = in.Spec.VectorContext.TopK
		}
		for _, storeID := range in.Spec.VectorPriority {
			tools, err := in.Vector.Query(ctx, storeID, query, topK)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("vector store %q: %v", storeID, err))
				continue
			}
			add(tools, "vector:"+storeID)
		}
	}

	// Step 5: synthesize the built-in vector_search tool.
	if in.Spec.VectorContext != nil {
		switch in.Spec.VectorContext.Mode {
		case model.VectorContextTool, model.VectorContextBoth:
			add([]model.UnifiedTool{buildVectorSearchTool(in.Spec.VectorPriority)}, "builtin")
		}
	}

	// Step 6: sanitize names and build the alias map.
	aliasMap := sanitize.NewAliasMap()
	tools := make([]model.UnifiedTool, 0, len(collected))
	for _, c := range collected {
		sanitized := aliasMap.Add(c.tool.Name)
		t := c.tool
		t.Name = sanitized
		tools = append(tools, t)
	}

	result.Tools = tools
	result.AliasMap = aliasMap
	return result, nil
}

// vectorQuery prefers metadata.vectorQuery, falling back to the most
// recent user text part (spec.md §4.7 step 4).
func vectorQuery(spec *model.LLMCallSpec) string {
	if spec.Metadata != nil {
		if q, ok := spec.Metadata["vectorQuery"].(string); ok && q != "" {
			return q
		}
	}
	for i := len(spec.Messages) - 1; i >= 0; i-- {
		m := spec.Messages[i]
		if m.Role != model.RoleUser {
			continue
		}
		if idx := m.FirstTextIndex(); idx >= 0 {
			return m.Content[idx].Text
		}
	}
	return ""
}

func buildVectorSearchTool(stores []string) model.UnifiedTool {
	sorted := append([]string(nil), stores...)
	sort.Strings(sorted)
	desc := "Searches the configured vector store(s) for relevant context."
	if len(sorted) > 0 {
		desc += " Available stores: " + strings.Join(sorted, ", ") + "."
	}
	return model.UnifiedTool{
		Name:        VectorSearchToolName,
		Description: desc,
		ParametersJSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string"},
				"topK":   map[string]any{"type": "number"},
				"store":  map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}
}
