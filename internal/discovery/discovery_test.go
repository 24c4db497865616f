package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/registry"
)

type fakeMCP struct {
	tools map[string][]model.UnifiedTool
	errs  map[string]error
}

func (f *fakeMCP) ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error) {
	if err, ok := f.errs[serverID]; ok {
		return nil, err
	}
	return f.tools[serverID], nil
}

func newRegistryWithTool(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tools"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools", "echo.yaml"), []byte(`
name: echo.text
description: Echoes.
parametersJsonSchema:
  type: object
`), 0o644))
	return registry.New(dir)
}

func TestDiscover_InlineOnly(t *testing.T) {
	spec := &model.LLMCallSpec{
		Tools: []model.UnifiedTool{{Name: "my tool!", Description: "d"}},
	}
	result, err := Discover(context.Background(), Input{Spec: spec, Registry: registry.New(t.TempDir())})
	require.NoError(t, err)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "my_tool_", result.Tools[0].Name)
	original, ok := result.AliasMap.Resolve("my_tool_")
	require.True(t, ok)
	assert.Equal(t, "my tool!", original)
}

func TestDiscover_RegistryToolsFailFastOnUnknown(t *testing.T) {
	spec := &model.LLMCallSpec{FunctionToolNames: []string{"does.not.exist"}}
	_, err := Discover(context.Background(), Input{Spec: spec, Registry: registry.New(t.TempDir())})
	assert.Error(t, err)
}

func TestDiscover_RegistryTools(t *testing.T) {
	spec := &model.LLMCallSpec{FunctionToolNames: []string{"echo.text"}}
	result, err := Discover(context.Background(), Input{Spec: spec, Registry: newRegistryWithTool(t)})
	require.NoError(t, err)
	require.Len(t, result.Tools, 1)
}

func TestDiscover_DedupesByOriginalName_FirstSourceWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mcpServers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcpServers", "docs.yaml"), []byte(`
id: docs
command: mcp-docs-server
`), 0o644))
	reg := registry.New(dir)

	spec := &model.LLMCallSpec{
		Tools:      []model.UnifiedTool{{Name: "search", Description: "inline version"}},
		MCPServers: []string{"docs"},
	}
	mcp := &fakeMCP{tools: map[string][]model.UnifiedTool{
		"docs": {{Name: "search", Description: "mcp version"}},
	}}

	result, err := Discover(context.Background(), Input{Spec: spec, Registry: reg, MCP: mcp})
	require.NoError(t, err)
	require.Len(t, result.Tools, 1, "the mcp server's duplicate original name must not override the inline one")
	assert.Equal(t, "search", result.Tools[0].Name)
	assert.Equal(t, "inline version", result.Tools[0].Description)
}

func TestDiscover_MCPServerWithZeroToolsDropped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mcpServers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcpServers", "empty.yaml"), []byte(`
id: empty
command: some-mcp-server
`), 0o644))
	reg := registry.New(dir)

	spec := &model.LLMCallSpec{MCPServers: []string{"empty"}}
	mcp := &fakeMCP{tools: map[string][]model.UnifiedTool{}}

	result, err := Discover(context.Background(), Input{Spec: spec, Registry: reg, MCP: mcp})
	require.NoError(t, err)
	assert.Empty(t, result.Tools)
	assert.Empty(t, result.MCPServers, "a server reporting zero tools must be dropped from the active set")
}

func TestDiscover_MCPServerErrorBecomesWarningNotFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mcpServers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcpServers", "flaky.yaml"), []byte(`
id: flaky
command: flaky-server
`), 0o644))
	reg := registry.New(dir)

	spec := &model.LLMCallSpec{MCPServers: []string{"flaky"}}
	mcp := &fakeMCP{errs: map[string]error{"flaky": errors.New("connection refused")}}

	result, err := Discover(context.Background(), Input{Spec: spec, Registry: reg, MCP: mcp})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
}

func TestDiscover_VectorSearchToolSynthesized(t *testing.T) {
	spec := &model.LLMCallSpec{
		VectorContext: &model.VectorContext{Mode: model.VectorContextTool},
	}
	result, err := Discover(context.Background(), Input{Spec: spec, Registry: registry.New(t.TempDir())})
	require.NoError(t, err)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, VectorSearchToolName, result.Tools[0].Name)
}

func TestDiscover_VectorSearchToolOmittedWhenModeOff(t *testing.T) {
	spec := &model.LLMCallSpec{
		VectorContext: &model.VectorContext{Mode: model.VectorContextOff},
	}
	result, err := Discover(context.Background(), Input{Spec: spec, Registry: registry.New(t.TempDir())})
	require.NoError(t, err)
	assert.Empty(t, result.Tools)
}

func TestDiscover_VectorQueryPrefersMetadataOverMessageText(t *testing.T) {
	spec := &model.LLMCallSpec{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart("from message")}},
		},
		Metadata:       map[string]any{"vectorQuery": "from metadata"},
		VectorPriority: []string{"docs"},
	}
	var gotQuery string
	discovered, err := Discover(context.Background(), Input{
		Spec:     spec,
		Registry: registry.New(t.TempDir()),
		Vector: vectorFunc(func(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error) {
			gotQuery = query
			return nil, nil
		}),
	})
	require.NoError(t, err)
	assert.Empty(t, discovered.Tools)
	assert.Equal(t, "from metadata", gotQuery)
}

type vectorFunc func(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error)

func (f vectorFunc) Query(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error) {
	return f(ctx, storeID, query, topK)
}
