package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRegistry_GetProvider(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "providers", "openai.yaml"), `
id: openai
compat: openai
endpoint:
  urlTemplate: "https://api.openai.com/v1/chat/completions"
  method: POST
`)
	r := New(dir)

	p, err := r.GetProvider("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID)
	assert.True(t, r.ProvidersLoaded)
	assert.False(t, r.ToolsLoaded, "unrelated categories must not load")
}

func TestRegistry_GetProvider_Unknown(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.GetProvider("missing")
	assert.Error(t, err)
}

func TestRegistry_EmptyInputTriggersNoLoad(t *testing.T) {
	r := New(t.TempDir())

	servers, err := r.GetMCPServers(nil)
	require.NoError(t, err)
	assert.Empty(t, servers)
	assert.False(t, r.MCPServersLoaded, "empty input must not trigger a filesystem scan")

	tools, err := r.GetTools(nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
	assert.False(t, r.ToolsLoaded)
}

func TestRegistry_GetTools(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tools", "echo.yaml"), `
name: echo.text
description: Echoes text back.
parametersJsonSchema:
  type: object
`)
	r := New(dir)

	tools, err := r.GetTools([]string{"echo.text"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo.text", tools[0].Name)

	_, err = r.GetTools([]string{"unknown.tool"})
	assert.Error(t, err, "unknown tool names fail fast")
}

func TestRegistry_GetMCPServers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mcpServers", "fs.yaml"), `
id: fs
command: mcp-server-filesystem
args: ["/tmp"]
`)
	r := New(dir)

	servers, err := r.GetMCPServers([]string{"fs"})
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "mcp-server-filesystem", servers[0].Command)
}

func TestRegistry_GetVectorStoreCompat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vectorStores", "docs.yaml"), `
id: docs
compat: chromem
path: ./data/docs
`)
	r := New(dir)

	c, err := r.GetVectorStoreCompat("docs")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, r.CompatModulesLoaded)
}

func TestRegistry_GetProcessRoutes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "processRoutes", "routes.yaml"), `
routes:
  - id: echo
    match:
      type: exact
      pattern: echo.text
    invoke:
      kind: module
      module: echo
`)
	r := New(dir)

	routes, err := r.GetProcessRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "echo", routes[0].ID)
}

func TestRegistry_MissingDirIsEmptyNotError(t *testing.T) {
	r := New(t.TempDir())
	routes, err := r.GetProcessRoutes()
	require.NoError(t, err)
	assert.Empty(t, routes)
}
