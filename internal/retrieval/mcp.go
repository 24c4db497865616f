// Package retrieval implements component C13: the MCP tool manager, the
// vector-store manager with priority fallback, and the embedding manager
// with provider fallback (spec.md §4.7 steps 3-4, §4.13, SPEC_FULL.md
// §B "MCP client transport" / "Embedded vector store").
//
// DESIGN: MCP connection handling (stdio transport via mark3labs/mcp-go,
// lazy-connect-on-first-use, tool-schema conversion) is grounded on
// kadirpekel-hector's pkg/tool/mcptoolset.Toolset. The vector store is
// grounded on the same repo's pkg/vector.ChromemProvider: chromem-go as
// the embedded backend, one collection per configured store.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/compresr/llm-gateway/internal/model"
)

// mcpConn is one lazily-established stdio connection to a configured MCP
// server, plus its tool list cached from the last successful ListTools.
type mcpConn struct {
	mu     sync.Mutex
	client *client.Client
	tools  []model.UnifiedTool
}

// mcpPool holds one mcpConn per configured server id, shared across
// requests for the lifetime of the process (spawning a stdio subprocess
// per HTTP request would be prohibitively expensive).
type mcpPool struct {
	mu    sync.Mutex
	conns map[string]*mcpConn
}

func newMCPPool() *mcpPool {
	return &mcpPool{conns: map[string]*mcpConn{}}
}

func (p *mcpPool) get(id string) *mcpConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[id]
	if !ok {
		c = &mcpConn{}
		p.conns[id] = c
	}
	return c
}

// ensure connects and initializes the MCP session on first use, and lists
// tools, caching the result on the connection.
func (c *mcpConn) ensure(ctx context.Context, server *model.MCPServerManifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	env := make([]string, 0, len(server.Env))
	for k, v := range server.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(server.Command, env, server.Args...)
	if err != nil {
		return fmt.Errorf("retrieval: starting MCP server %q: %w", server.ID, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("retrieval: starting MCP server %q: %w", server.ID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "llm-gateway", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("retrieval: initializing MCP server %q: %w", server.ID, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("retrieval: listing tools on MCP server %q: %w", server.ID, err)
	}

	tools := make([]model.UnifiedTool, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, model.UnifiedTool{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJSONSchema: convertSchema(t.InputSchema),
		})
	}

	c.client = mcpClient
	c.tools = tools
	return nil
}

func (c *mcpConn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.tools = nil
	return err
}

// convertSchema normalizes mcp-go's typed input schema into the plain
// map[string]any shape model.UnifiedTool.ParametersJSONSchema expects.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// listTools implements discovery.MCPManager for one server id.
func (p *mcpPool) listTools(ctx context.Context, server *model.MCPServerManifest) ([]model.UnifiedTool, error) {
	conn := p.get(server.ID)
	if err := conn.ensure(ctx, server); err != nil {
		return nil, err
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.tools, nil
}

// callTool implements dispatch.MCPInvoker for one server id.
func (p *mcpPool) callTool(ctx context.Context, server *model.MCPServerManifest, toolName string, arguments map[string]any) (any, error) {
	conn := p.get(server.ID)
	if err := conn.ensure(ctx, server); err != nil {
		return nil, err
	}
	conn.mu.Lock()
	mcpClient := conn.client
	conn.mu.Unlock()

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: calling %q on MCP server %q: %w", toolName, server.ID, err)
	}
	return parseToolResult(resp), nil
}

// parseToolResult flattens an MCP CallToolResult into the plain shape the
// tool loop stringifies (spec.md §4.9 "invoke via dispatcher; on success,
// stringify result").
func parseToolResult(resp *mcp.CallToolResult) any {
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	result := map[string]any{}
	if resp.IsError {
		if len(texts) > 0 {
			result["error"] = texts[0]
		} else {
			result["error"] = "unknown MCP tool error"
		}
		return result
	}
	switch len(texts) {
	case 0:
		return result
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result
}

func (p *mcpPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.conns {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
