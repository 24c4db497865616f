// Package dispatch implements the tool route dispatcher (spec.md §4.8,
// component C8): matches a sanitized tool name against configured routes
// and invokes it via one of {module, http, command, mcp, vector_search},
// applying a per-route timeout.
//
// DESIGN: the five-invoke-kind switch over model.RouteInvoke.Kind follows
// spec.md §9's "Dynamic dispatch over tool invokers" guidance (a tagged
// variant with a single switch, not polymorphic objects). The "module"
// kind is realized as an in-process handler registry rather than true
// dynamic code loading — Go has no idiomatic equivalent of loading an
// arbitrary module by path at runtime, so a route's `module` field names
// a handler pre-registered at startup (the functional equivalent of
// "load a module and call its exported handle function").
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/compresr/llm-gateway/internal/model"
)

const defaultTimeout = 120 * time.Second

// ToolContext is what every invoke kind receives (spec.md §4.8/§4.9
// "dispatcher context ... threaded into dispatcher context for
// telemetry").
type ToolContext struct {
	CallID    string         `json:"callId"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`

	RequestID string `json:"requestId,omitempty"`
	BatchID   string `json:"batchId,omitempty"`

	ToolCallNumber     int  `json:"toolCallNumber,omitempty"`
	ToolCallTotal      int  `json:"toolCallTotal,omitempty"`
	ToolCallsRemaining int  `json:"toolCallsRemaining,omitempty"`
	FinalToolCall      bool `json:"finalToolCall,omitempty"`
}

// ModuleHandler is an in-process tool implementation registered under a
// name a ProcessRoute's `invoke.module` field refers to.
type ModuleHandler func(ctx context.Context, tc ToolContext) (any, error)

// MCPInvoker delegates a tool call to a configured MCP server.
type MCPInvoker interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (any, error)
}

// VectorSearcher implements the built-in vector_search tool handler.
type VectorSearcher interface {
	Search(ctx context.Context, storeID, query string, topK int) (any, error)
}

// RouteNotFoundError is raised when no configured route, virtual MCP
// route, or built-in handler matches a tool name. Per spec.md §7, this is
// the one ToolExecutionError variant that is fatal rather than recovered
// into a tool message.
type RouteNotFoundError struct{ ToolName string }

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("dispatch: no route for tool %q", e.ToolName)
}

// ExecutionError wraps any other invocation failure (timeout, non-zero
// exit, transport error, invalid output). Recovered into a tool message
// by the tool loop (spec.md §4.9).
type ExecutionError struct {
	ToolName string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dispatch: tool %q: %v", e.ToolName, e.Err)
}
func (e *ExecutionError) Unwrap() error { return e.Err }

// Dispatcher selects a route for a tool name and invokes it.
type Dispatcher struct {
	Routes     []*model.ProcessRoute
	Modules    map[string]ModuleHandler
	MCP        MCPInvoker
	Vector     VectorSearcher
	HTTPClient *http.Client

	// EnabledMCPServers drives the virtual MCP route fallback (spec.md
	// §4.8: "<mcpServerId>." or "<mcpServerId>_" prefix).
	EnabledMCPServers []string

	// VectorSearchToolName and VectorSearchStores configure the built-in
	// vector_search route (spec.md §4.7 step 5, §4.8).
	VectorSearchToolName string
	VectorSearchMode     model.VectorContextMode
	VectorSearchStores   []string
}

// Dispatch routes and invokes a single tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, tc ToolContext) (any, error) {
	route := d.matchRoute(tc.ToolName)
	if route != nil {
		return d.invoke(ctx, route, tc)
	}

	if serverID, ok := d.matchVirtualMCPRoute(tc.ToolName); ok {
		return d.invokeWithTimeout(ctx, 0, tc, func(ctx context.Context) (any, error) {
			return d.MCP.CallTool(ctx, serverID, tc.ToolName, tc.Arguments)
		})
	}

	if d.VectorSearchToolName != "" && tc.ToolName == d.VectorSearchToolName &&
		(d.VectorSearchMode == model.VectorContextTool || d.VectorSearchMode == model.VectorContextBoth) {
		return d.invokeWithTimeout(ctx, 0, tc, func(ctx context.Context) (any, error) {
			return d.invokeVectorSearch(ctx, tc)
		})
	}

	return nil, &RouteNotFoundError{ToolName: tc.ToolName}
}

// matchRoute returns the first configured route whose match clause
// accepts toolName, in declaration order.
func (d *Dispatcher) matchRoute(toolName string) *model.ProcessRoute {
	for _, r := range d.Routes {
		if routeMatches(r.Match, toolName) {
			return r
		}
	}
	return nil
}

func routeMatches(m model.RouteMatch, toolName string) bool {
	switch m.Type {
	case model.MatchExact:
		return toolName == m.Pattern
	case model.MatchPrefix:
		return strings.HasPrefix(toolName, m.Pattern)
	case model.MatchRegex:
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(toolName)
	case model.MatchGlob:
		ok, err := path.Match(m.Pattern, toolName)
		return err == nil && ok
	default:
		return false
	}
}

func (d *Dispatcher) matchVirtualMCPRoute(toolName string) (string, bool) {
	if d.MCP == nil {
		return "", false
	}
	for _, serverID := range d.EnabledMCPServers {
		if strings.HasPrefix(toolName, serverID+".") || strings.HasPrefix(toolName, serverID+"_") {
			return serverID, true
		}
	}
	return "", false
}

func (d *Dispatcher) invokeVectorSearch(ctx context.Context, tc ToolContext) (any, error) {
	if d.Vector == nil {
		return nil, fmt.Errorf("vector_search invoked but no vector manager is configured")
	}
	query, _ := tc.Arguments["query"].(string)
	store, _ := tc.Arguments["store"].(string)
	topK := 5
	if v, ok := tc.Arguments["topK"].(float64); ok && v > 0 {
		topK = int(v)
	}
	if store == "" && len(d.VectorSearchStores) > 0 {
		store = d.VectorSearchStores[0]
	}
	return d.Vector.Search(ctx, store, query, topK)
}

func (d *Dispatcher) invoke(ctx context.Context, route *model.ProcessRoute, tc ToolContext) (any, error) {
	timeout := defaultTimeout
	if route.TimeoutMs > 0 {
		timeout = time.Duration(route.TimeoutMs) * time.Millisecond
	}

	switch route.Invoke.Kind {
	case model.InvokeModule:
		return d.invokeWithTimeout(ctx, timeout, tc, func(ctx context.Context) (any, error) {
			return d.invokeModule(ctx, route, tc)
		})
	case model.InvokeHTTP:
		return d.invokeWithTimeout(ctx, timeout, tc, func(ctx context.Context) (any, error) {
			return d.invokeHTTP(ctx, route, tc)
		})
	case model.InvokeCommand:
		return d.invokeWithTimeout(ctx, timeout, tc, func(ctx context.Context) (any, error) {
			return d.invokeCommand(ctx, route, tc)
		})
	case model.InvokeMCP:
		return d.invokeWithTimeout(ctx, timeout, tc, func(ctx context.Context) (any, error) {
			if d.MCP == nil {
				return nil, fmt.Errorf("route %q declares invoke.kind=mcp but no MCP manager is configured", route.ID)
			}
			return d.MCP.CallTool(ctx, route.Invoke.Server, tc.ToolName, tc.Arguments)
		})
	case model.InvokeVectorSearch:
		return d.invokeWithTimeout(ctx, timeout, tc, func(ctx context.Context) (any, error) {
			return d.invokeVectorSearch(ctx, tc)
		})
	default:
		return nil, &ExecutionError{ToolName: tc.ToolName, Err: fmt.Errorf("unknown invoke kind %q", route.Invoke.Kind)}
	}
}

// invokeWithTimeout wraps fn in a context timeout, converting a deadline
// exceeded or fn error into an ExecutionError (spec.md §4.8 "Every invoke
// is wrapped in a timeout ... Timeouts raise a fatal ToolExecutionError").
// "Fatal" here means fatal-to-the-invocation, not fatal-to-the-run: the
// tool loop still recovers it into a tool message (spec.md §4.9).
func (d *Dispatcher) invokeWithTimeout(ctx context.Context, timeout time.Duration, tc ToolContext, fn func(context.Context) (any, error)) (any, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn(ctx)
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ExecutionError{ToolName: tc.ToolName, Err: ctx.Err()}
	case o := <-done:
		if o.err != nil {
			return nil, &ExecutionError{ToolName: tc.ToolName, Err: o.err}
		}
		return o.result, nil
	}
}

func (d *Dispatcher) invokeModule(ctx context.Context, route *model.ProcessRoute, tc ToolContext) (any, error) {
	handler, ok := d.Modules[route.Invoke.Module]
	if !ok {
		return nil, fmt.Errorf("module %q is not registered", route.Invoke.Module)
	}
	result, err := handler(ctx, tc)
	if err != nil {
		return nil, err
	}
	if _, isObject := result.(map[string]any); !isObject {
		result = map[string]any{"result": result}
	}
	return result, nil
}

func (d *Dispatcher) invokeHTTP(ctx context.Context, route *model.ProcessRoute, tc ToolContext) (any, error) {
	body, err := json.Marshal(tc)
	if err != nil {
		return nil, err
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Invoke.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

func (d *Dispatcher) invokeCommand(ctx context.Context, route *model.ProcessRoute, tc ToolContext) (any, error) {
	cmd := exec.CommandContext(ctx, route.Invoke.Command, route.Invoke.Args...)
	cmd.Env = os.Environ()
	for k, v := range route.Invoke.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	body, err := json.Marshal(tc)
	if err != nil {
		return nil, err
	}
	cmd.Stdin = bytes.NewReader(append(body, '\n'))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command %q exited: %w: %s", route.Invoke.Command, err, strings.TrimSpace(stderr.String()))
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var lastLine string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		return nil, fmt.Errorf("command %q produced no output", route.Invoke.Command)
	}

	var result any
	if err := json.Unmarshal([]byte(lastLine), &result); err != nil {
		return nil, fmt.Errorf("parsing command output as JSON: %w", err)
	}
	return result, nil
}
