// Package coordinator implements the single entry point that drives one
// call spec end-to-end (spec.md §4.10, component C10): resolve the chosen
// provider, partition settings, preprocess documents, assemble the
// effective tool set, perform the first provider call, and hand off into
// the tool loop when that call requests tool execution.
//
// DESIGN: grounded on the teacher's gateway.Router/Gateway orchestration
// shape (one struct wiring registry + provider transport + tool dispatch
// behind a single Run/Stream entry point), generalized from the teacher's
// fixed three-provider, single-tool-set flow to the fully dynamic
// per-request provider/tool/retrieval resolution spec.md §4.10 describes.
// No additional third-party library is introduced here: this package is
// pure orchestration glue over C3-C9 and C11, each already wired to its
// own dependency.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/compresr/llm-gateway/internal/budget"
	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/discovery"
	"github.com/compresr/llm-gateway/internal/dispatch"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/monitoring"
	"github.com/compresr/llm-gateway/internal/payload"
	"github.com/compresr/llm-gateway/internal/providermanager"
	"github.com/compresr/llm-gateway/internal/registry"
	"github.com/compresr/llm-gateway/internal/sanitize"
	"github.com/compresr/llm-gateway/internal/toolloop"
)

// Retrieval is the combined capability set the coordinator needs from the
// retrieval layer (internal/retrieval.Manager satisfies all four methods).
// A nil Retrieval disables MCP/vector discovery and dispatch for every
// call; discovery and dispatch both tolerate nil collaborators.
type Retrieval interface {
	discovery.MCPManager
	discovery.VectorManager
	dispatch.MCPInvoker
	dispatch.VectorSearcher
}

// runtimeOnlySettingKeys never survive into the wire payload even as a
// provider extra (spec.md §4.10 step 2 "batchId" clause). Tool-loop flags
// and preservation policies are already recognized LLMCallSettings fields
// so DecodeSettings keeps them off the extras map on its own; batchId is
// the one key that would otherwise fall through to extras because it is
// not a recognized setting.
var runtimeOnlySettingKeys = []string{"batchId"}

// Coordinator drives one call end-to-end. It holds no per-request state;
// all fields are shared, long-lived collaborators safe for concurrent use
// across requests.
type Coordinator struct {
	Registry   *registry.Registry
	Providers  *providermanager.Manager
	Modules    map[string]dispatch.ModuleHandler
	Retrieval  Retrieval
	HTTPClient *http.Client

	Tracker       *monitoring.Tracker
	RequestLogger *monitoring.RequestLogger
	Alerts        *monitoring.AlertManager
	Metrics       *monitoring.MetricsCollector
}

// Close drains every lazy subsystem the coordinator owns (spec.md §4.10
// step 7): the retrieval layer's MCP server pool and vector adapters (when
// it implements io.Closer) and the telemetry tracker's open log files. The
// registry and provider manager hold no resources of their own.
func (c *Coordinator) Close() error {
	var errs []error
	if closer, ok := c.Retrieval.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Tracker != nil {
		if err := c.Tracker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// prepared bundles everything resolved once per call, shared by both the
// initial provider call and every subsequent tool-loop turn.
type prepared struct {
	requestID string
	batchID   string

	manifest *model.ProviderManifest
	compat   compat.Compat
	model    string

	settings *model.LLMCallSettings
	extras   map[string]any

	messages []model.Message
	tools    []model.UnifiedTool
	aliasMap *sanitize.AliasMap

	dispatcher *dispatch.Dispatcher
	budget     *budget.ToolCallBudget
	flags      toolloop.Flags

	warnings []string
}

// prepare runs spec.md §4.10 steps 1-5: provider resolution, settings
// partition, document preprocessing, and tool-set assembly.
func (c *Coordinator) prepare(ctx context.Context, spec *model.LLMCallSpec) (*prepared, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	choice := spec.LLMPriority[0]
	batchID, _ := spec.Metadata["batchId"].(string)

	merged := model.MergeSettings(spec.Settings, choice.Settings)
	for _, k := range runtimeOnlySettingKeys {
		delete(merged, k)
	}
	settings, extras := model.DecodeSettings(merged)

	manifest, err := c.Registry.GetProvider(choice.Provider)
	if err != nil {
		return nil, err
	}
	compatModule, err := c.Registry.GetCompatModule(manifest.Compat)
	if err != nil {
		return nil, err
	}

	messages, err := PreprocessDocuments(spec.Messages)
	if err != nil {
		return nil, err
	}

	p := &prepared{
		requestID: uuid.NewString(),
		batchID:   batchID,
		manifest:  manifest,
		compat:    compatModule,
		model:     choice.Model,
		settings:  settings,
		extras:    extras,
		messages:  messages,
		aliasMap:  sanitize.NewAliasMap(),
		flags:     toolloop.FlagsFromSettings(settings),
	}

	needsDiscovery := len(spec.Tools) > 0 || len(spec.FunctionToolNames) > 0 ||
		len(spec.MCPServers) > 0 || len(spec.VectorPriority) > 0 || spec.VectorContext != nil

	var mcpServers []*model.MCPServerManifest
	if needsDiscovery {
		var mcpMgr discovery.MCPManager
		var vecMgr discovery.VectorManager
		if c.Retrieval != nil {
			mcpMgr, vecMgr = c.Retrieval, c.Retrieval
		}
		result, err := discovery.Discover(ctx, discovery.Input{
			Spec: spec, Registry: c.Registry, MCP: mcpMgr, Vector: vecMgr,
		})
		if err != nil {
			return nil, err
		}
		p.tools = result.Tools
		p.aliasMap = result.AliasMap
		mcpServers = result.MCPServers
		p.warnings = result.Warnings
	}

	routes, err := c.Registry.GetProcessRoutes()
	if err != nil {
		return nil, err
	}
	enabledServers := make([]string, 0, len(mcpServers))
	for _, s := range mcpServers {
		enabledServers = append(enabledServers, s.ID)
	}
	vectorMode := model.VectorContextOff
	if spec.VectorContext != nil {
		vectorMode = spec.VectorContext.Mode
	}

	var mcpInvoker dispatch.MCPInvoker
	var vecSearcher dispatch.VectorSearcher
	if c.Retrieval != nil {
		mcpInvoker, vecSearcher = c.Retrieval, c.Retrieval
	}
	p.dispatcher = &dispatch.Dispatcher{
		Routes:               routes,
		Modules:              c.Modules,
		MCP:                  mcpInvoker,
		Vector:               vecSearcher,
		HTTPClient:           c.HTTPClient,
		EnabledMCPServers:    enabledServers,
		VectorSearchToolName: discovery.VectorSearchToolName,
		VectorSearchMode:     vectorMode,
		VectorSearchStores:   spec.VectorPriority,
	}

	maxCalls := model.ParseMaxToolIterations(settings.MaxToolIterations)
	p.budget = budget.New(maxCalls)

	return p, nil
}

// Run performs one non-streaming call (spec.md §4.10 steps 6-7): call the
// provider, and when the response requests tool calls, drive them to
// completion via the tool loop.
func (c *Coordinator) Run(ctx context.Context, spec *model.LLMCallSpec) (*model.LLMResponse, error) {
	p, err := c.prepare(ctx, spec)
	if err != nil {
		return nil, err
	}

	resp, err := c.callOnce(ctx, p, p.messages, p.tools, false)
	if err != nil {
		return nil, err
	}
	for _, w := range p.warnings {
		resp.AddWarning(w)
	}
	if !resp.HasToolCalls() {
		return resp, nil
	}

	loop := c.buildLoop(p, false)
	final, _, err := loop.Run(ctx, p.messages, resp)
	return final, err
}

// Stream performs one streaming call. It returns a channel of façade-level
// tool-loop events and a finish function that, once the channel is
// drained, yields the final aggregated response.
func (c *Coordinator) Stream(ctx context.Context, spec *model.LLMCallSpec) (<-chan toolloop.StreamEvent, func() (*model.LLMResponse, error), error) {
	p, err := c.prepare(ctx, spec)
	if err != nil {
		return nil, nil, err
	}

	loop := c.buildLoop(p, true)
	out, finish := loop.StreamRun(ctx, p.messages, c.openStream(p))
	return out, func() (*model.LLMResponse, error) {
		resp, _, err := finish()
		if err != nil {
			return nil, err
		}
		for _, w := range p.warnings {
			resp.AddWarning(w)
		}
		return resp, nil
	}, nil
}

func (c *Coordinator) buildLoop(p *prepared, streaming bool) *toolloop.Loop {
	turn := func(ctx context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error) {
		return c.callOnce(ctx, p, messages, tools, streaming)
	}
	return &toolloop.Loop{
		Dispatcher: p.dispatcher,
		Turn:       turn,
		Tools:      p.tools,
		AliasMap:   p.aliasMap,
		Budget:     p.budget,
		Flags:      p.flags,
		RequestID:  p.requestID,
		BatchID:    p.batchID,
	}
}

// callOnce builds the wire payload for one turn and performs a
// non-streaming provider call (spec.md §4.3, §4.6). tools == nil means the
// tool loop's final-prompt call: no tools are offered this turn.
func (c *Coordinator) callOnce(ctx context.Context, p *prepared, messages []model.Message, tools []model.UnifiedTool, streaming bool) (*model.LLMResponse, error) {
	req, err := c.buildCallRequest(p, messages, tools, streaming)
	if err != nil {
		return nil, err
	}
	return c.Providers.Call(ctx, req)
}

// openStream adapts providermanager.Manager.Stream + the chosen compat's
// ParseStreamChunk into a toolloop.OpenStream, forwarding every normalized
// compat.StreamEvent (zero or more) that each parsed SSE chunk yields.
func (c *Coordinator) openStream(p *prepared) toolloop.OpenStream {
	return func(ctx context.Context, messages []model.Message, tools []model.UnifiedTool) (<-chan compat.StreamEvent, <-chan error, error) {
		req, err := c.buildCallRequest(p, messages, tools, true)
		if err != nil {
			return nil, nil, err
		}
		rawCh, rawErrCh, err := c.Providers.Stream(ctx, req)
		if err != nil {
			return nil, nil, err
		}

		out := make(chan compat.StreamEvent)
		errCh := make(chan error, 1)
		go func() {
			defer close(out)
			for chunk := range rawCh {
				events, err := p.compat.ParseStreamChunk(chunk)
				if err != nil {
					continue
				}
				for _, ev := range events {
					out <- ev
				}
			}
			if err, ok := <-rawErrCh; ok && err != nil {
				errCh <- err
			}
			close(errCh)
		}()
		return out, errCh, nil
	}
}

func (c *Coordinator) buildCallRequest(p *prepared, messages []model.Message, tools []model.UnifiedTool, streaming bool) (providermanager.CallRequest, error) {
	build, err := payload.Build(payload.BuildInput{
		Manifest:       p.manifest,
		Compat:         p.compat,
		Model:          p.model,
		Messages:       messages,
		Tools:          tools,
		Settings:       p.settings,
		ProviderExtras: p.extras,
		Streaming:      streaming,
	})
	if err != nil {
		return providermanager.CallRequest{}, fmt.Errorf("coordinator: building payload: %w", err)
	}

	unconsumed := make([]string, 0, len(build.UnconsumedExtras))
	for k := range build.UnconsumedExtras {
		unconsumed = append(unconsumed, k)
	}

	systemMessage, rest := splitSystemMessages(messages)
	return providermanager.CallRequest{
		RequestID: p.requestID,
		BatchID:   p.batchID,
		Manifest:  p.manifest,
		Compat:    p.compat,
		Model:     p.model,
		Payload:   build.Payload,
		Build: compat.BuildRequest{
			Model:         p.model,
			Messages:      rest,
			SystemMessage: systemMessage,
			Tools:         tools,
			Settings:      p.settings,
			Streaming:     streaming,
		},
		UnconsumedExtras: unconsumed,
	}, nil
}

// splitSystemMessages mirrors internal/payload's system-message
// aggregation so compat.BuildRequest looks identical whether a compat
// builds its payload from the wire-shape map or (SDK-only compats) from
// this struct directly.
func splitSystemMessages(messages []model.Message) (string, []model.Message) {
	var system string
	rest := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				if system != "" {
					system += "\n\n"
				}
				system += text
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
