package retrieval

import (
	"context"
	"errors"
	"net/http"

	"github.com/compresr/llm-gateway/internal/dispatch"
	"github.com/compresr/llm-gateway/internal/discovery"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/registry"
)

// Service is the process-wide retrieval layer: a pool of MCP server
// connections, a pool of embedded vector stores, and an embedding
// manager, all keyed off registry manifests and shared across requests
// (spec.md §5 "Shared resources" — MCP subprocess/vector DB handles are
// too expensive to establish per request).
type Service struct {
	registry  *registry.Registry
	mcp       *mcpPool
	vector    *vectorPool
	embedding *EmbeddingManager
}

// NewService builds the retrieval layer over reg. httpClient may be nil
// (a default client is used for embedding HTTP calls).
func NewService(reg *registry.Registry, httpClient *http.Client) *Service {
	embedding := NewEmbeddingManager(reg, httpClient)
	return &Service{
		registry:  reg,
		mcp:       newMCPPool(),
		vector:    newVectorPool(reg, embedding),
		embedding: embedding,
	}
}

// ListTools implements discovery.MCPManager.
func (s *Service) ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error) {
	servers, err := s.registry.GetMCPServers([]string{serverID})
	if err != nil {
		return nil, err
	}
	return s.mcp.listTools(ctx, servers[0])
}

// CallTool implements dispatch.MCPInvoker.
func (s *Service) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (any, error) {
	servers, err := s.registry.GetMCPServers([]string{serverID})
	if err != nil {
		return nil, err
	}
	return s.mcp.callTool(ctx, servers[0], toolName, arguments)
}

// Query implements discovery.VectorManager.
func (s *Service) Query(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error) {
	return s.vector.query(ctx, storeID, query, topK)
}

// Search implements dispatch.VectorSearcher (the built-in vector_search
// tool handler).
func (s *Service) Search(ctx context.Context, storeID, query string, topK int) (any, error) {
	return s.vector.search(ctx, storeID, query, topK)
}

// QueryPriority backs the /vector/run and /vector/stream façade
// endpoints: query stores in priority order, returning the first success.
func (s *Service) QueryPriority(ctx context.Context, spec *model.VectorCallSpec) (*model.VectorCallResult, error) {
	return s.vector.queryPriority(ctx, spec.StorePriority, spec.Query, spec.TopK, spec.Filter)
}

// Embed backs the /vector/embeddings/run façade endpoint.
func (s *Service) Embed(ctx context.Context, spec *model.EmbeddingCallSpec) (*model.EmbeddingCallResult, error) {
	return s.embedding.Embed(ctx, spec.ProviderPriority, spec.Input, spec.Model)
}

// Close drains every MCP connection opened by this process (spec.md §4.10
// step 7, §5). Called once at gateway shutdown — see Scoped for why
// per-request callers must not trigger this.
func (s *Service) Close() error {
	return errors.Join(s.mcp.close(), s.vector.close())
}

// Scoped adapts a shared Service into the narrow four-method capability
// set internal/coordinator.Retrieval expects, deliberately WITHOUT
// exposing Close: coordinator.Coordinator.Close() type-asserts its
// Retrieval field to io.Closer and closes it at the end of every request
// (spec.md §4.10 step 7 "owns its tool coordinator, MCP manager, and
// vector manager instances; they are closed at request end"). Those
// per-request semantics are correct for resources a coordinator owns
// exclusively, but this gateway's MCP subprocess pool and vector DB
// handles are process-wide (spawning a stdio subprocess per HTTP request
// would be prohibitively expensive) — so the façade hands every request a
// Scoped wrapper, and only the real Service.Close runs, once, on gateway
// shutdown.
type Scoped struct {
	svc *Service
}

// NewScoped wraps svc for a single request's coordinator.
func NewScoped(svc *Service) *Scoped { return &Scoped{svc: svc} }

func (s *Scoped) ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error) {
	return s.svc.ListTools(ctx, serverID)
}

func (s *Scoped) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (any, error) {
	return s.svc.CallTool(ctx, serverID, toolName, arguments)
}

func (s *Scoped) Query(ctx context.Context, storeID, query string, topK int) ([]model.UnifiedTool, error) {
	return s.svc.Query(ctx, storeID, query, topK)
}

func (s *Scoped) Search(ctx context.Context, storeID, query string, topK int) (any, error) {
	return s.svc.Search(ctx, storeID, query, topK)
}

var (
	_ discovery.MCPManager   = (*Scoped)(nil)
	_ discovery.VectorManager = (*Scoped)(nil)
	_ dispatch.MCPInvoker    = (*Scoped)(nil)
	_ dispatch.VectorSearcher = (*Scoped)(nil)
)
