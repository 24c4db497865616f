package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/registry"
)

// vectorPool holds one embedded chromem-go database handle per configured
// vector store id, shared for the process lifetime (spec.md §5 "Shared
// resources"; grounded on kadirpekel-hector's pkg/vector.ChromemProvider).
type vectorPool struct {
	registry *registry.Registry
	embed    *EmbeddingManager

	mu    sync.Mutex
	stores map[string]*vectorStore
}

func newVectorPool(reg *registry.Registry, embed *EmbeddingManager) *vectorPool {
	return &vectorPool{registry: reg, embed: embed, stores: map[string]*vectorStore{}}
}

// vectorStore wraps one chromem-go collection, using the store manifest's
// configured embedding provider to embed query text on the fly (the
// teacher's ChromemProvider instead assumes pre-computed vectors; this
// gateway's stores are queried by text, so the embedding function calls
// out to the configured embedding provider per spec.md §4.13).
type vectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func (p *vectorPool) get(ctx context.Context, storeID string) (*vectorStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[storeID]; ok {
		return s, nil
	}

	manifest, err := p.registry.GetVectorStore(storeID)
	if err != nil {
		return nil, err
	}

	var db *chromem.DB
	if manifest.Path != "" {
		db, err = chromem.NewPersistentDB(manifest.Path, true)
		if err != nil {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingProvider := manifest.Embedding
	embedFunc := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		if embeddingProvider == "" {
			return nil, fmt.Errorf("retrieval: vector store %q has no embedding provider configured", storeID)
		}
		return p.embed.EmbedOne(ctx, embeddingProvider, text)
	})

	collection := manifest.Collection
	if collection == "" {
		collection = storeID
	}
	col, err := db.GetOrCreateCollection(collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("retrieval: opening vector store %q: %w", storeID, err)
	}

	s := &vectorStore{db: db, collection: col}
	p.stores[storeID] = s
	return s, nil
}

// queryRaw runs a similarity search against one store, returning the raw
// hit list the façade's /vector/run endpoint and the built-in
// vector_search tool both consume.
func (p *vectorPool) queryRaw(ctx context.Context, storeID, query string, topK int, filter map[string]any) ([]model.VectorResult, error) {
	if topK <= 0 {
		topK = 5
	}
	store, err := p.get(ctx, storeID)
	if err != nil {
		return nil, err
	}

	n := topK
	if count := store.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	results, err := store.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: querying vector store %q: %w", storeID, err)
	}

	out := make([]model.VectorResult, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, model.VectorResult{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

// queryPriority tries each store in priority order, returning the first
// successful (possibly empty) result set. Per-store errors are collected
// as warnings rather than failing the whole call (spec.md §4.7 step 4,
// §7 "Vector and MCP partial failures are logged and skipped").
func (p *vectorPool) queryPriority(ctx context.Context, storePriority []string, query string, topK int, filter map[string]any) (*model.VectorCallResult, error) {
	var warnings []string
	for _, storeID := range storePriority {
		results, err := p.queryRaw(ctx, storeID, query, topK, filter)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", storeID, err))
			continue
		}
		return &model.VectorCallResult{Store: storeID, Results: results, Warnings: warnings}, nil
	}
	return nil, fmt.Errorf("retrieval: all %d vector stores failed: %v", len(storePriority), warnings)
}

// query implements discovery.VectorManager: results are coerced into
// tool-shaped recommendations when the stored metadata looks like a tool
// definition (spec.md §4.7 step 4 "Each result that looks like a unified
// tool is added").
func (p *vectorPool) query(ctx context.Context, storeID, queryText string, topK int) ([]model.UnifiedTool, error) {
	results, err := p.queryRaw(ctx, storeID, queryText, topK, nil)
	if err != nil {
		return nil, err
	}
	var tools []model.UnifiedTool
	for _, r := range results {
		name, _ := r.Metadata["toolName"].(string)
		if name == "" {
			continue
		}
		desc, _ := r.Metadata["description"].(string)
		schema, _ := r.Metadata["parametersJsonSchema"].(map[string]any)
		tools = append(tools, model.UnifiedTool{
			Name:                 name,
			Description:          desc,
			ParametersJSONSchema: schema,
		})
	}
	return tools, nil
}

// search implements dispatch.VectorSearcher: the built-in vector_search
// tool handler (spec.md §4.7 step 5, §4.8).
func (p *vectorPool) search(ctx context.Context, storeID, queryText string, topK int) (any, error) {
	results, err := p.queryRaw(ctx, storeID, queryText, topK, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"store": storeID, "results": results}, nil
}

func (p *vectorPool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	// chromem-go persists synchronously on write (NewPersistentDB) when a
	// path is configured; nothing further to flush here.
	return nil
}
