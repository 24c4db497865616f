// Package registry implements the lazy plugin registry (spec.md §4.11):
// on-demand, cached loading of provider, tool, MCP server, vector store,
// embedding provider, process-route, and compat manifests from a plugins
// directory of YAML files.
//
// DESIGN: grounded on the teacher's internal/adapters.Registry (a mutex
// map[name]value + Register/Get) generalized to six manifest categories
// plus the compat module registry, each with its own "loaded" flag so a
// spec that only names a provider never triggers a filesystem scan of
// tools, MCP servers, or vector stores (spec.md §4.11 testable contract).
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
)

// Registry is a shared, thread-safe, lazily-populated source of manifests.
// Every category is loaded at most once per process, guarded by its own
// sync.Once; reads after the first load are served from the in-memory map
// under a read lock.
type Registry struct {
	pluginsDir string

	providersOnce sync.Once
	providers     map[string]*model.ProviderManifest
	providersErr  error
	ProvidersLoaded bool

	toolsOnce sync.Once
	tools     map[string]*model.ToolManifest
	toolsErr  error
	ToolsLoaded bool

	mcpOnce sync.Once
	mcpServers map[string]*model.MCPServerManifest
	mcpErr     error
	MCPServersLoaded bool

	vectorOnce sync.Once
	vectorStores map[string]*model.VectorStoreManifest
	vectorErr    error
	VectorStoresLoaded bool

	embeddingOnce sync.Once
	embeddings    map[string]*model.EmbeddingProviderManifest
	embeddingErr  error
	EmbeddingProvidersLoaded bool

	routesOnce sync.Once
	routes     []*model.ProcessRoute
	routesErr  error
	ProcessRoutesLoaded bool

	compatOnce sync.Once
	compat     *compat.Registry
	CompatModulesLoaded bool

	mu sync.RWMutex
}

// New creates a Registry rooted at pluginsDir. No files are read until a
// Get*/getCompatModule call is made.
func New(pluginsDir string) *Registry {
	return &Registry{pluginsDir: pluginsDir}
}

// GetCompatModule returns the compat module for name, constructing the
// (pure, side-effect-free) compat registry on first use.
func (r *Registry) GetCompatModule(name string) (compat.Compat, error) {
	r.compatOnce.Do(func() {
		r.compat = compat.NewRegistry()
		r.CompatModulesLoaded = true
	})
	c := r.compat.Get(name)
	if c == nil {
		return nil, fmt.Errorf("registry: unknown compat module %q", name)
	}
	return c, nil
}

// GetProvider returns the named provider manifest, loading the providers/
// directory on first call to any GetProvider/GetProviders.
func (r *Registry) GetProvider(id string) (*model.ProviderManifest, error) {
	r.loadProviders()
	if r.providersErr != nil {
		return nil, r.providersErr
	}
	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown provider %q", id)
	}
	return p, nil
}

func (r *Registry) loadProviders() {
	r.providersOnce.Do(func() {
		m, err := loadManifestDir[model.ProviderManifest](r.pluginsDir, "providers")
		r.mu.Lock()
		r.providers, r.providersErr = m, err
		r.mu.Unlock()
		r.ProvidersLoaded = true
	})
}

// GetTool returns a single registry-declared tool by name. Used internally
// by GetTools; unknown names fail fast per spec.md §4.7 step 2.
func (r *Registry) GetTool(name string) (*model.ToolManifest, error) {
	r.loadTools()
	if r.toolsErr != nil {
		return nil, r.toolsErr
	}
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown tool %q", name)
	}
	return t, nil
}

// GetTools resolves a set of names to registry tools. An empty names list
// triggers zero filesystem activity (spec.md §4.11 contract).
func (r *Registry) GetTools(names []string) ([]*model.ToolManifest, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]*model.ToolManifest, 0, len(names))
	for _, n := range names {
		t, err := r.GetTool(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Registry) loadTools() {
	r.toolsOnce.Do(func() {
		m, err := loadManifestDir[model.ToolManifest](r.pluginsDir, "tools")
		r.mu.Lock()
		r.tools, r.toolsErr = m, err
		r.mu.Unlock()
		r.ToolsLoaded = true
	})
}

// GetMCPServers resolves a set of server ids. An empty ids list triggers
// zero filesystem activity.
func (r *Registry) GetMCPServers(ids []string) ([]*model.MCPServerManifest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	r.mcpOnce.Do(func() {
		m, err := loadManifestDir[model.MCPServerManifest](r.pluginsDir, "mcpServers")
		r.mu.Lock()
		r.mcpServers, r.mcpErr = m, err
		r.mu.Unlock()
		r.MCPServersLoaded = true
	})
	if r.mcpErr != nil {
		return nil, r.mcpErr
	}
	out := make([]*model.MCPServerManifest, 0, len(ids))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		s, ok := r.mcpServers[id]
		if !ok {
			return nil, fmt.Errorf("registry: unknown MCP server %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetVectorStore resolves one vector store by id.
func (r *Registry) GetVectorStore(id string) (*model.VectorStoreManifest, error) {
	r.loadVectorStores()
	if r.vectorErr != nil {
		return nil, r.vectorErr
	}
	r.mu.RLock()
	v, ok := r.vectorStores[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown vector store %q", id)
	}
	return v, nil
}

// GetVectorStoreCompat returns the compat module associated with a vector
// store's declared compat name.
func (r *Registry) GetVectorStoreCompat(storeID string) (compat.Compat, error) {
	v, err := r.GetVectorStore(storeID)
	if err != nil {
		return nil, err
	}
	return r.GetCompatModule(v.Compat)
}

func (r *Registry) loadVectorStores() {
	r.vectorOnce.Do(func() {
		m, err := loadManifestDir[model.VectorStoreManifest](r.pluginsDir, "vectorStores")
		r.mu.Lock()
		r.vectorStores, r.vectorErr = m, err
		r.mu.Unlock()
		r.VectorStoresLoaded = true
	})
}

// GetEmbeddingProvider resolves one embedding provider by id.
func (r *Registry) GetEmbeddingProvider(id string) (*model.EmbeddingProviderManifest, error) {
	r.loadEmbeddings()
	if r.embeddingErr != nil {
		return nil, r.embeddingErr
	}
	r.mu.RLock()
	e, ok := r.embeddings[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown embedding provider %q", id)
	}
	return e, nil
}

// GetEmbeddingCompat returns the compat module for an embedding provider.
func (r *Registry) GetEmbeddingCompat(providerID string) (compat.Compat, error) {
	e, err := r.GetEmbeddingProvider(providerID)
	if err != nil {
		return nil, err
	}
	return r.GetCompatModule(e.Compat)
}

func (r *Registry) loadEmbeddings() {
	r.embeddingOnce.Do(func() {
		m, err := loadManifestDir[model.EmbeddingProviderManifest](r.pluginsDir, "embeddingProviders")
		r.mu.Lock()
		r.embeddings, r.embeddingErr = m, err
		r.mu.Unlock()
		r.EmbeddingProvidersLoaded = true
	})
}

// GetProcessRoutes returns every configured route, in declaration order
// (dispatch iterates them in this order per spec.md §4.8).
func (r *Registry) GetProcessRoutes() ([]*model.ProcessRoute, error) {
	r.routesOnce.Do(func() {
		routes, err := loadRouteFiles(filepath.Join(r.pluginsDir, "processRoutes"))
		r.mu.Lock()
		r.routes, r.routesErr = routes, err
		r.mu.Unlock()
		r.ProcessRoutesLoaded = true
	})
	return r.routes, r.routesErr
}

// loadManifestDir reads every *.yaml/*.yml file under pluginsDir/subdir,
// keyed by each manifest's ID field (located via yamlID), and returns an
// empty (non-nil) map when the directory does not exist — a missing
// category is not an error, just an empty one.
func loadManifestDir[T any](pluginsDir, subdir string) (map[string]*T, error) {
	dir := filepath.Join(pluginsDir, subdir)
	entries, err := os.ReadDir(dir)
	out := map[string]*T{}
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("registry: reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("registry: reading %s: %w", path, err)
		}
		var v T
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
		}
		id := manifestID(&v)
		if id == "" {
			return nil, fmt.Errorf("registry: %s has no id field", path)
		}
		out[id] = &v
	}
	return out, nil
}

func loadRouteFiles(dir string) ([]*model.ProcessRoute, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: reading %s: %w", dir, err)
	}
	var routes []*model.ProcessRoute
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("registry: reading %s: %w", path, err)
		}
		var doc struct {
			Routes []*model.ProcessRoute `yaml:"routes"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
		}
		routes = append(routes, doc.Routes...)
	}
	return routes, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// manifestID extracts the ID field from any of the manifest types via a
// small type switch; avoids reflection for the handful of concrete types
// this registry loads.
func manifestID(v any) string {
	switch m := v.(type) {
	case *model.ProviderManifest:
		return m.ID
	case *model.ToolManifest:
		return m.Name
	case *model.MCPServerManifest:
		return m.ID
	case *model.VectorStoreManifest:
		return m.ID
	case *model.EmbeddingProviderManifest:
		return m.ID
	default:
		return ""
	}
}
