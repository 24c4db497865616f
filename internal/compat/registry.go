// Registry manages compat registration and lookup.
//
// Thread-safe map of compat name -> Compat. Built-in compats are
// registered at startup; internal/registry's plugin loader can register
// additional ones by name at runtime.
package compat

import "sync"

// Registry is a thread-safe name -> Compat map.
type Registry struct {
	compats map[string]Compat
	mu      sync.RWMutex
}

// NewRegistry creates a registry pre-populated with every built-in
// compat.
func NewRegistry() *Registry {
	r := &Registry{compats: make(map[string]Compat)}
	r.Register(NewOpenAI())
	r.Register(NewAnthropic())
	r.Register(NewGemini())
	r.Register(NewBedrock())
	r.Register(NewOllama())
	r.Register(NewResponses())
	return r
}

// Register adds a compat to the registry, keyed by its own Name().
func (r *Registry) Register(c Compat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compats[c.Name()] = c
}

// Get returns a compat by name, or nil if none is registered.
func (r *Registry) Get(name string) Compat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compats[name]
}
