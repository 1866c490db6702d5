package sources

import (
	"sync"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// Registry provides thread-safe registration and lookup of source
// adapters. The pipeline resolves a job's requested sources through the
// registry and pages each adapter independently.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.SourceType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.SourceType]Adapter),
	}
}

// Register adds an adapter, replacing any existing adapter of the same
// source type.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.SourceType()] = adapter
}

// Get returns the adapter for a source type, or nil when none is
// registered.
func (r *Registry) Get(sourceType domain.SourceType) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[sourceType]
}

// Enabled returns the currently enabled adapters as a snapshot.
func (r *Registry) Enabled() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.IsEnabled() {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// Resolve maps the requested source types to registered, enabled
// adapters, preserving request order. Unknown and disabled sources are
// returned in the second value so the caller can surface a warning per
// source.
func (r *Registry) Resolve(sourceTypes []domain.SourceType) ([]Adapter, []domain.SourceType) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]Adapter, 0, len(sourceTypes))
	var unavailable []domain.SourceType
	for _, st := range sourceTypes {
		a, ok := r.adapters[st]
		if !ok || !a.IsEnabled() {
			unavailable = append(unavailable, st)
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters, unavailable
}
