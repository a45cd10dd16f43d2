package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/llmrouter/router/internal/core/ports"
	registryfactory "github.com/llmrouter/router/internal/registry"
)

// ProviderRegistry is the concurrency-safe container of adapters keyed
// by provider name. Registration is idempotent by name: re-registering
// replaces the prior entry rather than erroring.
type ProviderRegistry struct {
	mu        sync.RWMutex
	adapters  map[string]ports.ProviderAdapter
}

// NewProviderRegistry builds an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{adapters: make(map[string]ports.ProviderAdapter)}
}

// RegisterFromConfig builds an adapter via the name -> constructor
// factory registry (internal/registry) for cfg.Type and registers it
// under cfg.Name.
func (r *ProviderRegistry) RegisterFromConfig(cfg domain.ProviderConfig) error {
	factory, err := registryfactory.Get(cfg.Type)
	if err != nil {
		return fmt.Errorf("provider registry: %w", err)
	}
	adapter, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("provider registry: constructing %q: %w", cfg.Name, err)
	}
	r.RegisterPrebuiltAdapter(adapter)
	return nil
}

// RegisterPrebuiltAdapter installs an already-constructed adapter,
// replacing any prior entry with the same name.
func (r *ProviderRegistry) RegisterPrebuiltAdapter(adapter ports.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// RegisterBYOC wraps a caller-provided ports.ProviderAdapter ("bring
// your own client") exactly like RegisterPrebuiltAdapter; the name is
// distinct only to mirror the spec's §4.8 vocabulary and the
// originating system's register()/register_byoc() split.
func (r *ProviderRegistry) RegisterBYOC(adapter ports.ProviderAdapter) {
	r.RegisterPrebuiltAdapter(adapter)
}

// Get returns the adapter registered under name, if any.
func (r *ProviderRegistry) Get(name string) (ports.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// GetAllEnabled returns every registered adapter with Enabled() true,
// ordered by name for deterministic iteration.
func (r *ProviderRegistry) GetAllEnabled() []ports.ProviderAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.ProviderAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len reports the number of registered adapters, enabled or not.
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// CloseAll closes every registered adapter, collecting errors.
func (r *ProviderRegistry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, a := range r.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
