package extractor

import (
	"context"
	"fmt"
	"sync"

	"FeedPulse/internal/domain"
)

// Source describes a concrete upstream endpoint provided by config.
type Source struct {
	Feed    string
	URL     string
	Options map[string]string
}

// Extractor turns an upstream payload into normalized items. One
// implementation per payload shape (JSON API, markup, RSS).
type Extractor interface {
	Name() string
	Fetch(ctx context.Context, src Source) ([]byte, error)
	Parse(src Source, raw []byte) ([]domain.Item, error)
}

// Registry keeps a mapping from extractor names to their implementations.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Extractor{}}
}

// Register adds or replaces an extractor implementation.
func (r *Registry) Register(ex Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extractors == nil {
		r.extractors = map[string]Extractor{}
	}
	r.extractors[ex.Name()] = ex
}

// Resolve returns an extractor by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ex, ok := r.extractors[name]; ok {
		return ex, nil
	}
	return nil, fmt.Errorf("extractor %s is not registered", name)
}
