package provider

import (
	"context"
	"sync"

	"subtrove/internal/subtitles"
)

// Adapter is implemented once per subtitle source.
type Adapter interface {
	// Source returns the tag stamped on every record the adapter produces.
	Source() subtitles.Source
	// Available reports liveness and authentication. Failures map to false.
	Available(ctx context.Context) bool
	// Search honours the request timeout and returns the records it parsed
	// even when part of the response was malformed.
	Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Record, error)
	// Download writes the record's file to dest and returns the final path.
	// An existing non-empty dest short-circuits without network access.
	Download(ctx context.Context, rec subtitles.Record, dest string) (string, error)
	// Limits returns the last observed quota snapshot.
	Limits() subtitles.Limits
}

// Registry maps source tags to adapters, preserving registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters map[subtitles.Source]Adapter
	order    []subtitles.Source
}

// NewRegistry registers the supplied adapters, skipping nils.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[subtitles.Source]Adapter, len(adapters))}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// Register adds or replaces the adapter for its source.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	source := adapter.Source()
	if _, exists := r.adapters[source]; !exists {
		r.order = append(r.order, source)
	}
	r.adapters[source] = adapter
}

// Get resolves an adapter by source tag.
func (r *Registry) Get(source subtitles.Source) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[source]
	return adapter, ok
}

// Select returns the registered adapters for sources, in the order given,
// without duplicates.
func (r *Registry) Select(sources []subtitles.Source) []Adapter {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	selected := make([]Adapter, 0, len(sources))
	seen := make(map[subtitles.Source]struct{}, len(sources))
	for _, source := range sources {
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}
		if adapter, ok := r.adapters[source]; ok {
			selected = append(selected, adapter)
		}
	}
	return selected
}

// Sources lists registered sources in registration order.
func (r *Registry) Sources() []subtitles.Source {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]subtitles.Source(nil), r.order...)
}

// Limits snapshots every registered adapter's quota.
func (r *Registry) Limits() []subtitles.Limits {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.order))
	for _, source := range r.order {
		adapters = append(adapters, r.adapters[source])
	}
	r.mu.RUnlock()

	out := make([]subtitles.Limits, 0, len(adapters))
	for _, adapter := range adapters {
		limits := adapter.Limits()
		if limits.Source == "" {
			limits.Source = adapter.Source()
		}
		out = append(out, limits)
	}
	return out
}
