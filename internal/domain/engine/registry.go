package engine

import (
	"sort"
	"strings"

	"github.com/scan-hub/scan-hub/internal/apperr"
)

// Registry is the catalog of scan-engine adapters available to this process.
// It is built once at startup and only read afterwards.
type Registry struct {
	adapters  map[string]Adapter
	defaultID string
}

// NewRegistry indexes adapters by their normalized ID. A later adapter with the
// same ID replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters:  make(map[string]Adapter, len(adapters)),
		defaultID: Default,
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[normalize(a.ID())] = a
	}
	return r
}

// Resolve returns the adapter for requested. Blank input selects the default
// engine; an unknown name fails with an UnsupportedEngineError.
func (r *Registry) Resolve(requested string) (Adapter, error) {
	id := normalize(requested)
	if id == "" {
		id = r.defaultID
	}
	a, ok := r.adapters[id]
	if !ok {
		return nil, apperr.UnsupportedEngine(id)
	}
	return a, nil
}

// IDs lists registered engine identifiers in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
