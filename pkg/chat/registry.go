package chat

import (
	"fmt"
	"sort"
)

// Registry maps model identifiers to adapters. It is built once and never
// mutated, so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
	names    []string
}

// NewRegistry builds a registry from adapters keyed by their Name.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("chat: nil adapter")
		}
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("chat: adapter with empty name")
		}
		if _, dup := r.adapters[name]; dup {
			return nil, fmt.Errorf("chat: model %q registered twice", name)
		}
		r.adapters[name] = a
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustRegistry is NewRegistry that panics on error. Intended for tests and
// static wiring.
func MustRegistry(adapters ...Adapter) *Registry {
	r, err := NewRegistry(adapters...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the adapter for id or an *UnknownModelError.
func (r *Registry) Resolve(id string) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[id]; ok {
			return a, nil
		}
	}
	return nil, &UnknownModelError{Model: id}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, err := r.Resolve(id)
	return err == nil
}

// Names returns all registered identifiers, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
