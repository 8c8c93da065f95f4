package source

import (
	"fmt"
	"slices"
)

// Registry maps source names to sources. It is immutable after NewRegistry
// and safe for concurrent use without locking.
type Registry struct {
	byName map[string]Source
	names  []string
}

// NewRegistry validates and indexes the given sources. Names must be unique
// and non-empty and every source needs an address. The input is copied.
func NewRegistry(sources []Source) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Source, len(sources)),
		names:  make([]string, 0, len(sources)),
	}
	for i, src := range sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.Address == "" {
			return nil, fmt.Errorf("source %q: address is required", src.Name)
		}
		if _, dup := r.byName[src.Name]; dup {
			return nil, fmt.Errorf("source %q: duplicate name", src.Name)
		}
		if src.Kind == "" {
			src.Kind = KindRTSP
		}
		r.byName[src.Name] = src
		r.names = append(r.names, src.Name)
	}
	slices.Sort(r.names)
	return r, nil
}

// Lookup returns the source with the given name, or an error wrapping
// ErrUnknownSource.
func (r *Registry) Lookup(name string) (Source, error) {
	src, ok := r.byName[name]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return src, nil
}

// Names returns all source names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// All returns every source, ordered by name.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.names)
}
