package workload

import (
	"fmt"
	"sync"

	"github.com/sahilm/fuzzy"
)

// maxSuggestions caps the names offered when a lookup misses
const maxSuggestions = 3

// Registry holds workload descriptors by name.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds a descriptor. It fails with *DuplicateNameError if the name
// is taken.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid workload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name]; exists {
		return &DuplicateNameError{Name: d.Name}
	}

	r.descriptors[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for static catalogs; it panics on error.
func (r *Registry) MustRegister(descriptors ...Descriptor) {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the descriptor registered under name, or *NotFoundError.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, &NotFoundError{Name: name, Suggestions: suggest(name, r.order)}
	}
	return d, nil
}

// Search returns the registered names that fuzzy-match pattern, best
// match first. An empty pattern returns every name in registration order.
func (r *Registry) Search(pattern string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pattern == "" {
		names := make([]string, len(r.order))
		copy(names, r.order)
		return names
	}

	matches := fuzzy.Find(pattern, r.order)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Str
	}
	return names
}

func suggest(name string, names []string) []string {
	matches := fuzzy.Find(name, names)
	var out []string
	for _, m := range matches[:min(len(matches), maxSuggestions)] {
		out = append(out, m.Str)
	}
	return out
}

// Names returns registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered descriptors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
