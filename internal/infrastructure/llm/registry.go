package llm

import (
	"fmt"
	"sort"

	"CommentInbox/internal/ports"
)

// Registry keeps a mapping from backend names to text generators.
type Registry struct {
	generators map[string]ports.TextGenerator
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: map[string]ports.TextGenerator{}}
}

// Register adds or replaces a generator implementation.
func (r *Registry) Register(generator ports.TextGenerator) {
	if r.generators == nil {
		r.generators = map[string]ports.TextGenerator{}
	}
	r.generators[generator.Name()] = generator
}

// Resolve returns a generator by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.TextGenerator, error) {
	if generator, ok := r.generators[name]; ok {
		return generator, nil
	}
	return nil, fmt.Errorf("classifier backend %q is not registered (have %v)", name, r.Names())
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
