package spec

import (
	"fmt"
	"sort"
	"sync"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// Registry maps spec names (and the work kinds they emit) to Spec
// implementations. It provides thread-safe registration and lookup.
// Registration rejects duplicate names with a typed configuration error
// rather than silently overwriting.
type Registry struct {
	mu        sync.RWMutex
	specs     map[string]Spec
	byKind    map[string]string
	defaultTo string
}

// NewRegistry creates an empty spec registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:  make(map[string]Spec),
		byKind: make(map[string]string),
	}
}

// Register adds a spec after validating it. The first registered spec
// becomes the default. Returns ErrSpecInvalid when the spec fails its
// Validate contract and ErrDuplicateSpec when the name (or one of the work
// kinds) is already taken.
func (r *Registry) Register(s Spec) error {
	if s.Name() == "" {
		return fmt.Errorf("%w: spec name is required", fabricaerrors.ErrSpecInvalid)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", fabricaerrors.ErrSpecInvalid, s.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[s.Name()]; exists {
		return fmt.Errorf("%w: %s", fabricaerrors.ErrDuplicateSpec, s.Name())
	}
	for _, kind := range s.WorkKinds() {
		if owner, exists := r.byKind[kind]; exists {
			return fmt.Errorf("%w: work kind %q already owned by %s",
				fabricaerrors.ErrDuplicateSpec, kind, owner)
		}
	}

	r.specs[s.Name()] = s
	for _, kind := range s.WorkKinds() {
		r.byKind[kind] = s.Name()
	}
	if r.defaultTo == "" {
		r.defaultTo = s.Name()
	}
	return nil
}

// Resolve returns the spec registered under the given name. An empty name
// resolves to the default spec.
func (r *Registry) Resolve(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultTo
	}
	s, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrSpecNotFound, name)
	}
	return s, nil
}

// ResolveForWorkKind returns the spec that owns the given work kind.
func (r *Registry) ResolveForWorkKind(kind string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no spec owns work kind %q", fabricaerrors.ErrSpecNotFound, kind)
	}
	return r.specs[name], nil
}

// Names returns all registered spec names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
