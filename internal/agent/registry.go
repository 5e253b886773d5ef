package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// Registry maps agent roles to their runners. It provides thread-safe
// registration and lookup. Registration rejects duplicate roles with a typed
// error rather than silently overwriting.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty runner registry.
func NewRegistry() *Registry {
	return &Registry{
		runners: make(map[string]Runner),
	}
}

// Register adds a runner for a role. Returns ErrDuplicateRunner if the role
// is already taken.
func (r *Registry) Register(role string, runner Runner) error {
	if role == "" {
		return fmt.Errorf("%w: runner role is required", fabricaerrors.ErrEmptyValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[role]; exists {
		return fmt.Errorf("%w: %s", fabricaerrors.ErrDuplicateRunner, role)
	}
	r.runners[role] = runner
	return nil
}

// Get retrieves the runner for a role. Returns ErrRunnerNotFound if no
// runner is registered for the role.
func (r *Registry) Get(role string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrRunnerNotFound, role)
	}
	return runner, nil
}

// Has checks if a runner is registered for the role.
func (r *Registry) Has(role string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runners[role]
	return ok
}

// Roles returns all registered roles, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]string, 0, len(r.runners))
	for role := range r.runners {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// MultiRunner dispatches requests to the appropriate runner based on the
// request's role. It implements Runner to provide transparent routing.
type MultiRunner struct {
	registry *Registry
}

// NewMultiRunner creates a multi-runner with the given registry.
func NewMultiRunner(registry *Registry) *MultiRunner {
	return &MultiRunner{registry: registry}
}

// Run dispatches to the runner registered for req.Role.
func (m *MultiRunner) Run(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResult, error) {
	if req.Role == "" {
		return nil, fmt.Errorf("%w: role must be specified in request", fabricaerrors.ErrEmptyValue)
	}

	runner, err := m.registry.Get(req.Role)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, req)
}

// Compile-time check that MultiRunner implements Runner.
var _ Runner = (*MultiRunner)(nil)
