// Package orchestrator implements the continuous build orchestrator: the
// dependency-aware build queue plus the durable workflows that drive package
// builds through the engine and spec layers.
package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// defaultCategoryLayers orders build categories from foundational to
// dependent. Unknown categories sort after all known ones.
var defaultCategoryLayers = map[string]int{
	"core":       0,
	"foundation": 0,
	"library":    1,
	"lib":        1,
	"service":    2,
	"tool":       2,
	"app":        3,
	"cli":        3,
}

// unknownLayer sorts unrecognized categories last among known layers.
const unknownLayer = 99

// BuildQueue holds pending packages and decides which are eligible to build.
// It is a plain in-memory structure: the hosting workflow owns it and
// serializes all access, so it carries no locking of its own, and all of its
// methods are deterministic.
type BuildQueue struct {
	packages       map[string]*domain.PackageState
	order          []string
	categoryLayers map[string]int
	maxConcurrent  int
}

// QueueOption configures a BuildQueue.
type QueueOption func(*BuildQueue)

// WithCategoryLayers overrides the default category layer mapping.
func WithCategoryLayers(layers map[string]int) QueueOption {
	return func(q *BuildQueue) {
		q.categoryLayers = layers
	}
}

// NewBuildQueue creates an empty queue bounded by maxConcurrent
// simultaneously building packages.
func NewBuildQueue(maxConcurrent int, opts ...QueueOption) *BuildQueue {
	q := &BuildQueue{
		packages:       make(map[string]*domain.PackageState),
		categoryLayers: defaultCategoryLayers,
		maxConcurrent:  maxConcurrent,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add enqueues a package as pending. Returns ErrDuplicatePackage when the
// name is already known, whatever its status; a finished package must be
// removed before it can be rebuilt.
func (q *BuildQueue) Add(pkg domain.Package, now time.Time) error {
	if pkg.Name == "" {
		return fmt.Errorf("package name cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}
	if _, exists := q.packages[pkg.Name]; exists {
		return fmt.Errorf("%w: %s", fabricaerrors.ErrDuplicatePackage, pkg.Name)
	}
	q.packages[pkg.Name] = &domain.PackageState{
		Package:    pkg,
		Status:     domain.BuildStatusPending,
		EnqueuedAt: now,
	}
	q.order = append(q.order, pkg.Name)
	return nil
}

// Eligible returns the pending packages whose dependencies are all published,
// ordered by priority (descending), then category layer (ascending), then
// name, limited to the remaining concurrency budget. It never mutates status.
func (q *BuildQueue) Eligible() []domain.Package {
	budget := q.maxConcurrent - q.BuildingCount()
	if budget <= 0 {
		return nil
	}

	var eligible []domain.Package
	for _, name := range q.order {
		state := q.packages[name]
		if state.Status != domain.BuildStatusPending {
			continue
		}
		if q.dependenciesPublished(state.Package) {
			eligible = append(eligible, state.Package)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		la, lb := q.layerOf(a.Category), q.layerOf(b.Category)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})

	if len(eligible) > budget {
		eligible = eligible[:budget]
	}
	return eligible
}

// dependenciesPublished reports whether every dependency of pkg has reached
// published. Dependencies not present in the queue count as unpublished.
func (q *BuildQueue) dependenciesPublished(pkg domain.Package) bool {
	for _, dep := range pkg.Dependencies {
		state, ok := q.packages[dep]
		if !ok || state.Status != domain.BuildStatusPublished {
			return false
		}
	}
	return true
}

func (q *BuildQueue) layerOf(category string) int {
	if layer, ok := q.categoryLayers[category]; ok {
		return layer
	}
	return unknownLayer
}

// MarkBuilding transitions a pending package to building.
func (q *BuildQueue) MarkBuilding(name string) error {
	return q.transition(name, domain.BuildStatusPending, domain.BuildStatusBuilding, "")
}

// MarkPublished transitions a building package to published.
func (q *BuildQueue) MarkPublished(name string, now time.Time) error {
	if err := q.transition(name, domain.BuildStatusBuilding, domain.BuildStatusPublished, ""); err != nil {
		return err
	}
	q.packages[name].FinishedAt = &now
	return nil
}

// MarkFailed transitions a building package to failed with a reason.
func (q *BuildQueue) MarkFailed(name, reason string, now time.Time) error {
	if err := q.transition(name, domain.BuildStatusBuilding, domain.BuildStatusFailed, reason); err != nil {
		return err
	}
	q.packages[name].FinishedAt = &now
	return nil
}

func (q *BuildQueue) transition(name string, from, to domain.BuildStatus, reason string) error {
	state, ok := q.packages[name]
	if !ok {
		return fmt.Errorf("%w: %s", fabricaerrors.ErrPackageNotFound, name)
	}
	if state.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s",
			fabricaerrors.ErrInvalidTransition, name, state.Status, from)
	}
	state.Status = to
	state.FailureReason = reason
	return nil
}

// BuildingCount returns how many packages are currently building.
func (q *BuildQueue) BuildingCount() int {
	n := 0
	for _, state := range q.packages {
		if state.Status == domain.BuildStatusBuilding {
			n++
		}
	}
	return n
}

// PendingCount returns how many packages are still pending.
func (q *BuildQueue) PendingCount() int {
	n := 0
	for _, state := range q.packages {
		if state.Status == domain.BuildStatusPending {
			n++
		}
	}
	return n
}

// Drained reports whether no package is pending or building.
func (q *BuildQueue) Drained() bool {
	return q.PendingCount() == 0 && q.BuildingCount() == 0
}

// QueueSnapshot is the query-visible view of the queue.
type QueueSnapshot struct {
	// Packages lists every known package in enqueue order.
	Packages []domain.PackageState `json:"packages"`

	// Building and Pending are convenience counters.
	Building int `json:"building"`
	Pending  int `json:"pending"`

	// Stopping reports whether an emergency stop is draining the queue.
	Stopping bool `json:"stopping"`
}

// Snapshot returns a copy of the queue state for queries.
func (q *BuildQueue) Snapshot() QueueSnapshot {
	snap := QueueSnapshot{
		Packages: make([]domain.PackageState, 0, len(q.order)),
		Building: q.BuildingCount(),
		Pending:  q.PendingCount(),
	}
	for _, name := range q.order {
		snap.Packages = append(snap.Packages, *q.packages[name])
	}
	return snap
}
