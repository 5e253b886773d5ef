// Package spec defines the pluggable decision policies that interpret agent
// responses into next actions, plus the registry that resolves them by name.
//
// A spec is the only place build-flow policy lives: the engine folds its
// decisions, the workflow executes the requested work. Specs are
// referentially transparent — they read state artifacts and open steps and
// emit actions, performing no I/O of their own.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib, zerolog
//   - MUST NOT import: internal/agent, internal/orchestrator, internal/worktree
package spec

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/fabrica-build/fabrica/internal/domain"
)

// DecisionContext carries the injected inputs a spec needs to derive
// deterministic decision IDs. Workflow callers populate Now from
// workflow.Now so replays reproduce identical decisions.
type DecisionContext struct {
	// RunID identifies the execution run the triggering response came from.
	RunID string

	// Now is the injected current time.
	Now time.Time
}

// Spec is a named, versioned decision policy. Implementations hold
// configuration handed to them at construction but no persistent state of
// their own; all durable state lives in the engine state they are given.
type Spec interface {
	// Name uniquely identifies the spec in the registry.
	Name() string

	// Version identifies the policy revision, for audit records.
	Version() string

	// WorkKinds lists the work kinds this spec emits, used to resolve a
	// spec from a work kind.
	WorkKinds() []string

	// Validate checks the spec's configuration. The registry refuses to
	// register a spec that fails validation.
	Validate() error

	// Bootstrap produces the opening decision for a fresh goal, before any
	// response has arrived.
	Bootstrap(state domain.EngineState, dctx DecisionContext) (domain.Decision, error)

	// OnAgentCompleted interprets an agent response into the next decision.
	// It must be free of I/O and deterministic in (state, resp, dctx).
	OnAgentCompleted(state domain.EngineState, resp domain.Response, dctx DecisionContext) (domain.Decision, error)

	// OnAgentError decides how to handle an operation failure for the given
	// work kind. Below the retry ceiling it re-requests the work with the
	// prior error threaded into the payload; at or above the ceiling it
	// finalizes with a terminal annotation.
	OnAgentError(state domain.EngineState, workKind string, cause error, attempt int, dctx DecisionContext) (domain.Decision, error)
}

// PostApplier is an optional diagnostics hook invoked after the engine folds
// a decision. Implementations must not produce decisions or mutate state.
type PostApplier interface {
	PostApply(state domain.EngineState)
}

// NewDecisionID derives a decision ID deterministically from the triggering
// step, run, and time. Equal inputs yield equal IDs, which the durable
// substrate relies on during replay.
func NewDecisionID(stepID, runID string, now time.Time) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%d", stepID, runID, now.UnixNano())
	return fmt.Sprintf("dec-%016x", h.Sum64())
}

// decision assembles a Decision with its deterministic ID.
func decision(stepID string, dctx DecisionContext, finalize bool, actions ...domain.Action) domain.Decision {
	return domain.Decision{
		DecisionID:    NewDecisionID(stepID, dctx.RunID, dctx.Now),
		BasedOnStepID: stepID,
		BasedOnRunID:  dctx.RunID,
		Actions:       actions,
		Finalize:      finalize,
	}
}
