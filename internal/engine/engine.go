// Package engine implements the deterministic state transition engine.
//
// Every operation here is a pure function: it takes an immutable state value
// plus an action or response and returns a new state, never mutating its
// input. Determinism matters because the hosting durable substrate replays
// these transitions on recovery; identical inputs must produce identical
// states, including generated step IDs.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, std lib
//   - MUST NOT import: internal/agent, internal/worktree, internal/orchestrator
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/fabrica-build/fabrica/internal/domain"
)

// Context carries the injected time and random source used for deterministic
// ID generation. Callers construct it from their own clock (or, inside a
// workflow, from workflow.Now and a seeded source) — never from ambient
// globals.
type Context struct {
	// GoalID is the goal the context operates on.
	GoalID string

	// Now is the injected current time.
	Now time.Time

	// Random is the injected random source. Two contexts seeded identically
	// generate identical ID sequences.
	Random *rand.Rand
}

// NewContext builds a Context with a random source seeded from the given
// seed. Equal (goalID, now, seed) triples yield equal ID sequences.
func NewContext(goalID string, now time.Time, seed int64) Context {
	return Context{
		GoalID: goalID,
		Now:    now,
		Random: rand.New(rand.NewSource(seed)), //nolint:gosec // determinism is required, not secrecy
	}
}

// GenerateStepID derives a step ID from the context's time and random
// source. It is pure in (ctx.Now, ctx.Random state): replaying with an
// identically seeded context reproduces the same IDs.
func GenerateStepID(ctx Context) string {
	return fmt.Sprintf("step-%x-%08x", ctx.Now.UnixNano(), ctx.Random.Uint32())
}

// ApplyRequestWork inserts a WAITING step for the requested work kind and
// appends a WORK_REQUESTED event. When the action omits a step ID one is
// generated from the context.
func ApplyRequestWork(state domain.EngineState, action domain.Action, ctx Context) domain.EngineState {
	stepID := action.StepID
	if stepID == "" {
		stepID = GenerateStepID(ctx)
	}
	next := state
	next.OpenSteps = cloneSteps(state.OpenSteps)
	next.OpenSteps[stepID] = domain.Step{
		Kind:        action.WorkKind,
		Status:      domain.StepStatusWaiting,
		RequestedAt: ctx.Now,
		UpdatedAt:   ctx.Now,
		Payload:     action.Payload,
	}
	next.Log = appendEvent(state.Log, domain.Event{
		Kind:   domain.EventWorkRequested,
		StepID: stepID,
		At:     ctx.Now,
	})
	return next
}

// ApplyAnnotate sets an artifact key to a value (last-write-wins) and
// appends an ANNOTATED event.
func ApplyAnnotate(state domain.EngineState, action domain.Action, ctx Context) domain.EngineState {
	next := state
	next.Artifacts = cloneArtifacts(state.Artifacts)
	next.Artifacts[action.Key] = action.Value
	next.Log = appendEvent(state.Log, domain.Event{
		Kind: domain.EventAnnotated,
		Key:  action.Key,
		At:   ctx.Now,
	})
	return next
}

// ApplyRequestApproval inserts a WAITING approval step, moves the goal to
// AWAITING_APPROVAL, and appends an APPROVAL_REQUESTED event.
func ApplyRequestApproval(state domain.EngineState, action domain.Action, ctx Context) domain.EngineState {
	stepID := action.StepID
	if stepID == "" {
		stepID = GenerateStepID(ctx)
	}
	next := state
	next.Status = domain.EngineStatusAwaitingApproval
	next.OpenSteps = cloneSteps(state.OpenSteps)
	next.OpenSteps[stepID] = domain.Step{
		Kind:        "approval",
		Status:      domain.StepStatusWaiting,
		RequestedAt: ctx.Now,
		UpdatedAt:   ctx.Now,
		Payload:     action.Payload,
	}
	next.Log = appendEvent(state.Log, domain.Event{
		Kind:   domain.EventApprovalRequested,
		StepID: stepID,
		At:     ctx.Now,
	})
	return next
}

// ApplyAgentResponse folds an external response into the state.
//
// The response must reference the state's goal and an existing step; either
// violation is a structural protocol error. OK closes the step DONE and
// appends STEP_COMPLETED; FAIL closes it FAILED with no event; PARTIAL keeps
// it IN_PROGRESS with a refreshed UpdatedAt and no event.
func ApplyAgentResponse(state domain.EngineState, resp domain.Response, ctx Context) (domain.EngineState, error) {
	if resp.GoalID != state.GoalID {
		return state, &GoalMismatchError{StateGoalID: state.GoalID, ResponseGoalID: resp.GoalID}
	}
	step, ok := state.OpenSteps[resp.StepID]
	if !ok {
		return state, &StepNotFoundError{GoalID: state.GoalID, StepID: resp.StepID}
	}

	next := state
	next.OpenSteps = cloneSteps(state.OpenSteps)
	step.UpdatedAt = ctx.Now

	switch resp.Status {
	case domain.ResponseStatusOK:
		step.Status = domain.StepStatusDone
		next.OpenSteps[resp.StepID] = step
		next.Log = appendEvent(state.Log, domain.Event{
			Kind:   domain.EventStepCompleted,
			StepID: resp.StepID,
			At:     ctx.Now,
		})
		// Approving the open approval step releases the AWAITING_APPROVAL gate.
		if step.Kind == "approval" && next.Status == domain.EngineStatusAwaitingApproval {
			next.Status = domain.EngineStatusRunning
		}
	case domain.ResponseStatusFail:
		step.Status = domain.StepStatusFailed
		next.OpenSteps[resp.StepID] = step
	case domain.ResponseStatusPartial:
		step.Status = domain.StepStatusInProgress
		next.OpenSteps[resp.StepID] = step
	default:
		return state, fmt.Errorf("unknown response status %q", resp.Status)
	}
	return next, nil
}

// FinalizeState marks the goal COMPLETED and appends a WORKFLOW_COMPLETED
// event. Finalizing an already completed state is a no-op.
func FinalizeState(state domain.EngineState, ctx Context) domain.EngineState {
	if state.Status == domain.EngineStatusCompleted {
		return state
	}
	next := state
	next.Status = domain.EngineStatusCompleted
	next.Log = appendEvent(state.Log, domain.Event{
		Kind: domain.EventWorkflowCompleted,
		At:   ctx.Now,
	})
	return next
}

// Fold applies a decision's actions in order and finalizes when the decision
// asks for it. Unknown action types are skipped rather than failing the fold;
// specs are validated at registration and should never emit them.
func Fold(state domain.EngineState, decision domain.Decision, ctx Context) domain.EngineState {
	next := state
	for _, action := range decision.Actions {
		switch action.Type {
		case domain.ActionRequestWork:
			next = ApplyRequestWork(next, action, ctx)
		case domain.ActionAnnotate:
			next = ApplyAnnotate(next, action, ctx)
		case domain.ActionRequestApproval:
			next = ApplyRequestApproval(next, action, ctx)
		}
	}
	if decision.Finalize {
		next = FinalizeState(next, ctx)
	}
	return next
}

// cloneSteps copies the step map so the caller can write without touching
// the original.
func cloneSteps(steps map[string]domain.Step) map[string]domain.Step {
	out := make(map[string]domain.Step, len(steps)+1)
	for id, step := range steps {
		out[id] = step
	}
	return out
}

// cloneArtifacts copies the artifact map.
func cloneArtifacts(artifacts map[string]string) map[string]string {
	out := make(map[string]string, len(artifacts)+1)
	for k, v := range artifacts {
		out[k] = v
	}
	return out
}

// appendEvent returns a new log slice ending with the event. A fresh backing
// array is allocated each time so earlier states never observe the append.
func appendEvent(log []domain.Event, event domain.Event) []domain.Event {
	out := make([]domain.Event, len(log), len(log)+1)
	copy(out, log)
	return append(out, event)
}
