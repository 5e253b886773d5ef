// Package domain provides shared domain types for the Fabrica build factory.
package domain

import (
	"time"

	"github.com/fabrica-build/fabrica/internal/constants"
)

// Re-export status types from the constants package so consumers can import
// domain types and status types together.
type (
	// EngineStatus represents the lifecycle state of one goal.
	EngineStatus = constants.EngineStatus

	// StepStatus represents the state of a single requested unit of work.
	StepStatus = constants.StepStatus

	// BuildStatus represents the state of a package in the build queue.
	BuildStatus = constants.BuildStatus

	// ResponseStatus classifies an external agent response.
	ResponseStatus = constants.ResponseStatus

	// EventKind identifies an entry in the engine log.
	EventKind = constants.EventKind
)

// Re-export status constants for convenience.
const (
	EngineStatusRunning          = constants.EngineStatusRunning
	EngineStatusAwaitingApproval = constants.EngineStatusAwaitingApproval
	EngineStatusCompleted        = constants.EngineStatusCompleted

	StepStatusWaiting    = constants.StepStatusWaiting
	StepStatusInProgress = constants.StepStatusInProgress
	StepStatusDone       = constants.StepStatusDone
	StepStatusFailed     = constants.StepStatusFailed

	BuildStatusPending   = constants.BuildStatusPending
	BuildStatusBuilding  = constants.BuildStatusBuilding
	BuildStatusPublished = constants.BuildStatusPublished
	BuildStatusFailed    = constants.BuildStatusFailed

	ResponseStatusOK      = constants.ResponseStatusOK
	ResponseStatusFail    = constants.ResponseStatusFail
	ResponseStatusPartial = constants.ResponseStatusPartial

	EventWorkRequested     = constants.EventWorkRequested
	EventAnnotated         = constants.EventAnnotated
	EventApprovalRequested = constants.EventApprovalRequested
	EventStepCompleted     = constants.EventStepCompleted
	EventWorkflowCompleted = constants.EventWorkflowCompleted
)

// Step is a single outstanding requested unit of work or approval.
// Steps are created WAITING by a work/approval request and transition only
// via a matching agent response.
type Step struct {
	// Kind is the work kind requested ("create_tasks", "approval", ...).
	Kind string `json:"kind" yaml:"kind"`

	// Status is the current step status.
	Status StepStatus `json:"status" yaml:"status"`

	// RequestedAt is when the step was opened.
	RequestedAt time.Time `json:"requested_at" yaml:"requested_at"`

	// UpdatedAt is when the step last changed (refreshed on PARTIAL).
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// Payload carries work-kind specific instructions, if any.
	Payload map[string]string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Event is one entry in the engine state's ordered, append-only log.
type Event struct {
	// Kind identifies the event.
	Kind EventKind `json:"kind" yaml:"kind"`

	// StepID references the step the event concerns, when applicable.
	StepID string `json:"step_id,omitempty" yaml:"step_id,omitempty"`

	// Key is the artifact key for ANNOTATED events.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// At is when the event was recorded.
	At time.Time `json:"at" yaml:"at"`
}

// EngineState is the full state of one goal. It is treated as an immutable
// value: the engine's apply operations return updated copies and never
// mutate their input.
type EngineState struct {
	// GoalID identifies the goal (one package build, one automation session).
	GoalID string `json:"goal_id" yaml:"goal_id"`

	// Status is the goal lifecycle state. COMPLETED only via finalize.
	Status EngineStatus `json:"status" yaml:"status"`

	// OpenSteps maps step ID to step. Step IDs are unique and never reused.
	OpenSteps map[string]Step `json:"open_steps" yaml:"open_steps"`

	// Artifacts is the key/value scratchpad specs read to decide next actions.
	// Writes are last-write-wins.
	Artifacts map[string]string `json:"artifacts" yaml:"artifacts"`

	// Log is the ordered event sequence.
	Log []Event `json:"log" yaml:"log"`
}

// NewEngineState returns the initial RUNNING state for a goal.
func NewEngineState(goalID string) EngineState {
	return EngineState{
		GoalID:    goalID,
		Status:    EngineStatusRunning,
		OpenSteps: map[string]Step{},
		Artifacts: map[string]string{},
	}
}

// OpenStepIDs returns the IDs of steps still awaiting a response
// (WAITING or IN_PROGRESS), in no particular order.
func (s EngineState) OpenStepIDs() []string {
	ids := make([]string, 0, len(s.OpenSteps))
	for id, step := range s.OpenSteps {
		if step.Status == StepStatusWaiting || step.Status == StepStatusInProgress {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasArtifact reports whether an artifact key is present.
func (s EngineState) HasArtifact(key string) bool {
	_, ok := s.Artifacts[key]
	return ok
}
