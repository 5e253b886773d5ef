package engine

import "fmt"

// GoalMismatchError reports a response addressed to a different goal than the
// state it was applied to. This is a protocol violation: fatal, never retried.
type GoalMismatchError struct {
	StateGoalID    string
	ResponseGoalID string
}

// Error implements the error interface.
func (e *GoalMismatchError) Error() string {
	return fmt.Sprintf("goal mismatch: state has goal %q, response references %q",
		e.StateGoalID, e.ResponseGoalID)
}

// StepNotFoundError reports a response referencing a step ID absent from the
// state's open steps. This is a protocol violation: fatal, never retried.
type StepNotFoundError struct {
	GoalID string
	StepID string
}

// Error implements the error interface.
func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %q not found in goal %q", e.StepID, e.GoalID)
}
