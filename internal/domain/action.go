package domain

// ActionType discriminates the Action tagged union.
type ActionType string

// Action type constants.
const (
	// ActionRequestWork opens a new work step.
	ActionRequestWork ActionType = "REQUEST_WORK"

	// ActionAnnotate writes an artifact key/value.
	ActionAnnotate ActionType = "ANNOTATE"

	// ActionRequestApproval opens an approval step and moves the goal to
	// AWAITING_APPROVAL.
	ActionRequestApproval ActionType = "REQUEST_APPROVAL"
)

// Action is one instruction emitted by a spec decision. Exactly the fields
// relevant to its Type are set.
type Action struct {
	// Type discriminates the union.
	Type ActionType `json:"type" yaml:"type"`

	// WorkKind names the requested work for REQUEST_WORK actions.
	WorkKind string `json:"work_kind,omitempty" yaml:"work_kind,omitempty"`

	// Payload carries work-kind specific instructions.
	Payload map[string]string `json:"payload,omitempty" yaml:"payload,omitempty"`

	// StepID is the explicit step ID, if the spec chose one. When empty the
	// engine generates it deterministically from the injected time+random
	// source so replays produce identical IDs.
	StepID string `json:"step_id,omitempty" yaml:"step_id,omitempty"`

	// Key and Value are the artifact pair for ANNOTATE actions.
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// RequestWork builds a REQUEST_WORK action.
func RequestWork(workKind string, payload map[string]string) Action {
	return Action{Type: ActionRequestWork, WorkKind: workKind, Payload: payload}
}

// Annotate builds an ANNOTATE action.
func Annotate(key, value string) Action {
	return Action{Type: ActionAnnotate, Key: key, Value: value}
}

// RequestApproval builds a REQUEST_APPROVAL action.
func RequestApproval(payload map[string]string) Action {
	return Action{Type: ActionRequestApproval, Payload: payload}
}

// Response is an external agent response delivered to a spec. It must
// reference an existing goal and step; a mismatch is a structural protocol
// violation and fatal.
type Response struct {
	// GoalID must equal the engine state's goal ID.
	GoalID string `json:"goal_id" yaml:"goal_id"`

	// WorkflowID identifies the hosting workflow execution.
	WorkflowID string `json:"workflow_id" yaml:"workflow_id"`

	// StepID must reference an open step.
	StepID string `json:"step_id" yaml:"step_id"`

	// RunID identifies the execution run that produced the response.
	RunID string `json:"run_id" yaml:"run_id"`

	// AgentRole names the agent that produced the response.
	AgentRole string `json:"agent_role" yaml:"agent_role"`

	// Status classifies the response.
	Status ResponseStatus `json:"status" yaml:"status"`

	// Content is the agent's structured output, if any.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// Decision is the output of a spec: an ordered action sequence plus a
// finalize flag. The decision ID is derived deterministically from
// (stepID, runID, now) for replay correctness.
type Decision struct {
	// DecisionID identifies the decision.
	DecisionID string `json:"decision_id" yaml:"decision_id"`

	// BasedOnStepID and BasedOnRunID record the response that triggered
	// the decision.
	BasedOnStepID string `json:"based_on_step_id" yaml:"based_on_step_id"`
	BasedOnRunID  string `json:"based_on_run_id" yaml:"based_on_run_id"`

	// Actions are applied in order.
	Actions []Action `json:"actions" yaml:"actions"`

	// Finalize marks the goal COMPLETED after the actions are applied.
	Finalize bool `json:"finalize" yaml:"finalize"`
}
