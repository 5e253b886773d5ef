package constants

// EngineStatus represents the lifecycle state of one goal's engine state.
// Status values use SCREAMING_SNAKE for wire compatibility with persisted
// checkpoints and the status query payload.
type EngineStatus string

// Engine status constants. COMPLETED is reached only via finalize.
const (
	// EngineStatusRunning indicates the goal is actively being worked.
	EngineStatusRunning EngineStatus = "RUNNING"

	// EngineStatusAwaitingApproval indicates an approval step is open and
	// the goal cannot progress until a matching response arrives.
	EngineStatusAwaitingApproval EngineStatus = "AWAITING_APPROVAL"

	// EngineStatusCompleted indicates the goal was finalized. Terminal.
	EngineStatusCompleted EngineStatus = "COMPLETED"
)

// StepStatus represents the state of a single requested unit of work.
type StepStatus string

// Step status constants. Steps are created WAITING and transition only via
// a matching agent response.
const (
	// StepStatusWaiting indicates the step was requested but no response
	// has arrived yet.
	StepStatusWaiting StepStatus = "WAITING"

	// StepStatusInProgress indicates a PARTIAL response arrived and more
	// responses are expected for this step.
	StepStatusInProgress StepStatus = "IN_PROGRESS"

	// StepStatusDone indicates an OK response closed the step.
	StepStatusDone StepStatus = "DONE"

	// StepStatusFailed indicates a FAIL response closed the step.
	StepStatusFailed StepStatus = "FAILED"
)

// BuildStatus represents the state of a package in the build queue.
// Mutated exclusively by the orchestrator.
type BuildStatus string

// Build status constants following pending → building → published|failed.
const (
	// BuildStatusPending indicates the package is queued and waiting for
	// its dependencies to publish.
	BuildStatusPending BuildStatus = "pending"

	// BuildStatusBuilding indicates a build job is currently running for
	// the package.
	BuildStatusBuilding BuildStatus = "building"

	// BuildStatusPublished indicates the package built and was verified
	// present in the package registry. Terminal.
	BuildStatusPublished BuildStatus = "published"

	// BuildStatusFailed indicates the build job reached a terminal failure.
	// Terminal.
	BuildStatusFailed BuildStatus = "failed"
)

// ResponseStatus classifies an external agent response.
type ResponseStatus string

// Response status constants.
const (
	// ResponseStatusOK indicates the requested work completed successfully.
	ResponseStatusOK ResponseStatus = "OK"

	// ResponseStatusFail indicates the requested work failed.
	ResponseStatusFail ResponseStatus = "FAIL"

	// ResponseStatusPartial indicates an intermediate response; the step
	// stays open.
	ResponseStatusPartial ResponseStatus = "PARTIAL"
)

// EventKind identifies an entry in the engine state's append-only log.
type EventKind string

// Event kind constants.
const (
	// EventWorkRequested records a new work step being opened.
	EventWorkRequested EventKind = "WORK_REQUESTED"

	// EventAnnotated records an artifact write.
	EventAnnotated EventKind = "ANNOTATED"

	// EventApprovalRequested records a new approval step being opened.
	EventApprovalRequested EventKind = "APPROVAL_REQUESTED"

	// EventStepCompleted records an OK response closing a step.
	EventStepCompleted EventKind = "STEP_COMPLETED"

	// EventWorkflowCompleted records the goal being finalized.
	EventWorkflowCompleted EventKind = "WORKFLOW_COMPLETED"
)
