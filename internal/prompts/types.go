package prompts

// PromptID identifies a prompt template.
type PromptID string

// Prompt identifiers for the build pipeline.
const (
	// WorkStep is the general instruction for one work step: gathering
	// requirements, creating tasks, validating.
	WorkStep PromptID = "work_step"

	// TaskImplementation instructs an agent working inside one isolated
	// worktree to implement a single task.
	TaskImplementation PromptID = "task_implementation"
)

// WorkStepData renders the WorkStep prompt.
type WorkStepData struct {
	// Package is the package being built.
	Package string

	// WorkKind names the requested work.
	WorkKind string

	// Description seeds the first step of a fresh package.
	Description string

	// PreviousError is the prior attempt's failure, for retries.
	PreviousError string

	// Tasks is the task list artifact, when the step consumes one.
	Tasks string
}

// TaskImplementationData renders the TaskImplementation prompt.
type TaskImplementationData struct {
	// Package is the package being built.
	Package string

	// Task is the single task to implement.
	Task string
}
