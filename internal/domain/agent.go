package domain

import "time"

// AgentRequest describes one CLI agent invocation.
type AgentRequest struct {
	// Role selects which registered runner handles the request.
	Role string `json:"role"`

	// Instruction is the prompt passed to the agent.
	Instruction string `json:"instruction"`

	// WorkingDir is the directory the agent operates in. Each build job owns
	// an exclusive workspace, so concurrent invocations never share a path.
	WorkingDir string `json:"working_dir"`

	// Model optionally overrides the configured model.
	Model string `json:"model,omitempty"`

	// Timeout bounds the invocation. Zero means the configured default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// AgentResult is the structured outcome of a CLI agent invocation.
type AgentResult struct {
	// Success reports whether the agent completed without error.
	Success bool `json:"success"`

	// Output is the agent's text or structured output.
	Output string `json:"output"`

	// Error carries stderr or the agent's error text on failure.
	Error string `json:"error,omitempty"`

	// SessionID identifies the agent session for debugging.
	SessionID string `json:"session_id,omitempty"`

	// DurationMs is how long the agent session took.
	DurationMs int `json:"duration_ms,omitempty"`

	// NumTurns is how many conversation turns occurred.
	NumTurns int `json:"num_turns,omitempty"`

	// TotalCostUSD is the estimated resource cost of the session.
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// Worktree is an isolated, branch-scoped working copy used for safe parallel
// mutation during one package build's sub-task fan-out. It is owned
// exclusively by the worktree manager and destroyed after merge or on
// failure cleanup.
type Worktree struct {
	// Path is the absolute path to the working copy.
	Path string `json:"path" yaml:"path"`

	// BranchName is the branch the worktree is checked out on.
	BranchName string `json:"branch_name" yaml:"branch_name"`

	// TaskName is the sub-task the worktree was created for.
	TaskName string `json:"task_name" yaml:"task_name"`
}
