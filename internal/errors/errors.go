// Package errors provides centralized error handling for Fabrica.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrAgentInvocation indicates that a CLI agent failed to execute
	// or returned a non-zero exit code.
	ErrAgentInvocation = errors.New("agent invocation failed")

	// ErrGitOperation indicates that a git command (worktree, commit, merge, etc.)
	// failed during execution.
	ErrGitOperation = errors.New("git operation failed")

	// ErrMergeConflict indicates that merging a worktree branch back into the
	// main workspace produced conflicts that require caller intervention.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrRegistryOperation indicates that a package-registry operation
	// (existence check, publish) failed.
	ErrRegistryOperation = errors.New("registry operation failed")

	// ErrDuplicateSpec indicates an attempt to register a spec under a name
	// that is already taken. Registration never silently overwrites.
	ErrDuplicateSpec = errors.New("spec already registered")

	// ErrSpecNotFound indicates that no spec is registered under the
	// requested name or work kind.
	ErrSpecNotFound = errors.New("spec not found")

	// ErrSpecInvalid indicates that a spec failed its Validate() contract
	// during registration.
	ErrSpecInvalid = errors.New("spec validation failed")

	// ErrDuplicateRunner indicates an attempt to register an agent runner
	// under a name that is already taken.
	ErrDuplicateRunner = errors.New("agent runner already registered")

	// ErrRunnerNotFound indicates that no agent runner is registered under
	// the requested name.
	ErrRunnerNotFound = errors.New("agent runner not found")

	// ErrDuplicatePackage indicates an attempt to enqueue a package name
	// that is already tracked by the build queue.
	ErrDuplicatePackage = errors.New("package already queued")

	// ErrPackageNotFound indicates that the build queue has no entry for
	// the requested package name.
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidTransition indicates a build status transition that the
	// queue's state machine does not allow.
	ErrInvalidTransition = errors.New("invalid build status transition")

	// ErrWorktreeExists indicates that a worktree path is already occupied.
	ErrWorktreeExists = errors.New("worktree already exists")

	// ErrNotGitRepo indicates that the path is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrCheckpointCorrupt indicates that a persisted checkpoint file could
	// not be decoded.
	ErrCheckpointCorrupt = errors.New("checkpoint file corrupt")

	// ErrCheckpointNotFound indicates that no checkpoint exists for the
	// requested package.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidAgent indicates an invalid agent configuration value.
	ErrConfigInvalidAgent = errors.New("invalid agent configuration")

	// ErrConfigInvalidOrchestrator indicates an invalid orchestrator
	// configuration value.
	ErrConfigInvalidOrchestrator = errors.New("invalid orchestrator configuration")

	// ErrConfigInvalidRetry indicates an invalid retry/backoff configuration value.
	ErrConfigInvalidRetry = errors.New("invalid retry configuration")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidOutputFormat indicates an unknown --output flag value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrCommandNotConfigured indicates that a mock command was not configured in tests.
	ErrCommandNotConfigured = errors.New("command not configured")
)
