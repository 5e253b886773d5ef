// Package testutil provides shared testing utilities for Fabrica.
//
// This package contains mock errors used to simulate failure scenarios in
// tests. It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
var (
	// ErrMockAgentFailure simulates a CLI agent crash.
	ErrMockAgentFailure = errors.New("agent crashed")

	// ErrMockGitFailure simulates a failed git command.
	ErrMockGitFailure = errors.New("git command failed")

	// ErrMockRegistryUnavailable simulates an unreachable package registry.
	ErrMockRegistryUnavailable = errors.New("registry unavailable")

	// ErrMockTaskFailure simulates a worktree task that did not complete.
	ErrMockTaskFailure = errors.New("task failed")
)
