// Package agent provides CLI agent execution for Fabrica.
//
// This package defines the Runner interface for invoking coding agents and
// provides the ClaudeCodeRunner implementation for the claude CLI. Runners
// are the only collaborators allowed to mutate a build workspace; everything
// above them deals in structured requests and results.
//
// IMPORTANT: This package may import internal/constants, internal/errors,
// internal/config, and internal/domain. It MUST NOT import internal/engine,
// internal/spec, or internal/orchestrator.
package agent

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/fabrica-build/fabrica/internal/domain"
)

// Runner executes one agent request and returns a structured result.
//
// Context should be used to control timeouts and cancellation. Returned
// errors are wrapped with errors.ErrAgentInvocation on failure.
type Runner interface {
	Run(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResult, error)
}

// CommandExecutor abstracts command execution for testing. The production
// implementation runs subprocesses; tests provide a mock.
//
// The ctx parameter is included for interface consistency even though the
// production implementation embeds context via exec.CommandContext. Mock
// implementations may use it to simulate cancellation.
type CommandExecutor interface {
	// Execute runs the command and returns stdout, stderr, and any error.
	Execute(ctx context.Context, cmd *exec.Cmd) (stdout, stderr []byte, err error)
}

// DefaultExecutor is the production implementation of CommandExecutor.
type DefaultExecutor struct{}

// Execute runs the command and captures its output.
func (e *DefaultExecutor) Execute(_ context.Context, cmd *exec.Cmd) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
