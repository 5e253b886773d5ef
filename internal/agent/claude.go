package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// claudeResponse matches the JSON output of `claude --output-format json`.
type claudeResponse struct {
	// Type indicates the response type (e.g., "result").
	Type string `json:"type"`

	// Subtype provides additional type information.
	Subtype string `json:"subtype"`

	// IsError indicates whether the response represents an error.
	IsError bool `json:"is_error"`

	// Result contains the agent's text output.
	Result string `json:"result"`

	// SessionID identifies the agent session for debugging.
	SessionID string `json:"session_id"`

	// Duration is how long the session took in milliseconds.
	Duration int `json:"duration_ms"`

	// NumTurns is how many conversation turns occurred.
	NumTurns int `json:"num_turns"`

	// TotalCost is the estimated cost of the session in USD.
	TotalCost float64 `json:"total_cost_usd"`
}

// parseClaudeResponse parses the JSON output from the claude CLI.
func parseClaudeResponse(data []byte) (*claudeResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response", fabricaerrors.ErrAgentInvocation)
	}

	var resp claudeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse json response: %s",
			fabricaerrors.ErrAgentInvocation, err.Error())
	}
	return &resp, nil
}

// toAgentResult converts a claudeResponse to a domain.AgentResult.
func (r *claudeResponse) toAgentResult(stderr string) *domain.AgentResult {
	result := &domain.AgentResult{
		Success:      !r.IsError,
		Output:       r.Result,
		SessionID:    r.SessionID,
		DurationMs:   r.Duration,
		NumTurns:     r.NumTurns,
		TotalCostUSD: r.TotalCost,
	}
	if r.IsError && stderr != "" {
		result.Error = stderr
	}
	return result
}

// ClaudeCodeRunner implements Runner by invoking the claude CLI in print
// mode. It builds command-line arguments, passes the instruction via stdin,
// and parses the JSON response into an AgentResult.
type ClaudeCodeRunner struct {
	cfg      config.AgentConfig
	executor CommandExecutor
	logger   zerolog.Logger
}

// ClaudeRunnerOption is a functional option for configuring ClaudeCodeRunner.
type ClaudeRunnerOption func(*ClaudeCodeRunner)

// WithClaudeLogger sets the logger for the ClaudeCodeRunner.
func WithClaudeLogger(logger zerolog.Logger) ClaudeRunnerOption {
	return func(r *ClaudeCodeRunner) {
		r.logger = logger
	}
}

// NewClaudeCodeRunner creates a ClaudeCodeRunner with the given
// configuration. If executor is nil, a DefaultExecutor is used for
// production subprocess execution.
func NewClaudeCodeRunner(cfg config.AgentConfig, executor CommandExecutor, opts ...ClaudeRunnerOption) *ClaudeCodeRunner {
	if executor == nil {
		executor = &DefaultExecutor{}
	}
	r := &ClaudeCodeRunner{
		cfg:      cfg,
		executor: executor,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes an agent request with the configured timeout.
func (r *ClaudeCodeRunner) Run(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResult, error) {
	if err := r.validateWorkingDir(req.WorkingDir); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := r.buildCommand(ctx, req)
	cmd.Stdin = strings.NewReader(req.Instruction)

	// Invocation ID correlates the debug and failure logs of one agent run.
	logger := r.logger.With().Str("invocation_id", "agent-"+uuid.New().String()[:8]).Logger()
	logger.Debug().
		Str("working_dir", req.WorkingDir).
		Str("model", r.modelFor(req)).
		Msg("invoking agent")

	stdout, stderr, err := r.executor.Execute(ctx, cmd)
	if err != nil {
		return r.handleExecutionError(ctx, logger, err, stdout, stderr)
	}

	resp, parseErr := parseClaudeResponse(stdout)
	if parseErr != nil {
		return nil, parseErr
	}
	return resp.toAgentResult(string(stderr)), nil
}

// validateWorkingDir verifies the workspace exists before spawning the agent.
func (r *ClaudeCodeRunner) validateWorkingDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: working directory %q: %s",
			fabricaerrors.ErrAgentInvocation, dir, err.Error())
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: working directory %q is not a directory",
			fabricaerrors.ErrAgentInvocation, dir)
	}
	return nil
}

// handleExecutionError processes errors from command execution. Rate-limit
// signals in stderr are surfaced as typed RateLimitError values so callers
// can honor provider-suggested delays.
func (r *ClaudeCodeRunner) handleExecutionError(ctx context.Context, logger zerolog.Logger, execErr error, stdout, stderr []byte) (*domain.AgentResult, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrAgentInvocation, ctx.Err().Error())
	}

	// The CLI sometimes exits non-zero while still writing a structured
	// error response; prefer that over the raw exec error.
	if len(stdout) > 0 {
		if resp, parseErr := parseClaudeResponse(stdout); parseErr == nil && resp.IsError {
			result := resp.toAgentResult(string(stderr))
			result.Error = fmt.Sprintf("%s: %s", execErr.Error(), string(stderr))
			return result, nil
		}
	}

	combined := execErr.Error() + " " + string(stderr)
	if rl := ClassifyRateLimit(combined); rl != nil {
		return nil, fmt.Errorf("%w: %w", fabricaerrors.ErrAgentInvocation, rl)
	}

	logger.Error().
		Err(execErr).
		Str("stderr", string(stderr)).
		Msg("agent invocation failed")
	return nil, fmt.Errorf("%w: %s: %s",
		fabricaerrors.ErrAgentInvocation, execErr.Error(), string(stderr))
}

// modelFor resolves the model for a request: request > config.
func (r *ClaudeCodeRunner) modelFor(req *domain.AgentRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return r.cfg.Model
}

// buildCommand constructs the claude CLI command with appropriate flags.
func (r *ClaudeCodeRunner) buildCommand(ctx context.Context, req *domain.AgentRequest) *exec.Cmd {
	args := []string{
		"-p", // Print mode (non-interactive)
		"--output-format", "json",
	}

	if model := r.modelFor(req); model != "" {
		args = append(args, "--model", model)
	}
	if r.cfg.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", fmt.Sprintf("%.2f", r.cfg.MaxBudgetUSD))
	}

	command := r.cfg.Command
	if command == "" {
		command = "claude"
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	return cmd
}

// Compile-time check that ClaudeCodeRunner implements Runner.
var _ Runner = (*ClaudeCodeRunner)(nil)
