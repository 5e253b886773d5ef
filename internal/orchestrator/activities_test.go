package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/fabrica-build/fabrica/internal/agent"
	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
	"github.com/fabrica-build/fabrica/internal/git"
	"github.com/fabrica-build/fabrica/internal/testutil"
)

// stubRunner returns a canned result or error for every request and records
// the last instruction it saw.
type stubRunner struct {
	result      *domain.AgentResult
	err         error
	instruction string
}

func (s *stubRunner) Run(_ context.Context, req *domain.AgentRequest) (*domain.AgentResult, error) {
	s.instruction = req.Instruction
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testActivities(runner agent.Runner) *Activities {
	return &Activities{
		runner: runner,
		cfg:    config.DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func TestRunAgent_SuccessRendersPrompt(t *testing.T) {
	runner := &stubRunner{result: &domain.AgentResult{Success: true, Output: "requirements listed"}}
	a := testActivities(runner)

	out, err := a.RunAgent(context.Background(), RunAgentInput{
		PackageName: "left-pad",
		Description: "pads strings on the left",
		WorkKind:    "gather_requirements",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ResponseStatusOK, out.Status)
	require.Equal(t, "requirements listed", out.Content)
	require.Contains(t, runner.instruction, "Package: left-pad")
	require.Contains(t, runner.instruction, "Step: gather_requirements")
	require.Contains(t, runner.instruction, "pads strings on the left")
}

func TestRunAgent_AgentFailureBecomesFailOutput(t *testing.T) {
	runner := &stubRunner{result: &domain.AgentResult{Success: false, Error: "tests failing"}}
	a := testActivities(runner)

	out, err := a.RunAgent(context.Background(), RunAgentInput{
		PackageName: "left-pad",
		WorkKind:    "validate_build",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ResponseStatusFail, out.Status)
	require.Equal(t, "tests failing", out.Content)
}

func TestRunAgent_RateLimitBecomesTypedApplicationError(t *testing.T) {
	cause := fmt.Errorf("%w: %w", fabricaerrors.ErrAgentInvocation,
		&agent.RateLimitError{RetryAfter: 30 * time.Second, Message: "rate limit exceeded"})
	runner := &stubRunner{err: cause}
	a := testActivities(runner)

	_, err := a.RunAgent(context.Background(), RunAgentInput{
		PackageName: "left-pad",
		WorkKind:    "gather_requirements",
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, rateLimitedErrType, appErr.Type())
	require.Equal(t, 35*time.Second, appErr.NextRetryDelay())
}

func TestRunAgent_OrdinaryErrorIsNonRetryable(t *testing.T) {
	runner := &stubRunner{err: testutil.ErrMockAgentFailure}
	a := testActivities(runner)

	_, err := a.RunAgent(context.Background(), RunAgentInput{
		PackageName: "left-pad",
		WorkKind:    "gather_requirements",
	})
	require.ErrorIs(t, err, testutil.ErrMockAgentFailure)

	// Ordinary invocation failures must not burn the unbounded rate-limit
	// budget; they go straight to the spec's retry ceiling.
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, agentFailedErrType, appErr.Type())
	require.True(t, appErr.NonRetryable())
}

func TestSubmitForReview_SkipsWorkspaceWithoutRemote(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()
	dir := t.TempDir()
	_, err := git.RunCommand(ctx, dir, "init", "-b", "main")
	require.NoError(t, err)

	a := testActivities(&stubRunner{})
	url, err := a.SubmitForReview(ctx, SubmitReviewInput{PackageName: "left-pad", Workspace: dir})
	require.NoError(t, err)
	require.Empty(t, url)
}
