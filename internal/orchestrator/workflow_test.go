package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
	"github.com/fabrica-build/fabrica/internal/spec"
	"github.com/fabrica-build/fabrica/internal/worktree"
)

func testWorkflows(t *testing.T, opts ...spec.PackageBuildOption) *Workflows {
	t.Helper()

	specs := spec.NewRegistry()
	require.NoError(t, specs.Register(spec.NewPackageBuildSpec(zerolog.Nop(), opts...)))

	cfg := config.DefaultConfig()
	cfg.Agent.Timeout = time.Minute
	cfg.Git.Timeout = time.Minute
	return NewWorkflows(specs, cfg)
}

// mockCommonActivities stubs the checkpoint and workspace plumbing every
// build test needs.
func mockCommonActivities(env *testsuite.TestWorkflowEnvironment) {
	var acts *Activities
	env.OnActivity(acts.LoadCheckpoint, mock.Anything, mock.Anything).Return(nil, nil)
	env.OnActivity(acts.SaveCheckpoint, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.EnsureWorkspace, mock.Anything, mock.Anything).Return("/tmp/fabrica-ws", nil)
	env.OnActivity(acts.RecordOutcome, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.ClearCheckpoints, mock.Anything, mock.Anything).Return(nil)
}

func TestPackageBuildWorkflow_PublishesThroughFullProtocol(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	var agentKinds []string
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in RunAgentInput) (RunAgentOutput, error) {
			agentKinds = append(agentKinds, in.WorkKind)
			if in.WorkKind == spec.WorkCreateTasks {
				return RunAgentOutput{Status: domain.ResponseStatusOK, Content: "- add parser\n- add cli"}, nil
			}
			return RunAgentOutput{Status: domain.ResponseStatusOK, Content: "done"}, nil
		})
	env.OnActivity(acts.FanOutTasks, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in FanOutInput) (FanOutOutput, error) {
			require.Equal(t, []string{"add parser", "add cli"}, in.Tasks)
			return FanOutOutput{Merged: []string{"add parser", "add cli"}}, nil
		})
	env.OnActivity(acts.PublishPackage, mock.Anything, mock.Anything).Return("1.0.0", nil)

	var reviewed []string
	env.OnActivity(acts.SubmitForReview, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in SubmitReviewInput) (string, error) {
			reviewed = append(reviewed, in.PackageName)
			return "https://github.com/acme/left-pad/pull/7", nil
		})

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalApproval, ApprovalSignal{Approved: true, Note: "ship it"})
	}, time.Minute)

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "left-pad", Description: "pads strings"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.True(t, outcome.Published)
	require.Equal(t, "left-pad", outcome.PackageName)
	require.Empty(t, outcome.FailureReason)
	require.Equal(t, []string{
		spec.WorkGatherRequirements,
		spec.WorkCreateTasks,
		spec.WorkValidateBuild,
	}, agentKinds)
	// The work was staged for review before the gate released.
	require.Equal(t, []string{"left-pad"}, reviewed)
}

func TestPackageBuildWorkflow_SkipsApprovalWhenGateDisabled(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t, spec.WithoutApprovalGate())
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		RunAgentOutput{Status: domain.ResponseStatusOK, Content: "done"}, nil)
	env.OnActivity(acts.FanOutTasks, mock.Anything, mock.Anything).Return(
		FanOutOutput{Merged: []string{"implement package"}}, nil)
	env.OnActivity(acts.PublishPackage, mock.Anything, mock.Anything).Return("0.1.0", nil)

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "tinylib"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.True(t, outcome.Published)
}

func TestPackageBuildWorkflow_FailuresFinalizeAtCeiling(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t, spec.WithRetryCeiling(2))
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	calls := 0
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in RunAgentInput) (RunAgentOutput, error) {
			calls++
			return RunAgentOutput{Status: domain.ResponseStatusFail, Content: "compile error"}, nil
		})

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "brokenlib"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.False(t, outcome.Published)
	require.Contains(t, outcome.FailureReason, spec.WorkGatherRequirements)
	require.Contains(t, outcome.FailureReason, "compile error")
	require.Equal(t, 2, calls)
}

func TestPackageBuildWorkflow_RateLimitsDoNotConsumeRetryCeiling(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t, spec.WithRetryCeiling(1), spec.WithoutApprovalGate())
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	rateLimited := 0
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in RunAgentInput) (RunAgentOutput, error) {
			if in.WorkKind == spec.WorkGatherRequirements && rateLimited < 3 {
				rateLimited++
				return RunAgentOutput{}, temporal.NewApplicationErrorWithOptions(
					"rate limit exceeded, retry after 31s", rateLimitedErrType,
					temporal.ApplicationErrorOptions{NextRetryDelay: 36 * time.Second})
			}
			if in.WorkKind == spec.WorkCreateTasks {
				return RunAgentOutput{Status: domain.ResponseStatusOK, Content: "- implement"}, nil
			}
			return RunAgentOutput{Status: domain.ResponseStatusOK, Content: "done"}, nil
		})
	env.OnActivity(acts.FanOutTasks, mock.Anything, mock.Anything).Return(
		FanOutOutput{Merged: []string{"implement"}}, nil)
	env.OnActivity(acts.PublishPackage, mock.Anything, mock.Anything).Return("1.0.0", nil)

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "throttled"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// A retry ceiling of one would have finalized the build if the three
	// rate-limited attempts were visible to the spec layer.
	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.True(t, outcome.Published)
	require.Equal(t, 3, rateLimited)
}

func TestPackageBuildWorkflow_MergeConflictsFailTheStep(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t, spec.WithRetryCeiling(1), spec.WithoutApprovalGate())
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		RunAgentOutput{Status: domain.ResponseStatusOK, Content: "done"}, nil)
	env.OnActivity(acts.FanOutTasks, mock.Anything, mock.Anything).Return(
		FanOutOutput{
			Merged: []string{"task-a"},
			Conflicts: []worktree.Conflict{
				{TaskName: "task-b", Branch: "fabrica/main/task-b", Detail: "both modified index.js"},
			},
		}, nil)

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "clashlib"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.False(t, outcome.Published)
	require.Contains(t, outcome.FailureReason, "task-b")
}

func TestPackageBuildWorkflow_RejectedApprovalRetries(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t, spec.WithRetryCeiling(1))
	env.RegisterWorkflow(w.PackageBuildWorkflow)
	mockCommonActivities(env)

	var acts *Activities
	env.OnActivity(acts.RunAgent, mock.Anything, mock.Anything).Return(
		RunAgentOutput{Status: domain.ResponseStatusOK, Content: "done"}, nil)
	env.OnActivity(acts.FanOutTasks, mock.Anything, mock.Anything).Return(
		FanOutOutput{Merged: []string{"implement package"}}, nil)
	env.OnActivity(acts.SubmitForReview, mock.Anything, mock.Anything).Return("", nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalApproval, ApprovalSignal{Approved: false, Note: "needs docs"})
	}, time.Minute)

	env.ExecuteWorkflow(w.PackageBuildWorkflow, domain.Package{Name: "undocumented"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome domain.BuildOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	require.False(t, outcome.Published)
	require.Contains(t, outcome.FailureReason, "needs docs")
}

func TestContinuousBuildWorkflow_BuildsDependentsAfterDependencies(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.ContinuousBuildWorkflow)
	env.RegisterWorkflow(w.PackageBuildWorkflow)

	var acts *Activities
	env.OnActivity(acts.PackageExists, mock.Anything, mock.Anything).Return(true, nil)

	var order []string
	env.OnWorkflow(w.PackageBuildWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
			order = append(order, pkg.Name)
			return domain.BuildOutcome{PackageName: pkg.Name, Published: true}, nil
		})

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEmergencyStop, nil)
	}, time.Hour)

	env.ExecuteWorkflow(w.ContinuousBuildWorkflow, OrchestratorInput{
		Packages: []domain.Package{
			{Name: "webapp", Category: "app", Dependencies: []string{"corelib"}},
			{Name: "corelib", Category: "core"},
		},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, []string{"corelib", "webapp"}, order)
}

func TestContinuousBuildWorkflow_EnqueueSignalAdmitsPackage(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.ContinuousBuildWorkflow)
	env.RegisterWorkflow(w.PackageBuildWorkflow)

	var acts *Activities
	env.OnActivity(acts.PackageExists, mock.Anything, mock.Anything).Return(true, nil)

	var built []string
	env.OnWorkflow(w.PackageBuildWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
			built = append(built, pkg.Name)
			return domain.BuildOutcome{PackageName: pkg.Name, Published: true}, nil
		})

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEnqueue, domain.Package{Name: "latecomer"})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEmergencyStop, nil)
	}, time.Hour)

	env.ExecuteWorkflow(w.ContinuousBuildWorkflow, OrchestratorInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, []string{"latecomer"}, built)
}

func TestContinuousBuildWorkflow_QueueStatusQuery(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.ContinuousBuildWorkflow)
	env.RegisterWorkflow(w.PackageBuildWorkflow)

	env.OnWorkflow(w.PackageBuildWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
			return domain.BuildOutcome{PackageName: pkg.Name, Published: true}, nil
		})

	var snap QueueSnapshot
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(constants.QueryQueueStatus)
		require.NoError(t, err)
		require.NoError(t, val.Get(&snap))
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEmergencyStop, nil)
	}, time.Hour)

	env.ExecuteWorkflow(w.ContinuousBuildWorkflow, OrchestratorInput{
		Packages: []domain.Package{
			{Name: "blocked", Dependencies: []string{"missing-dep"}},
		},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Len(t, snap.Packages, 1)
	require.Equal(t, domain.BuildStatusPending, snap.Packages[0].Status)
	require.False(t, snap.Stopping)
}

func TestContinuousBuildWorkflow_UnverifiedPublishMarksFailed(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.ContinuousBuildWorkflow)
	env.RegisterWorkflow(w.PackageBuildWorkflow)

	var acts *Activities
	env.OnActivity(acts.PackageExists, mock.Anything, mock.Anything).Return(false, nil)
	env.OnWorkflow(w.PackageBuildWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
			return domain.BuildOutcome{PackageName: pkg.Name, Published: true}, nil
		})

	var snap QueueSnapshot
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(constants.QueryQueueStatus)
		require.NoError(t, err)
		require.NoError(t, val.Get(&snap))
	}, 30*time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEmergencyStop, nil)
	}, time.Hour)

	env.ExecuteWorkflow(w.ContinuousBuildWorkflow, OrchestratorInput{
		Packages: []domain.Package{{Name: "ghostlib"}},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Len(t, snap.Packages, 1)
	require.Equal(t, domain.BuildStatusFailed, snap.Packages[0].Status)
	require.Contains(t, snap.Packages[0].FailureReason, "not visible in registry")
}

func TestContinuousBuildWorkflow_FailedBuildRecordsReason(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	w := testWorkflows(t)
	env.RegisterWorkflow(w.ContinuousBuildWorkflow)
	env.RegisterWorkflow(w.PackageBuildWorkflow)

	env.OnWorkflow(w.PackageBuildWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
			return domain.BuildOutcome{
				PackageName:   pkg.Name,
				FailureReason: "validate_build failed after 3 attempts: flaky tests",
			}, nil
		})

	var snap QueueSnapshot
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(constants.QueryQueueStatus)
		require.NoError(t, err)
		require.NoError(t, val.Get(&snap))
	}, 30*time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.SignalEmergencyStop, nil)
	}, time.Hour)

	env.ExecuteWorkflow(w.ContinuousBuildWorkflow, OrchestratorInput{
		Packages: []domain.Package{{Name: "flakylib"}},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Len(t, snap.Packages, 1)
	require.Equal(t, domain.BuildStatusFailed, snap.Packages[0].Status)
	require.True(t, strings.Contains(snap.Packages[0].FailureReason, "flaky tests"))
}
