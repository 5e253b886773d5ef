package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/fabrica-build/fabrica/internal/agent"
	"github.com/fabrica-build/fabrica/internal/checkpoint"
	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
	"github.com/fabrica-build/fabrica/internal/git"
	"github.com/fabrica-build/fabrica/internal/pkgregistry"
	"github.com/fabrica-build/fabrica/internal/prompts"
	"github.com/fabrica-build/fabrica/internal/worktree"
)

// rateLimitedErrType is the application error type carrying a
// provider-suggested retry delay. The workflow's retry policy reschedules
// these without involving the spec layer.
const rateLimitedErrType = "RATE_LIMITED"

// agentFailedErrType marks non-retryable agent invocation failures. The
// agent activities run with an unbounded Temporal attempt budget so rate
// limits can reschedule indefinitely; every other failure must therefore
// surface immediately and let the spec's retry ceiling govern it.
const agentFailedErrType = "AGENT_FAILED"

// Activities holds the external collaborators workflow code suspends on.
// Every method is a Temporal activity: at-least-once, idempotent where the
// underlying operation allows it.
type Activities struct {
	runner      agent.Runner
	registry    pkgregistry.Client
	checkpoints *checkpoint.Store
	audit       *checkpoint.AuditLog
	cfg         *config.Config
	logger      zerolog.Logger
}

// NewActivities wires the activity set from its collaborators.
func NewActivities(runner agent.Runner, registry pkgregistry.Client, store *checkpoint.Store, audit *checkpoint.AuditLog, cfg *config.Config, logger zerolog.Logger) *Activities {
	return &Activities{
		runner:      runner,
		registry:    registry,
		checkpoints: store,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
	}
}

// RunAgentInput describes one agent step execution.
type RunAgentInput struct {
	PackageName string            `json:"package_name"`
	Description string            `json:"description,omitempty"`
	WorkKind    string            `json:"work_kind"`
	StepID      string            `json:"step_id"`
	Workspace   string            `json:"workspace"`
	Payload     map[string]string `json:"payload,omitempty"`
}

// RunAgentOutput is the structured agent outcome the workflow folds into a
// response.
type RunAgentOutput struct {
	Status  domain.ResponseStatus `json:"status"`
	Content string                `json:"content,omitempty"`
}

// RunAgent executes one work step via the CLI agent. Agent-reported failures
// come back as a FAIL output, not an activity error, so the spec layer can
// apply its retry policy. Rate limits surface as RATE_LIMITED application
// errors carrying the provider-suggested delay.
func (a *Activities) RunAgent(ctx context.Context, in RunAgentInput) (RunAgentOutput, error) {
	instruction, err := buildInstruction(in)
	if err != nil {
		return RunAgentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), agentFailedErrType, err)
	}

	result, err := a.runner.Run(ctx, &domain.AgentRequest{
		Role:        "builder",
		Instruction: instruction,
		WorkingDir:  in.Workspace,
	})
	if err != nil {
		if agent.IsRateLimited(err) {
			return RunAgentOutput{}, temporal.NewApplicationErrorWithOptions(
				err.Error(), rateLimitedErrType,
				temporal.ApplicationErrorOptions{
					NextRetryDelay: agent.RetryDelay(err, a.cfg.Retry.MaxDelay),
					Cause:          err,
				})
		}
		return RunAgentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), agentFailedErrType, err)
	}

	if !result.Success {
		return RunAgentOutput{Status: domain.ResponseStatusFail, Content: result.Error}, nil
	}
	return RunAgentOutput{Status: domain.ResponseStatusOK, Content: result.Output}, nil
}

// buildInstruction renders the agent prompt for a work step.
func buildInstruction(in RunAgentInput) (string, error) {
	return prompts.Render(prompts.WorkStep, prompts.WorkStepData{
		Package:       in.PackageName,
		WorkKind:      in.WorkKind,
		Description:   in.Description,
		PreviousError: in.Payload["previous_error"],
		Tasks:         in.Payload["tasks"],
	})
}

// EnsureWorkspaceInput names the package whose workspace to prepare.
type EnsureWorkspaceInput struct {
	PackageName string `json:"package_name"`
	Description string `json:"description,omitempty"`
}

// EnsureWorkspace creates (or reuses) the package's exclusive build
// repository under the configured repo root and returns its path. A fresh
// workspace is initialized as a git repository with one seed commit so
// worktree fan-out has a base to branch from.
func (a *Activities) EnsureWorkspace(ctx context.Context, in EnsureWorkspaceInput) (string, error) {
	root := a.cfg.Orchestrator.RepoRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve repo root: %w", err)
		}
		root = cwd
	}

	dir := filepath.Join(root, git.SanitizeBranchName(in.PackageName))
	if _, err := git.DetectRepoRoot(ctx, dir); err == nil {
		return dir, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if _, err := git.RunCommand(ctx, dir, "init", "-b", a.cfg.Git.BaseBranch); err != nil {
		return "", err
	}
	readme := fmt.Sprintf("# %s\n\n%s\n", in.PackageName, in.Description)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o600); err != nil {
		return "", fmt.Errorf("seed workspace: %w", err)
	}
	if err := git.CommitAll(ctx, dir, "initialize workspace"); err != nil {
		return "", err
	}

	a.logger.Info().Str("package", in.PackageName).Str("dir", dir).Msg("workspace initialized")
	return dir, nil
}

// FanOutInput describes a parallel implementation fan-out.
type FanOutInput struct {
	PackageName string   `json:"package_name"`
	Workspace   string   `json:"workspace"`
	Tasks       []string `json:"tasks"`
}

// FanOutOutput reports the fan-out's merge results.
type FanOutOutput struct {
	Merged    []string            `json:"merged"`
	Conflicts []worktree.Conflict `json:"conflicts"`
}

// FanOutTasks runs one agent per task in isolated worktrees, then merges the
// task branches back into the base branch sequentially. Conflicting branches
// are preserved and reported, never silently resolved.
func (a *Activities) FanOutTasks(ctx context.Context, in FanOutInput) (FanOutOutput, error) {
	mgr, err := worktree.NewManager(ctx, in.Workspace, a.cfg.Worktree, a.cfg.Git, a.logger)
	if err != nil {
		return FanOutOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), agentFailedErrType, err)
	}

	tasks := make([]worktree.Task, 0, len(in.Tasks))
	for _, name := range in.Tasks {
		taskName := name
		tasks = append(tasks, worktree.Task{
			Name: taskName,
			Fn: func(taskCtx context.Context, wt domain.Worktree) error {
				instruction, renderErr := prompts.Render(prompts.TaskImplementation, prompts.TaskImplementationData{
					Package: in.PackageName,
					Task:    taskName,
				})
				if renderErr != nil {
					return renderErr
				}
				result, runErr := a.runner.Run(taskCtx, &domain.AgentRequest{
					Role:        "builder",
					Instruction: instruction,
					WorkingDir:  wt.Path,
				})
				if runErr != nil {
					return runErr
				}
				if !result.Success {
					return fmt.Errorf("task %s failed: %s", taskName, result.Error)
				}
				return nil
			},
		})
	}

	report, err := mgr.Run(ctx, tasks)
	if err != nil {
		if agent.IsRateLimited(err) {
			return FanOutOutput{}, temporal.NewApplicationErrorWithOptions(
				err.Error(), rateLimitedErrType,
				temporal.ApplicationErrorOptions{
					NextRetryDelay: agent.RetryDelay(err, a.cfg.Retry.MaxDelay),
					Cause:          err,
				})
		}
		return FanOutOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), agentFailedErrType, err)
	}
	return FanOutOutput{Merged: report.Merged, Conflicts: report.Conflicts}, nil
}

// SubmitReviewInput names the workspace to stage for operator review.
type SubmitReviewInput struct {
	PackageName string `json:"package_name"`
	Workspace   string `json:"workspace"`
}

// SubmitForReview pushes the package's work to a review branch and opens a
// pull request so the operator can inspect the build before approving the
// publish. Workspaces without a configured remote skip submission and return
// an empty URL; the approval gate works either way.
func (a *Activities) SubmitForReview(ctx context.Context, in SubmitReviewInput) (string, error) {
	remote := a.cfg.Git.Remote
	if _, err := git.RunCommand(ctx, in.Workspace, "remote", "get-url", remote); err != nil {
		a.logger.Debug().Str("package", in.PackageName).Msg("no remote configured, skipping review pull request")
		return "", nil
	}

	branch := "fabrica/review/" + git.SanitizeBranchName(in.PackageName)
	if exists, err := git.BranchExists(ctx, in.Workspace, branch); err == nil && exists {
		// A previous review round's branch is replaced wholesale.
		if err := git.DeleteBranch(ctx, in.Workspace, branch, true); err != nil {
			return "", err
		}
	}
	if err := git.CreateBranch(ctx, in.Workspace, branch, a.cfg.Git.BaseBranch); err != nil {
		return "", err
	}
	if err := git.Push(ctx, in.Workspace, remote, branch); err != nil {
		return "", err
	}

	url, err := git.CreatePR(ctx, in.Workspace, git.PRCreateOptions{
		Title:      "fabrica: publish " + in.PackageName,
		Body:       "Automated build output for " + in.PackageName + ", awaiting operator approval.",
		BaseBranch: a.cfg.Git.BaseBranch,
		HeadBranch: branch,
	})
	if err != nil {
		// A rejection round leaves the previous pull request open; reuse it.
		if strings.Contains(err.Error(), "already exists") {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

// PublishInput names the package and workspace to publish.
type PublishInput struct {
	PackageName string `json:"package_name"`
	Workspace   string `json:"workspace"`
}

// PublishPackage publishes the workspace to the registry and returns the
// published version. Publishing an already-published version is surfaced by
// the registry; the caller treats it as terminal.
func (a *Activities) PublishPackage(ctx context.Context, in PublishInput) (string, error) {
	return a.registry.Publish(ctx, in.Workspace)
}

// PackageExists checks the registry for a package, used by operators and
// dependency verification.
func (a *Activities) PackageExists(ctx context.Context, name string) (bool, error) {
	return a.registry.Exists(ctx, name, "")
}

// SaveCheckpointInput is one durable progress record.
type SaveCheckpointInput struct {
	PackageName string             `json:"package_name"`
	Decision    domain.Decision    `json:"decision"`
	State       domain.EngineState `json:"state"`
}

// SaveCheckpoint persists the post-decision state and appends the audit
// record.
func (a *Activities) SaveCheckpoint(_ context.Context, in SaveCheckpointInput) error {
	if _, err := a.checkpoints.Save(in.PackageName, in.Decision, in.State); err != nil {
		return err
	}
	return a.audit.Append(checkpoint.AuditRecord{
		PackageName: in.PackageName,
		DecisionID:  in.Decision.DecisionID,
		Event:       "decision_applied",
		Detail:      fmt.Sprintf("%d actions, finalize=%t", len(in.Decision.Actions), in.Decision.Finalize),
	})
}

// LoadCheckpoint returns the latest snapshot for a package, or nil when the
// package has never checkpointed.
func (a *Activities) LoadCheckpoint(_ context.Context, packageName string) (*checkpoint.Snapshot, error) {
	snap, err := a.checkpoints.Latest(packageName)
	if err != nil {
		if stderrors.Is(err, fabricaerrors.ErrCheckpointNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

// ClearCheckpoints removes a package's snapshots after a successful build.
func (a *Activities) ClearCheckpoints(_ context.Context, packageName string) error {
	return a.checkpoints.Clear(packageName)
}

// RecordOutcome appends the terminal audit record for a build.
func (a *Activities) RecordOutcome(_ context.Context, outcome domain.BuildOutcome) error {
	event := "build_published"
	if !outcome.Published {
		event = "build_failed"
	}
	return a.audit.Append(checkpoint.AuditRecord{
		PackageName: outcome.PackageName,
		Event:       event,
		Detail:      outcome.FailureReason,
	})
}
