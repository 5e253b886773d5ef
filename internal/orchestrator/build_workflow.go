package orchestrator

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fabrica-build/fabrica/internal/checkpoint"
	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
	"github.com/fabrica-build/fabrica/internal/engine"
	"github.com/fabrica-build/fabrica/internal/spec"
)

// maxWorkflowSteps bounds the decision loop so a misbehaving spec cannot
// spin a workflow forever.
const maxWorkflowSteps = 256

// ApprovalSignal is the payload delivered on the approval signal channel.
type ApprovalSignal struct {
	// Approved releases the publish gate when true and fails the approval
	// step when false.
	Approved bool `json:"approved"`

	// Note is recorded as the approval step's response content.
	Note string `json:"note,omitempty"`
}

// Workflows hosts the Temporal workflow definitions. The spec registry and
// configuration are bound at worker construction; workflow code reads them
// but never mutates them.
type Workflows struct {
	specs *spec.Registry
	cfg   *config.Config
}

// NewWorkflows binds the workflow definitions to their collaborators.
func NewWorkflows(specs *spec.Registry, cfg *config.Config) *Workflows {
	return &Workflows{specs: specs, cfg: cfg}
}

// PackageBuildWorkflow drives one package from an empty goal to a terminal
// build outcome. The spec decides, the engine folds, activities execute: the
// workflow is only the loop that wires them together and suspends on
// approvals. All engine inputs derive from workflow time and a seed hashed
// from the workflow ID so replays reproduce identical states.
func (w *Workflows) PackageBuildWorkflow(ctx workflow.Context, pkg domain.Package) (domain.BuildOutcome, error) {
	info := workflow.GetInfo(ctx)
	logger := workflow.GetLogger(ctx)
	seed := seedFromID(info.WorkflowExecution.ID)

	sp, err := w.specs.Resolve(pkg.SpecName)
	if err != nil {
		return domain.BuildOutcome{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.Agent.Timeout + w.cfg.Git.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    w.cfg.Retry.MaxDelay,
			MaximumAttempts:    int32(w.cfg.Retry.Ceiling),
		},
	})
	// Agent-backed activities get an unbounded attempt budget: rate-limited
	// invocations reschedule on the provider's hint for as long as it takes,
	// while every other failure is marked non-retryable by the activity and
	// falls to the spec's retry ceiling. Plumbing activities keep the
	// bounded policy above.
	agentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.Agent.Timeout + w.cfg.Git.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    w.cfg.Retry.MaxDelay,
		},
	})
	var acts *Activities

	state, steps, err := w.restoreOrBootstrap(ctx, acts, sp, pkg, seed)
	if err != nil {
		return domain.BuildOutcome{}, err
	}

	var workspace string
	if err := workflow.ExecuteActivity(ctx, acts.EnsureWorkspace, EnsureWorkspaceInput{
		PackageName: pkg.Name,
		Description: pkg.Description,
	}).Get(ctx, &workspace); err != nil {
		return domain.BuildOutcome{}, fmt.Errorf("prepare workspace: %w", err)
	}

	errorAttempts := map[string]int{}
	for iter := 0; state.Status != domain.EngineStatusCompleted; iter++ {
		if iter >= maxWorkflowSteps {
			return domain.BuildOutcome{}, fmt.Errorf("build exceeded %d steps without terminating", maxWorkflowSteps)
		}

		stepID, step, ok := nextOpenStep(state)
		if !ok {
			return domain.BuildOutcome{}, fmt.Errorf("goal %s is running but has no open step", state.GoalID)
		}

		resp, execErr := w.executeStep(ctx, agentCtx, acts, pkg, workspace, stepID, step, info)
		ectx := engine.NewContext(pkg.Name, workflow.Now(ctx), seed+int64(iter))
		dctx := spec.DecisionContext{RunID: info.WorkflowExecution.RunID, Now: workflow.Now(ctx)}

		var dec domain.Decision
		if execErr != nil {
			// Close the step so the retry opens a fresh one, then let the
			// spec decide between re-request and terminal.
			state, err = engine.ApplyAgentResponse(state, domain.Response{
				GoalID: state.GoalID,
				StepID: stepID,
				Status: domain.ResponseStatusFail,
			}, ectx)
			if err != nil {
				return domain.BuildOutcome{}, err
			}
			errorAttempts[step.Kind]++
			dec, err = sp.OnAgentError(state, step.Kind, execErr, errorAttempts[step.Kind], dctx)
			if err != nil {
				return domain.BuildOutcome{}, err
			}
		} else {
			state, err = engine.ApplyAgentResponse(state, resp, ectx)
			if err != nil {
				// Goal/step mismatches are protocol violations, not work
				// failures; they fail the build outright.
				return domain.BuildOutcome{}, err
			}
			dec, err = sp.OnAgentCompleted(state, resp, dctx)
			if err != nil {
				return domain.BuildOutcome{}, err
			}
		}

		state = engine.Fold(state, dec, ectx)
		if post, ok := sp.(spec.PostApplier); ok {
			post.PostApply(state)
		}
		steps++

		if err := workflow.ExecuteActivity(ctx, acts.SaveCheckpoint, SaveCheckpointInput{
			PackageName: pkg.Name,
			Decision:    dec,
			State:       state,
		}).Get(ctx, nil); err != nil {
			return domain.BuildOutcome{}, fmt.Errorf("save checkpoint: %w", err)
		}
	}

	outcome := domain.BuildOutcome{
		PackageName:   pkg.Name,
		Published:     state.HasArtifact(spec.ArtifactPublished) && !state.HasArtifact(spec.ArtifactTerminalError),
		FailureReason: state.Artifacts[spec.ArtifactTerminalError],
		Steps:         steps,
	}
	if err := workflow.ExecuteActivity(ctx, acts.RecordOutcome, outcome).Get(ctx, nil); err != nil {
		logger.Warn("failed to record build outcome", "package", pkg.Name, "error", err)
	}
	if outcome.Published {
		if err := workflow.ExecuteActivity(ctx, acts.ClearCheckpoints, pkg.Name).Get(ctx, nil); err != nil {
			logger.Warn("failed to clear checkpoints", "package", pkg.Name, "error", err)
		}
	}
	return outcome, nil
}

// restoreOrBootstrap loads the latest checkpoint for the package, or folds
// the spec's bootstrap decision into a fresh state when none exists.
func (w *Workflows) restoreOrBootstrap(ctx workflow.Context, acts *Activities, sp spec.Spec, pkg domain.Package, seed int64) (domain.EngineState, int, error) {
	var snap *checkpoint.Snapshot
	if err := workflow.ExecuteActivity(ctx, acts.LoadCheckpoint, pkg.Name).Get(ctx, &snap); err != nil {
		return domain.EngineState{}, 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if snap != nil {
		workflow.GetLogger(ctx).Info("resuming from checkpoint",
			"package", pkg.Name, "seq", snap.Seq)
		return snap.State, snap.Seq, nil
	}

	info := workflow.GetInfo(ctx)
	state := domain.NewEngineState(pkg.Name)
	dec, err := sp.Bootstrap(state, spec.DecisionContext{RunID: info.WorkflowExecution.RunID, Now: workflow.Now(ctx)})
	if err != nil {
		return domain.EngineState{}, 0, fmt.Errorf("bootstrap: %w", err)
	}
	state = engine.Fold(state, dec, engine.NewContext(pkg.Name, workflow.Now(ctx), seed))

	if err := workflow.ExecuteActivity(ctx, acts.SaveCheckpoint, SaveCheckpointInput{
		PackageName: pkg.Name,
		Decision:    dec,
		State:       state,
	}).Get(ctx, nil); err != nil {
		return domain.EngineState{}, 0, fmt.Errorf("save checkpoint: %w", err)
	}
	return state, 0, nil
}

// executeStep dispatches one open step to the activity that serves its work
// kind and converts the result into an engine response. Agent-backed steps
// run under agentCtx so rate-limit rescheduling is unbounded. Approval steps
// suspend on the approval signal channel instead of running an activity.
func (w *Workflows) executeStep(ctx, agentCtx workflow.Context, acts *Activities, pkg domain.Package, workspace, stepID string, step domain.Step, info *workflow.Info) (domain.Response, error) {
	resp := domain.Response{
		GoalID:     pkg.Name,
		WorkflowID: info.WorkflowExecution.ID,
		StepID:     stepID,
		RunID:      info.WorkflowExecution.RunID,
		AgentRole:  "builder",
	}

	switch step.Kind {
	case "approval":
		// Stage the work for review before suspending on the gate. A failed
		// submission is logged, not fatal: the operator can still inspect
		// the workspace and approve through the CLI.
		var prURL string
		if err := workflow.ExecuteActivity(ctx, acts.SubmitForReview, SubmitReviewInput{
			PackageName: pkg.Name,
			Workspace:   workspace,
		}).Get(ctx, &prURL); err != nil {
			workflow.GetLogger(ctx).Warn("review submission failed", "package", pkg.Name, "error", err)
		} else if prURL != "" {
			workflow.GetLogger(ctx).Info("review pull request opened", "package", pkg.Name, "url", prURL)
		}

		var sig ApprovalSignal
		workflow.GetSignalChannel(ctx, constants.SignalApproval).Receive(ctx, &sig)
		resp.AgentRole = "operator"
		resp.Content = sig.Note
		if sig.Approved {
			resp.Status = domain.ResponseStatusOK
			if resp.Content == "" {
				resp.Content = "approved"
			}
		} else {
			resp.Status = domain.ResponseStatusFail
			if resp.Content == "" {
				resp.Content = "approval rejected"
			}
		}
		return resp, nil

	case spec.WorkImplementTasks:
		tasks := parseTaskList(step.Payload[spec.ArtifactTasks])
		var out FanOutOutput
		if err := workflow.ExecuteActivity(agentCtx, acts.FanOutTasks, FanOutInput{
			PackageName: pkg.Name,
			Workspace:   workspace,
			Tasks:       tasks,
		}).Get(ctx, &out); err != nil {
			return domain.Response{}, err
		}
		if len(out.Conflicts) > 0 {
			resp.Status = domain.ResponseStatusFail
			resp.Content = conflictSummary(out)
			return resp, nil
		}
		resp.Status = domain.ResponseStatusOK
		resp.Content = fmt.Sprintf("merged %d task branches", len(out.Merged))
		return resp, nil

	case spec.WorkPublishPackage:
		var version string
		if err := workflow.ExecuteActivity(ctx, acts.PublishPackage, PublishInput{
			PackageName: pkg.Name,
			Workspace:   workspace,
		}).Get(ctx, &version); err != nil {
			return domain.Response{}, err
		}
		resp.Status = domain.ResponseStatusOK
		resp.Content = version
		return resp, nil

	default:
		var out RunAgentOutput
		if err := workflow.ExecuteActivity(agentCtx, acts.RunAgent, RunAgentInput{
			PackageName: pkg.Name,
			Description: pkg.Description,
			WorkKind:    step.Kind,
			StepID:      stepID,
			Workspace:   workspace,
			Payload:     step.Payload,
		}).Get(ctx, &out); err != nil {
			return domain.Response{}, err
		}
		resp.Status = out.Status
		resp.Content = out.Content
		return resp, nil
	}
}

// nextOpenStep returns the lowest-ID step still awaiting work. Sorting keeps
// selection deterministic when a decision opened several steps at once.
func nextOpenStep(state domain.EngineState) (string, domain.Step, bool) {
	ids := state.OpenStepIDs()
	if len(ids) == 0 {
		return "", domain.Step{}, false
	}
	sort.Strings(ids)
	return ids[0], state.OpenSteps[ids[0]], true
}

// parseTaskList splits an agent-produced task list into task names, one per
// non-empty line, stripping common list markers.
func parseTaskList(raw string) []string {
	var tasks []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. \t")
		if line == "" {
			continue
		}
		tasks = append(tasks, line)
	}
	if len(tasks) == 0 {
		tasks = []string{"implement package"}
	}
	return tasks
}

// conflictSummary renders a merge report's conflicts for the FAIL response.
func conflictSummary(out FanOutOutput) string {
	parts := make([]string, 0, len(out.Conflicts))
	for _, c := range out.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (branch %s preserved: %s)", c.TaskName, c.Branch, c.Detail))
	}
	return fmt.Sprintf("merged %d, conflicts: %s", len(out.Merged), strings.Join(parts, "; "))
}

// seedFromID hashes a workflow ID into a deterministic engine seed.
func seedFromID(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
