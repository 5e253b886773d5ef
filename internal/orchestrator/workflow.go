package orchestrator

import (
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
)

// continueAsNewThreshold caps how many builds one workflow run completes
// before handing its queue to a fresh run, keeping event history bounded.
const continueAsNewThreshold = 200

// OrchestratorInput seeds the continuous build workflow. On continue-as-new
// the unfinished queue is carried over here.
type OrchestratorInput struct {
	// Packages are enqueued as pending before the signal loop starts.
	Packages []domain.Package `json:"packages,omitempty"`
}

// runningBuild tracks one in-flight child build workflow.
type runningBuild struct {
	name   string
	future workflow.ChildWorkflowFuture
}

// ContinuousBuildWorkflow is the long-running orchestrator: it owns the
// dependency-aware build queue, admits eligible packages onto the bounded
// worker pool as child workflows, and reacts to enqueue and emergency-stop
// signals. The queue is plain workflow state; signals, child completions,
// and queries are the only ways it changes.
func (w *Workflows) ContinuousBuildWorkflow(ctx workflow.Context, in OrchestratorInput) error {
	logger := workflow.GetLogger(ctx)
	queue := NewBuildQueue(w.cfg.Orchestrator.MaxConcurrent)
	stopping := false
	completed := 0

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.Registry.Timeout,
	})

	for _, pkg := range in.Packages {
		if err := queue.Add(pkg, workflow.Now(ctx)); err != nil {
			logger.Warn("skipping carried package", "package", pkg.Name, "error", err)
		}
	}

	if err := workflow.SetQueryHandler(ctx, constants.QueryQueueStatus, func() (QueueSnapshot, error) {
		snap := queue.Snapshot()
		snap.Stopping = stopping
		return snap, nil
	}); err != nil {
		return fmt.Errorf("register queue status query: %w", err)
	}

	enqueueCh := workflow.GetSignalChannel(ctx, constants.SignalEnqueue)
	stopCh := workflow.GetSignalChannel(ctx, constants.SignalEmergencyStop)
	var running []runningBuild

	for {
		if !stopping {
			for _, pkg := range queue.Eligible() {
				build, err := w.startBuild(ctx, pkg)
				if err != nil {
					logger.Error("failed to start build", "package", pkg.Name, "error", err)
					_ = queue.MarkBuilding(pkg.Name)
					_ = queue.MarkFailed(pkg.Name, err.Error(), workflow.Now(ctx))
					continue
				}
				if err := queue.MarkBuilding(pkg.Name); err != nil {
					return err
				}
				running = append(running, build)
				logger.Info("build admitted", "package", pkg.Name)
			}
		}

		if stopping && queue.BuildingCount() == 0 {
			logger.Info("emergency stop drained, orchestrator exiting",
				"pending", queue.PendingCount())
			return nil
		}

		// Rotate to a fresh run between builds so event history stays
		// bounded. Unfinished work is carried as the next run's seed.
		if completed >= continueAsNewThreshold && queue.BuildingCount() == 0 {
			return workflow.NewContinueAsNewError(ctx, w.ContinuousBuildWorkflow, OrchestratorInput{
				Packages: pendingPackages(queue),
			})
		}

		selector := workflow.NewSelector(ctx)
		selector.AddReceive(enqueueCh, func(ch workflow.ReceiveChannel, _ bool) {
			var pkg domain.Package
			ch.Receive(ctx, &pkg)
			if err := queue.Add(pkg, workflow.Now(ctx)); err != nil {
				logger.Warn("rejected enqueue", "package", pkg.Name, "error", err)
				return
			}
			logger.Info("package enqueued", "package", pkg.Name)
		})
		selector.AddReceive(stopCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, nil)
			stopping = true
			logger.Info("emergency stop received, draining in-flight builds",
				"building", queue.BuildingCount())
		})
		for i := range running {
			build := running[i]
			selector.AddFuture(build.future, func(f workflow.Future) {
				var outcome domain.BuildOutcome
				err := f.Get(ctx, &outcome)
				running = removeBuild(running, build.name)
				completed++
				w.settleBuild(ctx, queue, build.name, outcome, err)
			})
		}
		selector.Select(ctx)
	}
}

// startBuild launches a package build as a child workflow with a
// deterministic ID so duplicate admissions collide instead of double
// building.
func (w *Workflows) startBuild(ctx workflow.Context, pkg domain.Package) (runningBuild, error) {
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        BuildWorkflowID(pkg.Name),
		TaskQueue:         constants.TaskQueue,
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_TERMINATE,
	})
	future := workflow.ExecuteChildWorkflow(childCtx, w.PackageBuildWorkflow, pkg)
	if err := future.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
		return runningBuild{}, err
	}
	return runningBuild{name: pkg.Name, future: future}, nil
}

// settleBuild records a finished child build in the queue.
func (w *Workflows) settleBuild(ctx workflow.Context, queue *BuildQueue, name string, outcome domain.BuildOutcome, err error) {
	logger := workflow.GetLogger(ctx)
	now := workflow.Now(ctx)
	switch {
	case err != nil:
		logger.Error("build workflow failed", "package", name, "error", err)
		if markErr := queue.MarkFailed(name, err.Error(), now); markErr != nil {
			logger.Error("failed to mark build failed", "package", name, "error", markErr)
		}
	case outcome.Published:
		// The queue trusts the registry, not the build: dependents are only
		// released once the published version is actually visible.
		var acts *Activities
		var visible bool
		if verifyErr := workflow.ExecuteActivity(ctx, acts.PackageExists, name).Get(ctx, &visible); verifyErr != nil {
			logger.Error("publish verification failed", "package", name, "error", verifyErr)
			if markErr := queue.MarkFailed(name, "publish verification failed: "+verifyErr.Error(), now); markErr != nil {
				logger.Error("failed to mark build failed", "package", name, "error", markErr)
			}
			return
		}
		if !visible {
			if markErr := queue.MarkFailed(name, "published package not visible in registry", now); markErr != nil {
				logger.Error("failed to mark build failed", "package", name, "error", markErr)
			}
			return
		}
		logger.Info("package published", "package", name, "steps", outcome.Steps)
		if markErr := queue.MarkPublished(name, now); markErr != nil {
			logger.Error("failed to mark build published", "package", name, "error", markErr)
		}
	default:
		logger.Warn("build finished without publishing",
			"package", name, "reason", outcome.FailureReason)
		if markErr := queue.MarkFailed(name, outcome.FailureReason, now); markErr != nil {
			logger.Error("failed to mark build failed", "package", name, "error", markErr)
		}
	}
}

// pendingPackages extracts the still-pending packages for continue-as-new.
func pendingPackages(queue *BuildQueue) []domain.Package {
	var pkgs []domain.Package
	for _, state := range queue.Snapshot().Packages {
		if state.Status == domain.BuildStatusPending {
			pkgs = append(pkgs, state.Package)
		}
	}
	return pkgs
}

// removeBuild drops a finished build from the running set.
func removeBuild(running []runningBuild, name string) []runningBuild {
	out := running[:0]
	for _, b := range running {
		if b.name != name {
			out = append(out, b)
		}
	}
	return out
}

// BuildWorkflowID derives the child workflow ID for a package build.
func BuildWorkflowID(packageName string) string {
	return "fabrica-build-" + packageName
}
