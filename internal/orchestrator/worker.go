package orchestrator

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fabrica-build/fabrica/internal/agent"
	"github.com/fabrica-build/fabrica/internal/checkpoint"
	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/pkgregistry"
	"github.com/fabrica-build/fabrica/internal/spec"
)

// Worker hosts the workflow and activity implementations on the factory
// task queue.
type Worker struct {
	temporal client.Client
	worker   worker.Worker
	logger   zerolog.Logger
}

// NewWorker assembles the full activity dependency graph from configuration
// and registers the workflows and activities.
func NewWorker(cfg *config.Config, logger zerolog.Logger) (*Worker, error) {
	specs := spec.NewRegistry()
	buildSpec := NewDefaultSpec(cfg, logger)
	if err := specs.Register(buildSpec); err != nil {
		return nil, err
	}
	if err := specs.Register(spec.NewScaffoldSpec(logger)); err != nil {
		return nil, err
	}

	executor := &agent.DefaultExecutor{}
	runners := agent.NewRegistry()
	claude := agent.NewClaudeCodeRunner(cfg.Agent, executor, agent.WithClaudeLogger(logger))
	if err := runners.Register("builder", claude); err != nil {
		return nil, err
	}

	store, err := checkpoint.NewStore(cfg.Orchestrator.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.Temporal.HostPort, err)
	}

	wk := worker.New(c, constants.TaskQueue, worker.Options{})
	workflows := NewWorkflows(specs, cfg)
	activities := NewActivities(
		agent.NewMultiRunner(runners),
		pkgregistry.NewNPMClient(cfg.Registry, executor, logger),
		store,
		checkpoint.NewAuditLog(store),
		cfg,
		logger,
	)
	wk.RegisterWorkflow(workflows.ContinuousBuildWorkflow)
	wk.RegisterWorkflow(workflows.PackageBuildWorkflow)
	wk.RegisterActivity(activities)

	return &Worker{temporal: c, worker: wk, logger: logger}, nil
}

// NewDefaultSpec builds the package build spec from configuration.
func NewDefaultSpec(cfg *config.Config, logger zerolog.Logger) *spec.PackageBuildSpec {
	opts := []spec.PackageBuildOption{spec.WithRetryCeiling(cfg.Retry.Ceiling)}
	if !cfg.Orchestrator.RequireApproval {
		opts = append(opts, spec.WithoutApprovalGate())
	}
	return spec.NewPackageBuildSpec(logger, opts...)
}

// Run blocks serving the task queue until the interrupt channel closes.
func (w *Worker) Run(interrupt <-chan struct{}) error {
	w.logger.Info().Str("task_queue", constants.TaskQueue).Msg("worker starting")
	defer w.temporal.Close()

	stop := make(chan interface{})
	go func() {
		<-interrupt
		w.logger.Info().Msg("shutdown requested, draining tasks")
		close(stop)
	}()

	if err := w.worker.Run(stop); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
