package cli

import (
	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
	"github.com/fabrica-build/fabrica/internal/signal"
)

// AddWorkerCommand adds the worker command to the parent command.
func AddWorkerCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a build worker",
		Long: `Worker hosts the orchestrator and package build workflows plus their
activities (agent invocation, worktree fan-out, publishing). It blocks
serving the task queue until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			worker, err := orchestrator.NewWorker(cfg, logger)
			if err != nil {
				return err
			}

			handler := signal.NewHandler(cmd.Context())
			defer handler.Stop()
			return worker.Run(handler.Interrupted())
		},
	}

	parent.AddCommand(cmd)
}
