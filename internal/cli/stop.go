package cli

import (
	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
)

// AddStopCommand adds the stop command to the parent command.
func AddStopCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Emergency-stop the orchestrator",
		Long: `Stop signals the orchestrator to admit no further packages and exit
once in-flight builds drain. Pending packages stay queued and are
reported by "fabrica status" until the drain completes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}

			client, err := orchestrator.Dial(cfg.Temporal, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.EmergencyStop(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Emergency stop signaled; in-flight builds will drain")
			return nil
		},
	}

	parent.AddCommand(cmd)
}
