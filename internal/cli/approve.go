package cli

import (
	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
)

// ApproveFlags holds flags specific to the approve command.
type ApproveFlags struct {
	// Reject fails the approval gate instead of releasing it.
	Reject bool
	// Note is recorded alongside the approval decision.
	Note string
}

// AddApproveCommand adds the approve command to the parent command.
func AddApproveCommand(parent *cobra.Command) {
	flags := &ApproveFlags{}

	cmd := &cobra.Command{
		Use:   "approve <package>",
		Short: "Release a package's publish approval gate",
		Long: `Approve signals the package's build workflow that a human has reviewed
the build. By default the gate is released and publishing proceeds;
--reject fails the approval step instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := client.Approve(cmd.Context(), args[0], !flags.Reject, flags.Note); err != nil {
				return err
			}
			if flags.Reject {
				cmd.Printf("Rejected %s\n", args[0])
			} else {
				cmd.Printf("Approved %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.Reject, "reject", false, "fail the approval gate")
	cmd.Flags().StringVar(&flags.Note, "note", "", "note recorded with the decision")

	parent.AddCommand(cmd)
}
