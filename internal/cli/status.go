package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
)

// AddStatusCommand adds the status command to the parent command.
func AddStatusCommand(parent *cobra.Command, global *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the build queue",
		Long:  `Status queries the running orchestrator for its queue snapshot.`,
		Args:  cobra.NoArgs,
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

			snap, err := client.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}

			if global.Output == OutputJSON {
				out, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			return printQueueSnapshot(cmd, snap)
		},
	}

	parent.AddCommand(cmd)
}

// printQueueSnapshot renders the snapshot as an aligned table.
func printQueueSnapshot(cmd *cobra.Command, snap orchestrator.QueueSnapshot) error {
	if snap.Stopping {
		cmd.Println("EMERGENCY STOP in progress: draining in-flight builds")
	}
	cmd.Printf("%d building, %d pending\n\n", snap.Building, snap.Pending)

	if len(snap.Packages) == 0 {
		cmd.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tSTATUS\tPRIORITY\tCATEGORY\tDEPENDS ON\tREASON")
	for _, state := range snap.Packages {
		deps := "-"
		if len(state.Package.Dependencies) > 0 {
			deps = fmt.Sprintf("%v", state.Package.Dependencies)
		}
		reason := state.FailureReason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			state.Package.Name, state.Status, state.Package.Priority,
			state.Package.Category, deps, reason)
	}
	return w.Flush()
}
