package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
)

// EnqueueFlags holds flags specific to the enqueue command.
type EnqueueFlags struct {
	Priority     int
	Dependencies []string
	Category     string
	Spec         string
	Description  string
}

// AddEnqueueCommand adds the enqueue command to the parent command.
func AddEnqueueCommand(parent *cobra.Command, global *GlobalFlags) {
	flags := &EnqueueFlags{}

	cmd := &cobra.Command{
		Use:   "enqueue <package>",
		Short: "Submit a package to the running orchestrator",
		Long: `Enqueue adds a package to the build queue. The package becomes
eligible once every dependency has been published; eligible packages
are admitted by priority, then category layer, then name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			pkg := domain.Package{
				Name:         args[0],
				Priority:     flags.Priority,
				Dependencies: flags.Dependencies,
				Category:     flags.Category,
				SpecName:     flags.Spec,
				Description:  flags.Description,
			}

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}

			client, err := orchestrator.Dial(cfg.Temporal, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Enqueue(cmd.Context(), pkg); err != nil {
				return err
			}

			if global.Output == OutputJSON {
				out, err := json.Marshal(pkg)
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Printf("Enqueued %s\n", pkg.Name)
			return nil
		},
	}

	cmd.Flags().IntVarP(&flags.Priority, "priority", "p", 0, "build priority (higher builds first)")
	cmd.Flags().StringSliceVarP(&flags.Dependencies, "depends-on", "d", nil, "packages that must publish first")
	cmd.Flags().StringVarP(&flags.Category, "category", "c", "", "build category (core|library|service|app)")
	cmd.Flags().StringVar(&flags.Spec, "spec", "", "decision policy name (default: orchestrator default)")
	cmd.Flags().StringVar(&flags.Description, "description", "", "what the package should do")

	parent.AddCommand(cmd)
}
