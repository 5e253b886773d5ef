package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	"github.com/fabrica-build/fabrica/internal/orchestrator"
)

// packageManifest is the YAML shape of a seed manifest handed to start.
type packageManifest struct {
	Packages []domain.Package `yaml:"packages"`
}

// AddStartCommand adds the start command to the parent command.
func AddStartCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "start [manifest.yaml]",
		Short: "Start the build orchestrator",
		Long: `Start launches the continuous build orchestrator under its fixed
workflow ID. An optional manifest seeds the queue with packages;
further packages can be added at any time with "fabrica enqueue".
Starting while the orchestrator is already running is a no-op.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			var packages []domain.Package
			if len(args) == 1 {
				manifest, err := loadManifest(args[0])
				if err != nil {
					return err
				}
				packages = manifest.Packages
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

			if err := client.StartOrchestrator(cmd.Context(), packages); err != nil {
				return err
			}
			cmd.Printf("Orchestrator running with %d seed package(s)\n", len(packages))
			return nil
		},
	}

	parent.AddCommand(cmd)
}

// loadManifest reads and decodes a package manifest file.
func loadManifest(path string) (*packageManifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest packageManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for i, pkg := range manifest.Packages {
		if pkg.Name == "" {
			return nil, fmt.Errorf("manifest %s: package %d has no name", path, i)
		}
	}
	return &manifest, nil
}
