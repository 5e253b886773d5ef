package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fabrica-build/fabrica/internal/config"
)

// defaultConfigYAML is the commented starter configuration written by init.
const defaultConfigYAML = `# Fabrica configuration.
# Values here layer over built-in defaults; FABRICA_* environment
# variables override both.

agent:
  command: claude
  # model: sonnet
  timeout: 30m
  # max_budget_usd: 5.0

git:
  base_branch: main
  remote: origin
  timeout: 2m

worktree:
  # base_dir defaults to a sibling directory of each package repository.
  abort_on_conflict: false

registry:
  command: npm
  # url: https://registry.example.com
  dry_run: false

orchestrator:
  max_concurrent: 4
  # repo_root: /srv/fabrica/packages
  require_approval: true

retry:
  ceiling: 3
  # max_delay: 10m

temporal:
  host_port: 127.0.0.1:7233
  namespace: default

log:
  level: info
  console: true
`

// InitFlags holds flags specific to the init command.
type InitFlags struct {
	// Global writes the configuration to ~/.fabrica instead of the project.
	Global bool
	// Force overwrites an existing configuration file.
	Force bool
}

// AddInitCommand adds the init command to the parent command.
func AddInitCommand(parent *cobra.Command) {
	flags := &InitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration file",
		Long: `Init writes a commented configuration file. By default it creates
.fabrica/config.yaml in the current directory; --global writes
~/.fabrica/config.yaml instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.Global, "global", false, "write the global config instead of the project config")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing config file")

	parent.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, flags *InitFlags) error {
	path := config.ProjectConfigPath()
	if flags.Global {
		globalPath, err := config.GlobalConfigPath()
		if err != nil {
			return err
		}
		path = globalPath
	}

	if _, err := os.Stat(path); err == nil && !flags.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	cmd.Printf("Wrote %s\n", path)
	return nil
}
