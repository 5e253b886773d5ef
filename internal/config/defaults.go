package config

import (
	"github.com/spf13/viper"

	"github.com/fabrica-build/fabrica/internal/constants"
)

// DefaultConfig returns a new Config with built-in default values. These form
// the base layer overridden by config files and environment variables.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Command: "claude",
			Timeout: constants.DefaultAgentTimeout,
		},
		Git: GitConfig{
			BaseBranch: "main",
			Remote:     "origin",
			Timeout:    constants.DefaultGitTimeout,
		},
		Worktree: WorktreeConfig{
			AbortOnConflict: false,
			MaxParallel:     constants.DefaultWorktreeParallel,
		},
		Registry: RegistryConfig{
			Command: "npm",
			Timeout: constants.DefaultRegistryTimeout,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:   constants.DefaultMaxConcurrent,
			RequireApproval: true,
		},
		Retry: RetryConfig{
			Ceiling: constants.DefaultRetryCeiling,
		},
		Temporal: TemporalConfig{
			HostPort:  "127.0.0.1:7233",
			Namespace: "default",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// setDefaults registers every default on the viper instance so environment
// variables and config files layer over them key by key.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("agent.command", def.Agent.Command)
	v.SetDefault("agent.model", def.Agent.Model)
	v.SetDefault("agent.timeout", def.Agent.Timeout)
	v.SetDefault("agent.max_budget_usd", def.Agent.MaxBudgetUSD)

	v.SetDefault("git.base_branch", def.Git.BaseBranch)
	v.SetDefault("git.remote", def.Git.Remote)
	v.SetDefault("git.timeout", def.Git.Timeout)

	v.SetDefault("worktree.base_dir", def.Worktree.BaseDir)
	v.SetDefault("worktree.abort_on_conflict", def.Worktree.AbortOnConflict)
	v.SetDefault("worktree.max_parallel", def.Worktree.MaxParallel)

	v.SetDefault("registry.command", def.Registry.Command)
	v.SetDefault("registry.url", def.Registry.URL)
	v.SetDefault("registry.timeout", def.Registry.Timeout)
	v.SetDefault("registry.dry_run", def.Registry.DryRun)

	v.SetDefault("orchestrator.max_concurrent", def.Orchestrator.MaxConcurrent)
	v.SetDefault("orchestrator.repo_root", def.Orchestrator.RepoRoot)
	v.SetDefault("orchestrator.require_approval", def.Orchestrator.RequireApproval)

	v.SetDefault("retry.ceiling", def.Retry.Ceiling)
	v.SetDefault("retry.max_delay", def.Retry.MaxDelay)

	v.SetDefault("temporal.host_port", def.Temporal.HostPort)
	v.SetDefault("temporal.namespace", def.Temporal.Namespace)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.console", def.Log.Console)
}
