// Package config provides configuration management for Fabrica with layered
// precedence.
//
// Configuration sources are loaded in the following order (highest precedence
// first):
//  1. Environment variables (FABRICA_* prefix)
//  2. Project config (.fabrica/config.yaml)
//  3. Global config (~/.fabrica/config.yaml)
//  4. Built-in defaults
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for Fabrica.
type Config struct {
	// Agent contains settings for CLI agent invocation.
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	// Git contains settings for git operations and repository management.
	Git GitConfig `yaml:"git" mapstructure:"git"`

	// Worktree contains settings for git worktree fan-out.
	Worktree WorktreeConfig `yaml:"worktree" mapstructure:"worktree"`

	// Registry contains settings for the package registry client.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Orchestrator contains settings for the continuous build orchestrator.
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`

	// Retry contains settings for provider-aware retry behavior.
	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	// Temporal contains connection settings for the durable substrate.
	Temporal TemporalConfig `yaml:"temporal" mapstructure:"temporal"`

	// Log contains logging settings.
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// AgentConfig contains settings for CLI agent invocation.
type AgentConfig struct {
	// Command is the agent CLI binary to invoke.
	// Default: "claude"
	Command string `yaml:"command" mapstructure:"command"`

	// Model specifies the model passed to the agent CLI. Empty means the
	// agent's own default.
	Model string `yaml:"model" mapstructure:"model"`

	// Timeout is the maximum duration for one agent invocation.
	// Default: 30 minutes
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxBudgetUSD limits the dollar amount per agent invocation.
	// Set to 0 for no budget limit.
	MaxBudgetUSD float64 `yaml:"max_budget_usd,omitempty" mapstructure:"max_budget_usd"`
}

// GitConfig contains settings for git operations.
type GitConfig struct {
	// BaseBranch is the branch package builds branch off and merge back to.
	// Default: "main"
	BaseBranch string `yaml:"base_branch" mapstructure:"base_branch"`

	// Remote is the name of the remote repository.
	// Default: "origin"
	Remote string `yaml:"remote" mapstructure:"remote"`

	// Timeout bounds a single git operation.
	// Default: 2 minutes
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// WorktreeConfig contains settings for parallel worktree fan-out.
type WorktreeConfig struct {
	// BaseDir is where worktrees are created. Empty means a sibling
	// directory next to the repository.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`

	// AbortOnConflict stops the sequential merge at the first conflict when
	// true. When false the conflicting branch is skipped, left for manual
	// resolution, and the merge continues.
	// Default: false
	AbortOnConflict bool `yaml:"abort_on_conflict" mapstructure:"abort_on_conflict"`

	// MaxParallel caps how many task worktrees run at once. Each running
	// task is a live agent subprocess.
	// Default: 4
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`
}

// RegistryConfig contains settings for the package registry client.
type RegistryConfig struct {
	// Command is the registry CLI binary to invoke.
	// Default: "npm"
	Command string `yaml:"command" mapstructure:"command"`

	// URL optionally overrides the registry endpoint.
	URL string `yaml:"url,omitempty" mapstructure:"url"`

	// Timeout bounds a registry operation.
	// Default: 5 minutes
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// DryRun passes --dry-run to publish operations.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// OrchestratorConfig contains settings for the continuous build orchestrator.
type OrchestratorConfig struct {
	// MaxConcurrent is the ceiling on simultaneously building packages.
	// Default: 4
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// RepoRoot is the directory package build repositories live under.
	RepoRoot string `yaml:"repo_root" mapstructure:"repo_root"`

	// RequireApproval gates publishing behind an operator approval signal.
	// Default: true
	RequireApproval bool `yaml:"require_approval" mapstructure:"require_approval"`
}

// RetryConfig contains settings for provider-aware retry behavior.
type RetryConfig struct {
	// Ceiling is how many times failed work is re-requested before the goal
	// finalizes with a terminal annotation.
	// Default: 3
	Ceiling int `yaml:"ceiling" mapstructure:"ceiling"`

	// MaxDelay caps provider-suggested retry delays. Zero means
	// unconstrained.
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// TemporalConfig contains connection settings for the durable substrate.
type TemporalConfig struct {
	// HostPort is the Temporal frontend address.
	// Default: "127.0.0.1:7233"
	HostPort string `yaml:"host_port" mapstructure:"host_port"`

	// Namespace is the Temporal namespace.
	// Default: "default"
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`

	// Console enables human-readable console output in addition to the
	// rotating file log.
	// Default: true
	Console bool `yaml:"console" mapstructure:"console"`
}
