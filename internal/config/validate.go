package config

import (
	"github.com/fabrica-build/fabrica/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values and
// returns an error describing the first failure found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateAgentConfig(&cfg.Agent); err != nil {
		return err
	}
	if err := validateOrchestratorConfig(&cfg.Orchestrator); err != nil {
		return err
	}
	if err := validateRetryConfig(&cfg.Retry); err != nil {
		return err
	}
	if cfg.Git.BaseBranch == "" {
		return errors.Wrap(errors.ErrConfigInvalidOrchestrator,
			"git.base_branch must not be empty")
	}
	if cfg.Worktree.MaxParallel < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidOrchestrator,
			"worktree.max_parallel must be at least 1, got %d", cfg.Worktree.MaxParallel)
	}
	return nil
}

func validateAgentConfig(cfg *AgentConfig) error {
	if cfg.Command == "" {
		return errors.Wrap(errors.ErrConfigInvalidAgent,
			"agent.command must not be empty")
	}
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidAgent,
			"agent.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxBudgetUSD < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidAgent,
			"agent.max_budget_usd must not be negative, got %.2f", cfg.MaxBudgetUSD)
	}
	return nil
}

func validateOrchestratorConfig(cfg *OrchestratorConfig) error {
	if cfg.MaxConcurrent < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidOrchestrator,
			"orchestrator.max_concurrent must be at least 1, got %d", cfg.MaxConcurrent)
	}
	return nil
}

func validateRetryConfig(cfg *RetryConfig) error {
	if cfg.Ceiling < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidRetry,
			"retry.ceiling must be at least 1, got %d", cfg.Ceiling)
	}
	if cfg.MaxDelay < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidRetry,
			"retry.max_delay must not be negative, got %s", cfg.MaxDelay)
	}
	return nil
}
