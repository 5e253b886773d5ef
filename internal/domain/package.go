package domain

import "time"

// Package describes one entry in the dependency-aware build queue.
type Package struct {
	// Name uniquely identifies the package in the queue.
	Name string `json:"name" yaml:"name"`

	// Priority orders eligible packages; higher builds first.
	Priority int `json:"priority" yaml:"priority"`

	// Dependencies are package names that must be published before this
	// package becomes eligible for admission.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Category groups packages into build layers; foundational categories
	// build before dependents when priorities tie.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// SpecName selects the decision policy for the package's build job.
	// Empty means the orchestrator default.
	SpecName string `json:"spec_name,omitempty" yaml:"spec_name,omitempty"`

	// Description seeds the first agent instruction.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// PackageState is a queue entry's package plus its mutable build status.
// The status is owned exclusively by the orchestrator; build jobs only
// report terminal outcomes.
type PackageState struct {
	Package Package     `json:"package" yaml:"package"`
	Status  BuildStatus `json:"status" yaml:"status"`

	// EnqueuedAt is when the package entered the queue.
	EnqueuedAt time.Time `json:"enqueued_at" yaml:"enqueued_at"`

	// FinishedAt is set when the package reaches a terminal status.
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	// FailureReason records why a package failed, for operator inspection.
	FailureReason string `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
}

// BuildOutcome is a build job's terminal report back to the orchestrator.
type BuildOutcome struct {
	// PackageName identifies the package the job built.
	PackageName string `json:"package_name"`

	// Published reports whether the package reached the registry.
	Published bool `json:"published"`

	// FailureReason explains a failed outcome.
	FailureReason string `json:"failure_reason,omitempty"`

	// Steps is how many engine steps completed before the terminal outcome.
	Steps int `json:"steps"`
}
