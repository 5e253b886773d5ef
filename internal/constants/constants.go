// Package constants provides shared constants for the Fabrica build factory.
// Centralizing these values keeps defaults consistent across config, CLI,
// and workflow code.
package constants

import "time"

// Directory and file layout constants.
const (
	// FabricaHome is the name of the per-user state directory (~/.fabrica).
	FabricaHome = ".fabrica"

	// CheckpointsDir is the subdirectory holding per-package checkpoints.
	CheckpointsDir = "checkpoints"

	// AuditLogFileName is the append-only audit record file.
	AuditLogFileName = "audit.yaml"

	// LogsDir is the subdirectory holding CLI log files.
	LogsDir = "logs"

	// CLILogFileName is the rotating CLI log file.
	CLILogFileName = "fabrica.log"
)

// Log rotation settings for the CLI log file.
const (
	// LogMaxSizeMB is the maximum size of a log file before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is how many rotated files to keep.
	LogMaxBackups = 3

	// LogMaxAgeDays is how long rotated files are retained.
	LogMaxAgeDays = 30

	// LogCompress controls gzip compression of rotated files.
	LogCompress = true
)

// Default timeouts and limits.
const (
	// DefaultAgentTimeout bounds a single CLI agent invocation. Complex
	// implementation steps can take a long time.
	DefaultAgentTimeout = 30 * time.Minute

	// DefaultGitTimeout bounds a single git operation.
	DefaultGitTimeout = 2 * time.Minute

	// DefaultRegistryTimeout bounds a package-registry operation.
	DefaultRegistryTimeout = 5 * time.Minute

	// DefaultMaxConcurrent is the ceiling on simultaneously building packages.
	DefaultMaxConcurrent = 4

	// DefaultWorktreeParallel is the ceiling on concurrent task worktrees
	// (and agent subprocesses) within one package build.
	DefaultWorktreeParallel = 4

	// DefaultRetryCeiling is how many times a spec re-requests failed work
	// before finalizing with a terminal annotation.
	DefaultRetryCeiling = 3

	// RateLimitBuffer is the fixed safety margin added to provider-suggested
	// retry delays.
	RateLimitBuffer = 5 * time.Second
)

// Temporal wiring constants.
const (
	// TaskQueue is the Temporal task queue all Fabrica workflows and
	// activities run on.
	TaskQueue = "fabrica-build"

	// OrchestratorWorkflowID is the fixed workflow ID enforcing the
	// one-orchestrator-per-deployment rule.
	OrchestratorWorkflowID = "fabrica-orchestrator"
)

// Signal and query names on the orchestrator workflow.
const (
	// SignalEnqueue delivers a new package submission.
	SignalEnqueue = "fabrica.enqueue"

	// SignalEmergencyStop halts new admissions and drains in-flight builds.
	SignalEmergencyStop = "fabrica.emergency-stop"

	// SignalApproval delivers a publish approval to a package build workflow.
	SignalApproval = "fabrica.approval"

	// QueryQueueStatus returns a snapshot of the build queue.
	QueryQueueStatus = "fabrica.queue-status"
)
