package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
)

// Client wraps the Temporal client with the orchestrator's operations. All
// CLI commands talk to the running factory through it.
type Client struct {
	temporal client.Client
	logger   zerolog.Logger
}

// Dial connects to the Temporal service named in the configuration.
func Dial(cfg config.TemporalConfig, logger zerolog.Logger) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return &Client{temporal: c, logger: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.temporal.Close()
}

// StartOrchestrator launches the continuous build workflow under its fixed
// workflow ID. Starting while a run is already active is a no-op, which is
// what makes the orchestrator a singleton; once a run has closed, starting
// again launches a fresh instance under the same ID.
func (c *Client) StartOrchestrator(ctx context.Context, packages []domain.Package) error {
	_, err := c.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        constants.OrchestratorWorkflowID,
		TaskQueue: constants.TaskQueue,
		// ALLOW_DUPLICATE still rejects a start while a run is active; the
		// stricter policies would also block restarts after a drain closed
		// the previous run.
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, (&Workflows{}).ContinuousBuildWorkflow, OrchestratorInput{Packages: packages})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if stderrors.As(err, &already) {
			c.logger.Info().Msg("orchestrator already running")
			return nil
		}
		return fmt.Errorf("start orchestrator: %w", err)
	}
	c.logger.Info().Str("workflow_id", constants.OrchestratorWorkflowID).Msg("orchestrator started")
	return nil
}

// Enqueue submits a package to the running orchestrator.
func (c *Client) Enqueue(ctx context.Context, pkg domain.Package) error {
	err := c.temporal.SignalWorkflow(ctx, constants.OrchestratorWorkflowID, "", constants.SignalEnqueue, pkg)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", pkg.Name, err)
	}
	return nil
}

// EmergencyStop tells the orchestrator to stop admitting and drain.
func (c *Client) EmergencyStop(ctx context.Context) error {
	err := c.temporal.SignalWorkflow(ctx, constants.OrchestratorWorkflowID, "", constants.SignalEmergencyStop, nil)
	if err != nil {
		return fmt.Errorf("emergency stop: %w", err)
	}
	return nil
}

// Approve delivers a publish approval (or rejection) to a package's build
// workflow.
func (c *Client) Approve(ctx context.Context, packageName string, approved bool, note string) error {
	err := c.temporal.SignalWorkflow(ctx, BuildWorkflowID(packageName), "",
		constants.SignalApproval, ApprovalSignal{Approved: approved, Note: note})
	if err != nil {
		return fmt.Errorf("approve %s: %w", packageName, err)
	}
	return nil
}

// QueueStatus queries the orchestrator for its queue snapshot.
func (c *Client) QueueStatus(ctx context.Context) (QueueSnapshot, error) {
	resp, err := c.temporal.QueryWorkflow(ctx, constants.OrchestratorWorkflowID, "", constants.QueryQueueStatus)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("query queue status: %w", err)
	}
	var snap QueueSnapshot
	if err := resp.Get(&snap); err != nil {
		return QueueSnapshot{}, fmt.Errorf("decode queue status: %w", err)
	}
	return snap, nil
}
