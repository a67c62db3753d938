package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SweepAgentPresenceWorkflow runs every minute: agents silent past the
// threshold go offline, and configs pointing at deleted agents are repaired.
func SweepAgentPresenceWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var offlined int64
	if err := workflow.ExecuteActivity(ctx, "SweepAgentPresence").Get(ctx, &offlined); err != nil {
		return err
	}
	if offlined > 0 {
		logger.Info("marked silent agents offline", "count", offlined)
	}

	var repaired int64
	if err := workflow.ExecuteActivity(ctx, "RepairOrphanedConfigs").Get(ctx, &repaired); err != nil {
		return err
	}
	if repaired > 0 {
		logger.Info("repaired orphaned configs", "count", repaired)
	}

	return nil
}

// TimeoutStaleBackupsWorkflow sweeps requested and running logs older than
// the configured window into timeout.
func TimeoutStaleBackupsWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var timedOut int64
	if err := workflow.ExecuteActivity(ctx, "TimeoutStaleBackups").Get(ctx, &timedOut); err != nil {
		return err
	}

	logger := workflow.GetLogger(ctx)
	if timedOut > 0 {
		logger.Info("timed out stale backups", "count", timedOut)
	}
	return nil
}
