package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/backhaul/internal/activity"
	"github.com/edvin/backhaul/internal/model"
)

// RunServerBackupWorkflow executes one server-mode run end to end: open the
// log, pack and upload, commit the terminal report. An archive or upload
// failure still completes the log as failed so the alerting path fires; the
// workflow then returns the execution error.
func RunServerBackupWorkflow(ctx workflow.Context, configID string) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var log model.BackupLog
	if err := workflow.ExecuteActivity(ctx, "StartServerRun", configID).Get(ctx, &log); err != nil {
		return err
	}

	s3Path := ""
	if log.S3Path != nil {
		s3Path = *log.S3Path
	}

	// Packing large trees takes as long as it takes; only the attempt count
	// is bounded.
	execCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 4 * time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var result activity.ServerArchiveResult
	execErr := workflow.ExecuteActivity(execCtx, "ExecuteServerArchive", configID, s3Path).Get(ctx, &result)

	params := activity.CompleteServerRunParams{
		LogID:  log.ID,
		Status: model.LogStatusCompleted,
		Result: &result,
	}
	if execErr != nil {
		params.Status = model.LogStatusFailed
		params.Result = nil
		params.ErrorMessage = execErr.Error()
	}

	if err := workflow.ExecuteActivity(ctx, "CompleteServerRun", params).Get(ctx, nil); err != nil {
		logger.Error("failed to commit server run", "logID", log.ID, "error", err)
		return err
	}

	return execErr
}
