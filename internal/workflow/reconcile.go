package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/backhaul/internal/core"
)

// ReconcileStorageWorkflow runs daily and checks every user's completed logs
// against storage reality. Only logs whose artifact is confirmed gone are
// downgraded to failed, which also raises the verification alert; logs whose
// stat failed in transit are left alone until a sweep can reach storage.
// A failure for one user does not stop the batch.
func ReconcileStorageWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var userIDs []string
	if err := workflow.ExecuteActivity(ctx, "ListUsersWithCompletedBackups").Get(ctx, &userIDs); err != nil {
		return err
	}

	for _, userID := range userIDs {
		var report core.ReconcileReport
		if err := workflow.ExecuteActivity(ctx, "ReconcileUser", userID).Get(ctx, &report); err != nil {
			logger.Error("reconcile failed for user", "userID", userID, "error", err)
			continue
		}

		if report.Unreachable > 0 {
			logger.Warn("storage unreachable for some logs, skipping them",
				"userID", userID, "unreachable", report.Unreachable)
		}
		if len(report.MissingLogs) == 0 {
			continue
		}

		var downgraded int64
		if err := workflow.ExecuteActivity(ctx, "MarkLogsFailed", report.MissingLogs).Get(ctx, &downgraded); err != nil {
			logger.Error("downgrade failed for user", "userID", userID, "error", err)
			continue
		}
		logger.Info("downgraded unverified backups",
			"userID", userID, "missing", report.Missing, "downgraded", downgraded)
	}

	return nil
}
