package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/backhaul/internal/activity"
)

// DispatchScheduledBackupsWorkflow runs every minute and requests a run for
// every config whose cron schedule has fired since its last run. Dispatch
// goes through the same request path as a manual trigger, so a config that
// is already requested or running is left untouched.
func DispatchScheduledBackupsWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var due []activity.DueConfig
	if err := workflow.ExecuteActivity(ctx, "ListDueConfigs", workflow.Now(ctx)).Get(ctx, &due); err != nil {
		return err
	}

	for _, cfg := range due {
		if err := workflow.ExecuteActivity(ctx, "RequestScheduledRun", cfg).Get(ctx, nil); err != nil {
			// One bad config must not starve the rest of the schedule.
			logger.Error("scheduled dispatch failed", "configID", cfg.ID, "error", err)
			continue
		}
		logger.Info("dispatched scheduled backup", "configID", cfg.ID, "mode", cfg.ExecutionMode)
	}

	return nil
}
