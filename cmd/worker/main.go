package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/backhaul/internal/activity"
	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/db"
	"github.com/edvin/backhaul/internal/events"
	"github.com/edvin/backhaul/internal/logging"
	"github.com/edvin/backhaul/internal/metrics"
	"github.com/edvin/backhaul/internal/storage"
	"github.com/edvin/backhaul/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	store := storage.NewS3Store(logger, storage.S3Options{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	// The worker has no API surface, so events published here fan out to
	// nobody locally; the hub still satisfies the service wiring.
	hub := events.NewHub(logger)
	services := core.NewServices(pool, store, hub, tc, cfg)

	w := worker.New(tc, core.TaskQueue, worker.Options{})

	// Register activities
	w.RegisterActivity(activity.NewMaintenance(services, cfg))
	w.RegisterActivity(activity.NewReconcile(pool, services))
	w.RegisterActivity(activity.NewSchedule(pool, services, logger))
	w.RegisterActivity(activity.NewServerBackup(services, store, logger))

	// Register workflows
	w.RegisterWorkflow(workflow.SweepAgentPresenceWorkflow)
	w.RegisterWorkflow(workflow.TimeoutStaleBackupsWorkflow)
	w.RegisterWorkflow(workflow.ReconcileStorageWorkflow)
	w.RegisterWorkflow(workflow.DispatchScheduledBackupsWorkflow)
	w.RegisterWorkflow(workflow.RunServerBackupWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Register cron schedules. Errors for already-existing schedules are
	// ignored so that re-deploys do not fail.
	registerCronSchedules(ctx, tc, core.TaskQueue, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			id:       "agent-presence-sweep-cron",
			cron:     "* * * * *",
			workflow: workflow.SweepAgentPresenceWorkflow,
		},
		{
			id:       "scheduled-backup-dispatch-cron",
			cron:     "* * * * *",
			workflow: workflow.DispatchScheduledBackupsWorkflow,
		},
		{
			id:       "backup-timeout-sweep-cron",
			cron:     "*/5 * * * *",
			workflow: workflow.TimeoutStaleBackupsWorkflow,
		},
		{
			id:       "storage-reconcile-cron",
			cron:     "0 4 * * *",
			workflow: workflow.ReconcileStorageWorkflow,
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
				logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
			} else {
				logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
			}
		} else {
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
}
