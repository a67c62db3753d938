package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/backhaul/internal/model"
)

// Daemon is the agent's long-running loop: heartbeats on one ticker, work
// polling on another. Backup runs execute sequentially; the daemon is a
// single worker by design of the one-open-log-per-config rule.
type Daemon struct {
	cfg     *Config
	client  *Client
	runner  *Runner
	logger  zerolog.Logger
	version string
}

func NewDaemon(cfg *Config, client *Client, logger zerolog.Logger, version string) *Daemon {
	return &Daemon{
		cfg:     cfg,
		client:  client,
		runner:  NewRunner(logger),
		logger:  logger.With().Str("component", "daemon").Logger(),
		version: version,
	}
}

// Run blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	// First contact up front so a bad token fails fast.
	if err := d.client.Heartbeat(ctx, d.version, d.cfg.Platform); err != nil {
		return fmt.Errorf("initial heartbeat: %w", err)
	}
	d.logger.Info().Str("server", d.cfg.ServerURL).Msg("agent connected")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := d.client.Heartbeat(ctx, d.version, d.cfg.Platform); err != nil {
					d.logger.Error().Err(err).Msg("heartbeat failed")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				d.pollOnce(ctx)
			}
		}
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// pollOnce fetches assignments and pending assessments and works through
// them. Errors are logged and retried on the next tick.
func (d *Daemon) pollOnce(ctx context.Context) {
	configs, err := d.client.PollConfigs(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("poll configs failed")
	} else {
		for _, pc := range configs {
			if d.shouldRun(pc) {
				d.runBackup(ctx, pc.Config)
			}
		}
	}

	assessments, err := d.client.PollAssessments(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("poll assessments failed")
		return
	}
	for _, a := range assessments {
		d.runAssessment(ctx, a)
	}
}

// shouldRun decides whether this poll cycle should execute a config. A
// pending request or a requested log means yes; a log already running means
// another cycle (or crashed run awaiting timeout) holds the slot.
func (d *Daemon) shouldRun(pc PolledConfig) bool {
	if pc.Config == nil || !pc.Config.Enabled {
		return false
	}
	if pc.OpenLog != nil && pc.OpenLog.Status == model.LogStatusRunning {
		return false
	}
	return pc.RunPending || pc.OpenLog != nil
}

func (d *Daemon) runBackup(ctx context.Context, cfg *model.BackupConfig) {
	filename := cfg.Name + ".tar.gz"

	started, err := d.client.StartBackup(ctx, cfg.ID, filename)
	if err != nil {
		// Conflicts are expected when a previous claim is still settling.
		d.logger.Warn().Err(err).Str("config", cfg.ID).Msg("start backup rejected")
		return
	}

	report := d.runner.Run(ctx, cfg, started.Credential)

	if _, err := d.client.CompleteBackup(ctx, started.Log.ID, report); err != nil {
		d.logger.Error().Err(err).Str("log", started.Log.ID).Msg("complete backup failed")
		return
	}
	d.logger.Info().Str("config", cfg.ID).Str("log", started.Log.ID).
		Str("status", report.Status).Msg("backup reported")
}

func (d *Daemon) runAssessment(ctx context.Context, a model.SizeAssessment) {
	res, err := AssessSize(ctx, a.Paths)

	report := AssessmentReport{}
	if err != nil {
		report.Error = err.Error()
	} else {
		report.TotalBytes = res.TotalBytes
		report.TotalFiles = res.TotalFiles
	}

	if err := d.client.ReportAssessment(ctx, a.ID, report); err != nil {
		d.logger.Error().Err(err).Str("assessment", a.ID).Msg("report assessment failed")
		return
	}
	d.logger.Info().Str("assessment", a.ID).
		Int64("bytes", report.TotalBytes).Int64("files", report.TotalFiles).
		Msg("assessment reported")
}
