package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

// Schedule contains the cron-dispatch activities.
type Schedule struct {
	db       DB
	services *core.Services
	logger   zerolog.Logger
}

func NewSchedule(db DB, services *core.Services, logger zerolog.Logger) *Schedule {
	return &Schedule{db: db, services: services, logger: logger.With().Str("component", "schedule").Logger()}
}

// DueConfig is a config whose cron schedule has fired since its last run.
type DueConfig struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	ExecutionMode string `json:"execution_mode"`
}

// ListDueConfigs evaluates every enabled scheduled config against now. The
// anchor for the next-fire computation is the last completed run, or the
// config's creation when it has never run. A config with an open log is left
// alone; the lifecycle guards would reject the request anyway.
func (a *Schedule) ListDueConfigs(ctx context.Context, now time.Time) ([]DueConfig, error) {
	rows, err := a.db.Query(ctx,
		`SELECT c.id, c.user_id, c.execution_mode, c.schedule, c.timezone, COALESCE(c.last_run_at, c.created_at)
		 FROM backup_configs c
		 WHERE c.enabled AND c.schedule IS NOT NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM backup_logs l
		     WHERE l.config_id = c.id AND l.status IN ($1, $2)
		   )`,
		model.LogStatusRequested, model.LogStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list scheduled configs: %w", err)
	}
	defer rows.Close()

	var due []DueConfig
	for rows.Next() {
		var d DueConfig
		var schedule, timezone string
		var anchor time.Time
		if err := rows.Scan(&d.ID, &d.UserID, &d.ExecutionMode, &schedule, &timezone, &anchor); err != nil {
			return nil, fmt.Errorf("scan scheduled config: %w", err)
		}

		fire, err := nextFire(schedule, timezone, anchor)
		if err != nil {
			// Validation rejects bad schedules at write time; a row that
			// slips through is logged and skipped, never fatal to the sweep.
			a.logger.Error().Err(err).Str("config_id", d.ID).Msg("unparseable schedule")
			continue
		}
		if !fire.After(now) {
			due = append(due, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled configs: %w", err)
	}
	return due, nil
}

// RequestScheduledRun requests a run for a due config through the same path
// as a manual trigger, so the duplicate-request and conflict guards apply.
func (a *Schedule) RequestScheduledRun(ctx context.Context, due DueConfig) error {
	_, err := a.services.BackupConfig.RequestRun(ctx, due.UserID, due.ID)
	return err
}

func nextFire(schedule, timezone string, anchor time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}

	return spec.Next(anchor.In(loc)), nil
}
