package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/backhaul/internal/events"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// BackupConfigService manages backup configs and the manual-run request path.
type BackupConfigService struct {
	db   DB
	logs *BackupLogService
	tc   temporalclient.Client
	hub  *events.Hub
}

func NewBackupConfigService(db DB, logs *BackupLogService, tc temporalclient.Client, hub *events.Hub) *BackupConfigService {
	return &BackupConfigService{db: db, logs: logs, tc: tc, hub: hub}
}

const configColumns = `id, user_id, name, execution_mode, agent_id, sources, dest_bucket, dest_region, dest_prefix,
	schedule, timezone, method, compression, encryption, retention_days, enabled, requested_at, last_run_at, created_at, updated_at`

func scanConfig(row interface{ Scan(dest ...any) error }) (model.BackupConfig, error) {
	var c model.BackupConfig
	var sources []byte
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.ExecutionMode, &c.AgentID, &sources,
		&c.Destination.Bucket, &c.Destination.Region, &c.Destination.Prefix,
		&c.Schedule, &c.Timezone, &c.Method, &c.Compression, &c.Encryption,
		&c.RetentionDays, &c.Enabled, &c.RequestedAt, &c.LastRunAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &c.Sources); err != nil {
			return c, fmt.Errorf("decode config sources: %w", err)
		}
	}
	return c, nil
}

func (s *BackupConfigService) validate(ctx context.Context, cfg *model.BackupConfig) error {
	switch cfg.ExecutionMode {
	case model.ExecutionModeAgent:
		if cfg.AgentID == nil || *cfg.AgentID == "" {
			return fmt.Errorf("agent mode requires an agent reference: %w", ErrValidation)
		}
		var ownerID string
		err := s.db.QueryRow(ctx, `SELECT user_id FROM agents WHERE id = $1`, *cfg.AgentID).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("agent %s: %w", *cfg.AgentID, ErrNotFound)
			}
			return fmt.Errorf("look up agent %s: %w", *cfg.AgentID, err)
		}
		if ownerID != cfg.UserID {
			return fmt.Errorf("agent %s belongs to another user: %w", *cfg.AgentID, ErrForbidden)
		}
	case model.ExecutionModeServer:
		cfg.AgentID = nil
	default:
		return fmt.Errorf("unknown execution mode %q: %w", cfg.ExecutionMode, ErrValidation)
	}

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required: %w", ErrValidation)
	}

	if cfg.Schedule != nil && *cfg.Schedule != "" {
		if _, err := cron.ParseStandard(*cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", *cfg.Schedule, ErrValidation)
		}
	}

	return nil
}

func (s *BackupConfigService) Create(ctx context.Context, cfg *model.BackupConfig) error {
	if err := s.validate(ctx, cfg); err != nil {
		return err
	}

	sources, err := json.Marshal(cfg.Sources)
	if err != nil {
		return fmt.Errorf("encode config sources: %w", err)
	}

	if cfg.ID == "" {
		cfg.ID = platform.NewID()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO backup_configs (id, user_id, name, execution_mode, agent_id, sources, dest_bucket, dest_region, dest_prefix,
		        schedule, timezone, method, compression, encryption, retention_days, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		cfg.ID, cfg.UserID, cfg.Name, cfg.ExecutionMode, cfg.AgentID, sources,
		cfg.Destination.Bucket, cfg.Destination.Region, cfg.Destination.Prefix,
		cfg.Schedule, cfg.Timezone, cfg.Method, cfg.Compression, cfg.Encryption,
		cfg.RetentionDays, cfg.Enabled, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("backup config named %s already exists: %w", cfg.Name, ErrConflict)
		}
		return fmt.Errorf("insert backup config: %w", err)
	}
	return nil
}

func (s *BackupConfigService) Update(ctx context.Context, cfg *model.BackupConfig) error {
	existing, err := s.GetOwned(ctx, cfg.UserID, cfg.ID)
	if err != nil {
		return err
	}

	if err := s.validate(ctx, cfg); err != nil {
		return err
	}

	sources, err := json.Marshal(cfg.Sources)
	if err != nil {
		return fmt.Errorf("encode config sources: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE backup_configs SET name = $1, execution_mode = $2, agent_id = $3, sources = $4,
		        dest_bucket = $5, dest_region = $6, dest_prefix = $7, schedule = $8, timezone = $9,
		        method = $10, compression = $11, encryption = $12, retention_days = $13, enabled = $14, updated_at = now()
		 WHERE id = $15`,
		cfg.Name, cfg.ExecutionMode, cfg.AgentID, sources,
		cfg.Destination.Bucket, cfg.Destination.Region, cfg.Destination.Prefix,
		cfg.Schedule, cfg.Timezone, cfg.Method, cfg.Compression, cfg.Encryption,
		cfg.RetentionDays, cfg.Enabled, cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("update backup config %s: %w", cfg.ID, err)
	}

	cfg.CreatedAt = existing.CreatedAt
	return nil
}

func (s *BackupConfigService) GetByID(ctx context.Context, id string) (*model.BackupConfig, error) {
	c, err := scanConfig(s.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM backup_configs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup config %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get backup config %s: %w", id, err)
	}
	return &c, nil
}

// GetOwned fetches a config and enforces ownership.
func (s *BackupConfigService) GetOwned(ctx context.Context, userID, id string) (*model.BackupConfig, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("backup config %s: %w", id, ErrForbidden)
	}
	return c, nil
}

func (s *BackupConfigService) ListByUser(ctx context.Context, userID string) ([]model.BackupConfig, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+configColumns+` FROM backup_configs WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list backup configs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var configs []model.BackupConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup configs: %w", err)
	}
	return configs, nil
}

// ListAssignedToAgent returns all enabled agent-mode configs assigned to an
// agent, including those with a pending manual request. The poll does not
// clear requested_at; deduplication happens at the log layer.
func (s *BackupConfigService) ListAssignedToAgent(ctx context.Context, agentID string) ([]model.BackupConfig, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+configColumns+` FROM backup_configs
		 WHERE agent_id = $1 AND execution_mode = $2 AND enabled ORDER BY created_at`,
		agentID, model.ExecutionModeAgent)
	if err != nil {
		return nil, fmt.Errorf("list configs for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var configs []model.BackupConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup configs: %w", err)
	}
	return configs, nil
}

// Delete removes a config. Its logs are retained as orphaned history; the
// foreign key severs config_id to NULL.
func (s *BackupConfigService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM backup_configs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete backup config %s: %w", id, err)
	}
	return nil
}

// RequestRun requests an out-of-band execution. Agent mode marks the config
// requested and opens a requested log (no-op when a run is already in
// flight); server mode starts the server-side backup workflow. The server
// never executes agent work itself, it only signals intent.
func (s *BackupConfigService) RequestRun(ctx context.Context, userID, id string) (*model.BackupLog, error) {
	cfg, err := s.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("backup config %s is disabled: %w", id, ErrValidation)
	}

	switch cfg.ExecutionMode {
	case model.ExecutionModeAgent:
		_, err = s.db.Exec(ctx,
			`UPDATE backup_configs SET requested_at = COALESCE(requested_at, now()), updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return nil, fmt.Errorf("mark config %s requested: %w", id, err)
		}

		log, err := s.logs.OpenRequested(ctx, cfg)
		if err != nil {
			return nil, err
		}

		s.hub.Publish(userID, model.Event{
			Type:     model.EventBackupRequested,
			ConfigID: cfg.ID,
			LogID:    log.ID,
			Status:   log.Status,
		})
		return log, nil

	case model.ExecutionModeServer:
		_, err := s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
			ID:        "server-backup-" + cfg.ID,
			TaskQueue: TaskQueue,
		}, "RunServerBackupWorkflow", cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("start server backup workflow for %s: %w", cfg.ID, err)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown execution mode %q: %w", cfg.ExecutionMode, ErrValidation)
	}
}
