package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/events"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// BackupLogService owns the backup lifecycle state machine:
//
//	requested -> running -> {completed, failed}
//	requested|running -> timeout        (sweep only)
//	completed -> failed                 (verification downgrade only)
//
// Every transition is guarded so replayed reports commute and overlapping
// polls cannot start a second concurrent run for the same config.
type BackupLogService struct {
	db     DB
	upload *UploadService
	verify *VerificationService
	alerts *AlertService
	hub    *events.Hub
}

func NewBackupLogService(db DB, upload *UploadService, verify *VerificationService, alerts *AlertService, hub *events.Hub) *BackupLogService {
	return &BackupLogService{db: db, upload: upload, verify: verify, alerts: alerts, hub: hub}
}

const logColumns = `id, config_id, user_id, agent_id, status, start_time, end_time,
	files_processed, files_skipped, total_bytes, bytes_transferred, duration_secs, s3_path, errors, created_at, updated_at`

func scanLog(row interface{ Scan(dest ...any) error }) (model.BackupLog, error) {
	var l model.BackupLog
	var rawErrors []byte
	err := row.Scan(&l.ID, &l.ConfigID, &l.UserID, &l.AgentID, &l.Status, &l.StartTime, &l.EndTime,
		&l.FilesProcessed, &l.FilesSkipped, &l.TotalBytes, &l.BytesTransferred,
		&l.DurationSecs, &l.S3Path, &rawErrors, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	if len(rawErrors) > 0 {
		if err := json.Unmarshal(rawErrors, &l.Errors); err != nil {
			return l, fmt.Errorf("decode log errors: %w", err)
		}
	}
	return l, nil
}

func (s *BackupLogService) GetByID(ctx context.Context, id string) (*model.BackupLog, error) {
	l, err := scanLog(s.db.QueryRow(ctx,
		`SELECT `+logColumns+` FROM backup_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup log %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get backup log %s: %w", id, err)
	}
	return &l, nil
}

// GetOpenForConfig returns the unterminated log for a config, or nil.
func (s *BackupLogService) GetOpenForConfig(ctx context.Context, configID string) (*model.BackupLog, error) {
	l, err := scanLog(s.db.QueryRow(ctx,
		`SELECT `+logColumns+` FROM backup_logs WHERE config_id = $1 AND status IN ($2, $3) ORDER BY created_at LIMIT 1`,
		configID, model.LogStatusRequested, model.LogStatusRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open log for config %s: %w", configID, err)
	}
	return &l, nil
}

// ListByUser returns logs with cursor pagination, newest first.
func (s *BackupLogService) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]model.BackupLog, bool, error) {
	query := `SELECT ` + logColumns + ` FROM backup_logs WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND id < $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backup logs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var logs []model.BackupLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan backup log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backup logs: %w", err)
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}

// OpenRequested creates a requested log for a config, or returns the existing
// unterminated one. Requesting twice before the agent picks up is a no-op,
// which makes the manual-run endpoint safe under retry.
func (s *BackupLogService) OpenRequested(ctx context.Context, cfg *model.BackupConfig) (*model.BackupLog, error) {
	if open, err := s.GetOpenForConfig(ctx, cfg.ID); err != nil {
		return nil, err
	} else if open != nil {
		return open, nil
	}

	now := time.Now()
	log := &model.BackupLog{
		ID:        platform.NewID(),
		ConfigID:  &cfg.ID,
		UserID:    cfg.UserID,
		AgentID:   cfg.AgentID,
		Status:    model.LogStatusRequested,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_logs (id, config_id, user_id, agent_id, status, start_time, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.ConfigID, log.UserID, log.AgentID, log.Status, log.StartTime, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race to another request; the open log wins.
			if open, openErr := s.GetOpenForConfig(ctx, cfg.ID); openErr == nil && open != nil {
				return open, nil
			}
			return nil, fmt.Errorf("config %s run was requested concurrently: %w", cfg.ID, ErrConflict)
		}
		return nil, fmt.Errorf("insert requested log: %w", err)
	}
	return log, nil
}

// StartResult carries what an agent needs to execute a started run.
type StartResult struct {
	Log        *model.BackupLog  `json:"log"`
	Credential *UploadCredential `json:"credential"`
}

// Start transitions a config's pending request into a running log, or opens a
// fresh running log when no request is pending. The s3 path is reserved and
// persisted before any upload begins so even an upload that never completes
// leaves a trail for reconciliation. At most one unterminated log may exist
// per config; a concurrent running log rejects the start.
func (s *BackupLogService) Start(ctx context.Context, agent *model.Agent, configID, filename string) (*StartResult, error) {
	var cfgUserID, cfgMode string
	var cfgAgentID *string
	var cfgEnabled bool
	err := s.db.QueryRow(ctx,
		`SELECT user_id, execution_mode, agent_id, enabled FROM backup_configs WHERE id = $1`, configID,
	).Scan(&cfgUserID, &cfgMode, &cfgAgentID, &cfgEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup config %s: %w", configID, ErrNotFound)
		}
		return nil, fmt.Errorf("load config %s: %w", configID, err)
	}

	if cfgMode != model.ExecutionModeAgent || cfgAgentID == nil || *cfgAgentID != agent.ID {
		return nil, fmt.Errorf("config %s is not assigned to agent %s: %w", configID, agent.ID, ErrForbidden)
	}
	if !cfgEnabled {
		return nil, fmt.Errorf("config %s is disabled: %w", configID, ErrValidation)
	}

	scopedPath := s.upload.ScopedPath(cfgUserID, agent.ID, configID, filename)
	now := time.Now()

	open, err := s.GetOpenForConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	var log *model.BackupLog
	switch {
	case open != nil && open.Status == model.LogStatusRunning:
		return nil, fmt.Errorf("config %s already has a running backup (log %s): %w", configID, open.ID, ErrConflict)

	case open != nil:
		// Claim the pending request. The status predicate guards against a
		// concurrent claim of the same log.
		tag, err := s.db.Exec(ctx,
			`UPDATE backup_logs SET status = $1, agent_id = $2, start_time = $3, s3_path = $4, updated_at = $3
			 WHERE id = $5 AND status = $6`,
			model.LogStatusRunning, agent.ID, now, scopedPath, open.ID, model.LogStatusRequested,
		)
		if err != nil {
			return nil, fmt.Errorf("claim requested log %s: %w", open.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("config %s backup was claimed concurrently: %w", configID, ErrConflict)
		}
		log = open
		log.Status = model.LogStatusRunning
		log.AgentID = &agent.ID
		log.StartTime = now
		log.S3Path = &scopedPath

	default:
		log = &model.BackupLog{
			ID:        platform.NewID(),
			ConfigID:  &configID,
			UserID:    cfgUserID,
			AgentID:   &agent.ID,
			Status:    model.LogStatusRunning,
			StartTime: now,
			S3Path:    &scopedPath,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO backup_logs (id, config_id, user_id, agent_id, status, start_time, s3_path, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			log.ID, log.ConfigID, log.UserID, log.AgentID, log.Status, log.StartTime, log.S3Path, log.CreatedAt, log.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("config %s backup was opened concurrently: %w", configID, ErrConflict)
			}
			return nil, fmt.Errorf("insert running log: %w", err)
		}
	}

	credential, err := s.upload.Issue(ctx, scopedPath)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(cfgUserID, model.Event{
		Type:     model.EventBackupStarted,
		ConfigID: configID,
		LogID:    log.ID,
		Status:   log.Status,
	})

	return &StartResult{Log: log, Credential: credential}, nil
}

// CompletionReport is an agent's terminal claim for a run.
type CompletionReport struct {
	Status           string
	FilesProcessed   int64
	FilesSkipped     int64
	TotalBytes       int64
	BytesTransferred int64
	Errors           []model.BackupError
}

// Complete applies an agent's completion report. A claimed completion is
// verified against storage before it is committed; a failed check downgrades
// to failed with a verification-failed error appended. Reports for terminal
// logs are acknowledged as no-ops so at-least-once delivery never
// double-counts or duplicates alerts. Reports from an agent that does not own
// the log are rejected with no state change.
func (s *BackupLogService) Complete(ctx context.Context, agent *model.Agent, logID string, report CompletionReport) (*model.BackupLog, error) {
	if report.Status != model.LogStatusCompleted && report.Status != model.LogStatusFailed {
		return nil, fmt.Errorf("completion status must be completed or failed, got %q: %w", report.Status, ErrValidation)
	}

	log, err := s.GetByID(ctx, logID)
	if err != nil {
		return nil, err
	}

	if log.UserID != agent.UserID || log.AgentID == nil || *log.AgentID != agent.ID {
		return nil, fmt.Errorf("log %s is not owned by agent %s: %w", logID, agent.ID, ErrForbidden)
	}

	return s.finish(ctx, log, report)
}

// finish commits a terminal report for an already-authorized log.
func (s *BackupLogService) finish(ctx context.Context, log *model.BackupLog, report CompletionReport) (*model.BackupLog, error) {
	logID := log.ID

	if log.Terminal() {
		return log, nil
	}

	now := time.Now()
	duration := int64(now.Sub(log.StartTime).Seconds())

	finalStatus := report.Status
	logErrors := report.Errors

	if finalStatus == model.LogStatusCompleted {
		verified, verr := s.verify.VerifyLog(ctx, log)
		if !verified {
			msg := "uploaded artifact not found in storage"
			if verr != nil {
				msg = "storage verification did not succeed: " + verr.Error()
			}
			finalStatus = model.LogStatusFailed
			logErrors = append(logErrors, model.BackupError{
				Kind:    model.ErrorKindVerificationFailed,
				Message: msg,
			})
		}
	}

	var encodedErrors []byte
	if len(logErrors) > 0 {
		var err error
		encodedErrors, err = json.Marshal(logErrors)
		if err != nil {
			return nil, fmt.Errorf("encode log errors: %w", err)
		}
	}

	// The status predicate makes the transition exactly-once under replay.
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_logs SET status = $1, end_time = $2, duration_secs = $3,
		        files_processed = $4, files_skipped = $5, total_bytes = $6, bytes_transferred = $7,
		        errors = $8, updated_at = $2
		 WHERE id = $9 AND status IN ($10, $11)`,
		finalStatus, now, duration,
		report.FilesProcessed, report.FilesSkipped, report.TotalBytes, report.BytesTransferred,
		encodedErrors, logID, model.LogStatusRequested, model.LogStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("complete log %s: %w", logID, err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to another replay; the first write won.
		return s.GetByID(ctx, logID)
	}

	if log.ConfigID != nil {
		_, err = s.db.Exec(ctx,
			`UPDATE backup_configs SET requested_at = NULL, last_run_at = $1, updated_at = $1 WHERE id = $2`,
			now, *log.ConfigID,
		)
		if err != nil {
			return nil, fmt.Errorf("clear request on config %s: %w", *log.ConfigID, err)
		}
	}

	if finalStatus == model.LogStatusFailed {
		message := "backup failed"
		if len(logErrors) > 0 {
			message = logErrors[0].Message
		}
		if err := s.alerts.Create(ctx, log.UserID, log.ConfigID, model.AlertTypeBackupFailed, message); err != nil {
			return nil, err
		}
	}

	eventType := model.EventBackupCompleted
	if finalStatus == model.LogStatusFailed {
		eventType = model.EventBackupFailed
	}
	event := model.Event{Type: eventType, LogID: logID, Status: finalStatus}
	if log.ConfigID != nil {
		event.ConfigID = *log.ConfigID
	}
	s.hub.Publish(log.UserID, event)

	return s.GetByID(ctx, logID)
}

// StartServer opens a running log for a server-mode config, claiming a
// pending request when one exists. The log carries no agent; its path lives
// under the server segment of the user's prefix.
func (s *BackupLogService) StartServer(ctx context.Context, configID, filename string) (*model.BackupLog, error) {
	var cfgUserID, cfgMode string
	var cfgEnabled bool
	err := s.db.QueryRow(ctx,
		`SELECT user_id, execution_mode, enabled FROM backup_configs WHERE id = $1`, configID,
	).Scan(&cfgUserID, &cfgMode, &cfgEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup config %s: %w", configID, ErrNotFound)
		}
		return nil, fmt.Errorf("load config %s: %w", configID, err)
	}

	if cfgMode != model.ExecutionModeServer {
		return nil, fmt.Errorf("config %s is not server-executed: %w", configID, ErrValidation)
	}
	if !cfgEnabled {
		return nil, fmt.Errorf("config %s is disabled: %w", configID, ErrValidation)
	}

	scopedPath := s.upload.ServerScopedPath(cfgUserID, configID, filename)
	now := time.Now()

	open, err := s.GetOpenForConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	var log *model.BackupLog
	switch {
	case open != nil && open.Status == model.LogStatusRunning:
		return nil, fmt.Errorf("config %s already has a running backup (log %s): %w", configID, open.ID, ErrConflict)

	case open != nil:
		tag, err := s.db.Exec(ctx,
			`UPDATE backup_logs SET status = $1, start_time = $2, s3_path = $3, updated_at = $2
			 WHERE id = $4 AND status = $5`,
			model.LogStatusRunning, now, scopedPath, open.ID, model.LogStatusRequested,
		)
		if err != nil {
			return nil, fmt.Errorf("claim requested log %s: %w", open.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("config %s backup was claimed concurrently: %w", configID, ErrConflict)
		}
		log = open
		log.Status = model.LogStatusRunning
		log.StartTime = now
		log.S3Path = &scopedPath

	default:
		log = &model.BackupLog{
			ID:        platform.NewID(),
			ConfigID:  &configID,
			UserID:    cfgUserID,
			Status:    model.LogStatusRunning,
			StartTime: now,
			S3Path:    &scopedPath,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO backup_logs (id, config_id, user_id, status, start_time, s3_path, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			log.ID, log.ConfigID, log.UserID, log.Status, log.StartTime, log.S3Path, log.CreatedAt, log.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("config %s backup was opened concurrently: %w", configID, ErrConflict)
			}
			return nil, fmt.Errorf("insert running log: %w", err)
		}
	}

	s.hub.Publish(cfgUserID, model.Event{
		Type:     model.EventBackupStarted,
		ConfigID: configID,
		LogID:    log.ID,
		Status:   log.Status,
	})

	return log, nil
}

// CompleteServer commits the terminal report of a server-executed run. It
// refuses logs owned by an agent; those terminate only through Complete.
func (s *BackupLogService) CompleteServer(ctx context.Context, logID string, report CompletionReport) (*model.BackupLog, error) {
	if report.Status != model.LogStatusCompleted && report.Status != model.LogStatusFailed {
		return nil, fmt.Errorf("completion status must be completed or failed, got %q: %w", report.Status, ErrValidation)
	}

	log, err := s.GetByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log.AgentID != nil {
		return nil, fmt.Errorf("log %s belongs to agent %s: %w", logID, *log.AgentID, ErrForbidden)
	}

	return s.finish(ctx, log, report)
}

// TimeoutStale reclassifies requested and running logs older than the window
// as timeout. This is the defense against permanently requested jobs when an
// agent is offline; timeout is inferred, never agent-reported. Idempotent:
// a second sweep finds nothing left to transition.
func (s *BackupLogService) TimeoutStale(ctx context.Context, thresholdMinutes int) (int64, error) {
	if thresholdMinutes < 1 || thresholdMinutes > 1440 {
		return 0, fmt.Errorf("timeout window must be 1-1440 minutes, got %d: %w", thresholdMinutes, ErrValidation)
	}

	rows, err := s.db.Query(ctx,
		`UPDATE backup_logs SET status = $1, end_time = now(), updated_at = now()
		 WHERE status IN ($2, $3) AND start_time < now() - ($4 * interval '1 minute')
		 RETURNING config_id`,
		model.LogStatusTimeout, model.LogStatusRequested, model.LogStatusRunning, thresholdMinutes,
	)
	if err != nil {
		return 0, fmt.Errorf("timeout stale logs: %w", err)
	}
	defer rows.Close()

	var timedOut int64
	var configIDs []string
	for rows.Next() {
		var configID *string
		if err := rows.Scan(&configID); err != nil {
			return timedOut, fmt.Errorf("scan timed out log: %w", err)
		}
		timedOut++
		if configID != nil {
			configIDs = append(configIDs, *configID)
		}
	}
	if err := rows.Err(); err != nil {
		return timedOut, fmt.Errorf("iterate timed out logs: %w", err)
	}

	// A timed-out run also retires its pending request; otherwise a
	// returning agent would retry the request forever.
	if len(configIDs) > 0 {
		_, err := s.db.Exec(ctx,
			`UPDATE backup_configs SET requested_at = NULL, updated_at = now()
			 WHERE id = ANY($1) AND requested_at IS NOT NULL`,
			configIDs,
		)
		if err != nil {
			return timedOut, fmt.Errorf("clear requests for timed out configs: %w", err)
		}
	}
	return timedOut, nil
}
