package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
	"github.com/edvin/backhaul/internal/storage"
)

// verifyTimeout bounds the storage stat on the completion hot path. A
// deadline expiry counts as "not verified", never as verified.
const verifyTimeout = 10 * time.Second

// reconcileParallelism bounds concurrent stat calls during a batch sweep.
const reconcileParallelism = 8

// VerificationService is the trust boundary: agents are never believed on
// their own word. Completion claims are checked against storage before they
// are committed, and historical records are batch-reconciled for drift.
type VerificationService struct {
	db    DB
	store storage.ObjectStore
}

func NewVerificationService(db DB, store storage.ObjectStore) *VerificationService {
	return &VerificationService{db: db, store: store}
}

// VerifyLog confirms the log's recorded s3_path exists in storage. Returns
// false with a nil error for a clean "missing" result; transport errors also
// report false, with the error attached for logging.
func (s *VerificationService) VerifyLog(ctx context.Context, log *model.BackupLog) (bool, error) {
	if log.S3Path == nil || *log.S3Path == "" {
		return false, nil
	}

	statCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	_, err := s.store.Stat(statCtx, *log.S3Path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", *log.S3Path, err)
	}
	return true, nil
}

// ReconcileReport summarizes a batch reconciliation of completed logs
// against storage reality. Missing means storage answered and the object is
// gone; unreachable means the stat itself failed, so nothing is known about
// the object. Only missing logs are safe to downgrade.
type ReconcileReport struct {
	TotalCompleted  int      `json:"total_completed"`
	Verified        int      `json:"verified"`
	Missing         int      `json:"missing"`
	Unreachable     int      `json:"unreachable"`
	MissingLogs     []string `json:"missing_logs"`
	UnreachableLogs []string `json:"unreachable_logs,omitempty"`
}

// Reconcile compares all completed logs for a user against storage. It
// catches drift the synchronous check cannot: out-of-band deletions, eventual
// consistency windows, bugs. A stat transport error marks the log
// unreachable, never missing, and the batch continues.
func (s *VerificationService) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, s3_path FROM backup_logs
		 WHERE user_id = $1 AND status = $2 AND s3_path IS NOT NULL ORDER BY created_at`,
		userID, model.LogStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list completed logs for user %s: %w", userID, err)
	}
	defer rows.Close()

	type candidate struct {
		id   string
		path string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.path); err != nil {
			return nil, fmt.Errorf("scan completed log: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed logs: %w", err)
	}

	report := &ReconcileReport{TotalCompleted: len(candidates)}

	const (
		statVerified = iota
		statMissing
		statUnreachable
	)
	results := make([]int, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)
	for i, c := range candidates {
		g.Go(func() error {
			statCtx, cancel := context.WithTimeout(gctx, verifyTimeout)
			defer cancel()
			_, err := s.store.Stat(statCtx, c.path)
			switch {
			case err == nil:
				results[i] = statVerified
			case errors.Is(err, storage.ErrObjectNotFound):
				results[i] = statMissing
			default:
				results[i] = statUnreachable
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile user %s: %w", userID, err)
	}

	for i, c := range candidates {
		switch results[i] {
		case statMissing:
			report.Missing++
			report.MissingLogs = append(report.MissingLogs, c.id)
		case statUnreachable:
			report.Unreachable++
			report.UnreachableLogs = append(report.UnreachableLogs, c.id)
		default:
			report.Verified++
		}
	}
	return report, nil
}

// MarkUnverifiedAsFailed converts a reconciliation finding into a permanent
// status correction. Only logs still in completed are downgraded; the
// verification-failed error is appended, never replacing prior errors.
func (s *VerificationService) MarkUnverifiedAsFailed(ctx context.Context, logIDs []string) (int64, error) {
	var downgraded int64
	for _, id := range logIDs {
		var userID string
		var configID *string
		var rawErrors []byte
		err := s.db.QueryRow(ctx,
			`SELECT user_id, config_id, errors FROM backup_logs WHERE id = $1 AND status = $2`,
			id, model.LogStatusCompleted,
		).Scan(&userID, &configID, &rawErrors)
		if err != nil {
			// Not found or no longer completed; nothing to correct.
			continue
		}

		var logErrors []model.BackupError
		if len(rawErrors) > 0 {
			if err := json.Unmarshal(rawErrors, &logErrors); err != nil {
				return downgraded, fmt.Errorf("decode errors for log %s: %w", id, err)
			}
		}
		logErrors = append(logErrors, model.BackupError{
			Kind:    model.ErrorKindVerificationFailed,
			Message: "backup artifact missing from storage at reconciliation",
		})
		encoded, err := json.Marshal(logErrors)
		if err != nil {
			return downgraded, fmt.Errorf("encode errors for log %s: %w", id, err)
		}

		tag, err := s.db.Exec(ctx,
			`UPDATE backup_logs SET status = $1, errors = $2, updated_at = now() WHERE id = $3 AND status = $4`,
			model.LogStatusFailed, encoded, id, model.LogStatusCompleted,
		)
		if err != nil {
			return downgraded, fmt.Errorf("downgrade log %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		downgraded++

		_, err = s.db.Exec(ctx,
			`INSERT INTO alerts (id, user_id, config_id, type, message, acknowledged, created_at) VALUES ($1, $2, $3, $4, $5, false, now())`,
			platform.NewID(), userID, configID, model.AlertTypeVerificationFailed,
			fmt.Sprintf("backup %s is missing from storage and was marked failed", id),
		)
		if err != nil {
			return downgraded, fmt.Errorf("create downgrade alert for log %s: %w", id, err)
		}
	}
	return downgraded, nil
}
