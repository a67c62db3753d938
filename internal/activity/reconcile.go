package activity

import (
	"context"
	"fmt"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

// Reconcile contains the storage reconciliation activities.
type Reconcile struct {
	db       DB
	services *core.Services
}

func NewReconcile(db DB, services *core.Services) *Reconcile {
	return &Reconcile{db: db, services: services}
}

// ListUsersWithCompletedBackups returns the user IDs that have at least one
// completed log, the only population reconciliation can act on.
func (a *Reconcile) ListUsersWithCompletedBackups(ctx context.Context) ([]string, error) {
	rows, err := a.db.Query(ctx,
		`SELECT DISTINCT user_id FROM backup_logs WHERE status = $1`, model.LogStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list users with completed backups: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return userIDs, nil
}

// ReconcileUser checks one user's completed logs against storage.
func (a *Reconcile) ReconcileUser(ctx context.Context, userID string) (*core.ReconcileReport, error) {
	return a.services.Verify.Reconcile(ctx, userID)
}

// MarkLogsFailed downgrades the given completed logs to failed with a
// verification-failed error. Returns the number of rows downgraded.
func (a *Reconcile) MarkLogsFailed(ctx context.Context, logIDs []string) (int64, error) {
	return a.services.Verify.MarkUnverifiedAsFailed(ctx, logIDs)
}
