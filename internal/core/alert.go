package core

import (
	"context"
	"fmt"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// AlertService is the lifecycle failure sink. Alerts are append-only except
// for acknowledgment.
type AlertService struct {
	db DB
}

func NewAlertService(db DB) *AlertService {
	return &AlertService{db: db}
}

func (s *AlertService) Create(ctx context.Context, userID string, configID *string, alertType, message string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO alerts (id, user_id, config_id, type, message, acknowledged, created_at) VALUES ($1, $2, $3, $4, $5, false, now())`,
		platform.NewID(), userID, configID, alertType, message,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *AlertService) ListByUser(ctx context.Context, userID string, unacknowledgedOnly bool) ([]model.Alert, error) {
	query := `SELECT id, user_id, config_id, type, message, acknowledged, created_at FROM alerts WHERE user_id = $1`
	if unacknowledgedOnly {
		query += ` AND NOT acknowledged`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.ConfigID, &a.Type, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge marks an alert acknowledged. Idempotent.
func (s *AlertService) Acknowledge(ctx context.Context, userID, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE alerts SET acknowledged = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}
