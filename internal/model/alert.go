package model

import "time"

type Alert struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ConfigID     *string   `json:"config_id,omitempty"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	AlertTypeBackupFailed       = "backup_failed"
	AlertTypeVerificationFailed = "verification_failed"
)
