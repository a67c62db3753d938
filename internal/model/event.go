package model

import "time"

// Event is a best-effort lifecycle notification published to subscribed
// clients. Delivery is never awaited and never affects correctness.
type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	ConfigID string    `json:"config_id,omitempty"`
	LogID    string    `json:"log_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

const (
	EventBackupRequested = "backup.requested"
	EventBackupStarted   = "backup.started"
	EventBackupCompleted = "backup.completed"
	EventBackupFailed    = "backup.failed"
)
