package model

import "time"

// BackupSource describes one directory to back up, with optional glob filters.
type BackupSource struct {
	Path    string   `json:"path"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Destination is the object-storage target for a config. When ExecutionMode
// is agent and all fields are empty, the server-managed default bucket is used.
type Destination struct {
	Bucket string `json:"bucket,omitempty"`
	Region string `json:"region,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

type BackupConfig struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	ExecutionMode string         `json:"execution_mode"`
	AgentID       *string        `json:"agent_id,omitempty"`
	Sources       []BackupSource `json:"sources"`
	Destination   Destination    `json:"destination"`
	Schedule      *string        `json:"schedule,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	Method        string         `json:"method"`
	Compression   bool           `json:"compression"`
	Encryption    bool           `json:"encryption"`
	RetentionDays int            `json:"retention_days"`
	Enabled       bool           `json:"enabled"`
	// RequestedAt marks a pending manual run. It stays set until the run
	// reaches a terminal state; the poll never clears it.
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	ExecutionModeAgent  = "agent"
	ExecutionModeServer = "server"
)

const (
	MethodArchive = "archive"
	MethodRsync   = "rsync"
	MethodRclone  = "rclone"
)

// DirectUpload reports whether the method streams straight to object storage
// and therefore needs a scoped upload credential on every poll.
func (c *BackupConfig) DirectUpload() bool {
	return c.Method == MethodRsync || c.Method == MethodRclone
}
