package model

import "time"

// BackupError is the normalized structured error stored on a log. Agents may
// report bare strings or objects; the boundary converts both into this shape.
type BackupError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

const ErrorKindVerificationFailed = "verification-failed"

// BackupLog is one execution attempt of a config. ConfigID is nullable so a
// log survives deletion of its config as orphaned history.
type BackupLog struct {
	ID       string  `json:"id"`
	ConfigID *string `json:"config_id,omitempty"`
	UserID   string  `json:"user_id"`
	AgentID  *string `json:"agent_id,omitempty"`
	Status   string  `json:"status"`
	// StartTime is the request time for a requested log; the agent's start
	// report overwrites it with the actual execution start.
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	FilesProcessed   int64      `json:"files_processed"`
	FilesSkipped     int64      `json:"files_skipped"`
	TotalBytes       int64      `json:"total_bytes"`
	BytesTransferred int64      `json:"bytes_transferred"`
	DurationSecs     *int64     `json:"duration_secs,omitempty"`
	// S3Path is reserved before any upload begins so a crashed upload still
	// leaves a trail for reconciliation.
	S3Path    *string       `json:"s3_path,omitempty"`
	Errors    []BackupError `json:"errors,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

const (
	LogStatusRequested = "requested"
	LogStatusRunning   = "running"
	LogStatusCompleted = "completed"
	LogStatusFailed    = "failed"
	LogStatusTimeout   = "timeout"
)

// Terminal reports whether a status may no longer change, except for the
// verification downgrade of completed to failed.
func (l *BackupLog) Terminal() bool {
	switch l.Status {
	case LogStatusCompleted, LogStatusFailed, LogStatusTimeout:
		return true
	}
	return false
}
