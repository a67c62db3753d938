package request

// BackupSource mirrors one source directory with optional glob filters.
type BackupSource struct {
	Path    string   `json:"path" validate:"required"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// CreateBackupConfig is the request body for creating a backup config.
type CreateBackupConfig struct {
	Name          string         `json:"name" validate:"required,slug"`
	ExecutionMode string         `json:"execution_mode" validate:"required,oneof=agent server"`
	AgentID       *string        `json:"agent_id,omitempty"`
	Sources       []BackupSource `json:"sources" validate:"required,min=1,dive"`
	DestBucket    string         `json:"dest_bucket,omitempty"`
	DestRegion    string         `json:"dest_region,omitempty"`
	DestPrefix    string         `json:"dest_prefix,omitempty"`
	Schedule      *string        `json:"schedule,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	Method        string         `json:"method" validate:"required,oneof=archive rsync rclone"`
	Compression   bool           `json:"compression"`
	Encryption    bool           `json:"encryption"`
	RetentionDays int            `json:"retention_days" validate:"omitempty,min=1,max=3650"`
	Enabled       *bool          `json:"enabled,omitempty"`
}

// UpdateBackupConfig is the request body for updating a backup config. It is
// a full replacement, not a patch.
type UpdateBackupConfig struct {
	Name          string         `json:"name" validate:"required,slug"`
	ExecutionMode string         `json:"execution_mode" validate:"required,oneof=agent server"`
	AgentID       *string        `json:"agent_id,omitempty"`
	Sources       []BackupSource `json:"sources" validate:"required,min=1,dive"`
	DestBucket    string         `json:"dest_bucket,omitempty"`
	DestRegion    string         `json:"dest_region,omitempty"`
	DestPrefix    string         `json:"dest_prefix,omitempty"`
	Schedule      *string        `json:"schedule,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	Method        string         `json:"method" validate:"required,oneof=archive rsync rclone"`
	Compression   bool           `json:"compression"`
	Encryption    bool           `json:"encryption"`
	RetentionDays int            `json:"retention_days" validate:"omitempty,min=1,max=3650"`
	Enabled       bool           `json:"enabled"`
}
