package request

import (
	"encoding/json"

	"github.com/edvin/backhaul/internal/model"
)

// StartBackup is the agent's request body for starting a run.
type StartBackup struct {
	ConfigID string `json:"config_id" validate:"required"`
	Filename string `json:"filename" validate:"required"`
}

// ReportedError accepts the two shapes agents report errors in: a bare
// string, or a {kind, message, context} object. Both normalize to the
// structured form.
type ReportedError model.BackupError

func (e *ReportedError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ReportedError{Kind: "agent", Message: s}
		return nil
	}
	var obj struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Context string `json:"context,omitempty"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Kind == "" {
		obj.Kind = "agent"
	}
	*e = ReportedError{Kind: obj.Kind, Message: obj.Message, Context: obj.Context}
	return nil
}

// CompleteBackup is the agent's terminal report for a run.
type CompleteBackup struct {
	Status           string          `json:"status" validate:"required,oneof=completed failed"`
	FilesProcessed   int64           `json:"files_processed" validate:"min=0"`
	FilesSkipped     int64           `json:"files_skipped" validate:"min=0"`
	TotalBytes       int64           `json:"total_bytes" validate:"min=0"`
	BytesTransferred int64           `json:"bytes_transferred" validate:"min=0"`
	Errors           []ReportedError `json:"errors,omitempty"`
}

// ModelErrors converts the normalized errors to their storage form.
func (r *CompleteBackup) ModelErrors() []model.BackupError {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make([]model.BackupError, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = model.BackupError(e)
	}
	return out
}

// TimeoutBackups is the operator request for the staleness sweep.
type TimeoutBackups struct {
	ThresholdMinutes int `json:"threshold_minutes" validate:"required,min=1,max=1440"`
}

// MarkFailed names completed logs to downgrade after reconciliation.
type MarkFailed struct {
	LogIDs []string `json:"log_ids" validate:"required,min=1"`
}
