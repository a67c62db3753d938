package model

import "time"

// SizeAssessment is a single-consumer work item: the assigned agent picks it
// up on a poll, computes source sizes locally, and reports back exactly once.
type SizeAssessment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AgentID    string     `json:"agent_id"`
	Paths      []string   `json:"paths"`
	Status     string     `json:"status"`
	TotalBytes int64      `json:"total_bytes"`
	TotalFiles int64      `json:"total_files"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
}

const (
	AssessmentStatusPending   = "pending"
	AssessmentStatusCompleted = "completed"
	AssessmentStatusFailed    = "failed"
)
