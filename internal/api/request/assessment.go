package request

// CreateAssessment is the request body for a size assessment.
type CreateAssessment struct {
	AgentID string   `json:"agent_id" validate:"required"`
	Paths   []string `json:"paths" validate:"required,min=1"`
}

// ReportAssessment is the agent's result for an assessment request. A
// non-empty error marks the assessment failed.
type ReportAssessment struct {
	TotalBytes int64  `json:"total_bytes" validate:"min=0"`
	TotalFiles int64  `json:"total_files" validate:"min=0"`
	Error      string `json:"error,omitempty"`
}
