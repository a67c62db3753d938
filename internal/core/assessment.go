package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// assessmentPollLimit bounds how many pending requests one poll returns.
const assessmentPollLimit = 10

// AssessmentService runs the size-assessment request/response queue: a user
// creates a pending request, the assigned agent picks it up on its next poll
// and reports totals exactly once.
type AssessmentService struct {
	db DB
}

func NewAssessmentService(db DB) *AssessmentService {
	return &AssessmentService{db: db}
}

const assessmentColumns = `id, user_id, agent_id, paths, status, total_bytes, total_files, error, created_at, reported_at`

func scanAssessment(row interface{ Scan(dest ...any) error }) (model.SizeAssessment, error) {
	var a model.SizeAssessment
	var paths []byte
	err := row.Scan(&a.ID, &a.UserID, &a.AgentID, &paths, &a.Status,
		&a.TotalBytes, &a.TotalFiles, &a.Error, &a.CreatedAt, &a.ReportedAt)
	if err != nil {
		return a, err
	}
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &a.Paths); err != nil {
			return a, fmt.Errorf("decode assessment paths: %w", err)
		}
	}
	return a, nil
}

// Create opens a pending request targeting an agent the user owns.
func (s *AssessmentService) Create(ctx context.Context, userID, agentID string, paths []string) (*model.SizeAssessment, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one path is required: %w", ErrValidation)
	}

	var ownerID string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM agents WHERE id = $1`, agentID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
		}
		return nil, fmt.Errorf("look up agent %s: %w", agentID, err)
	}
	if ownerID != userID {
		return nil, fmt.Errorf("agent %s belongs to another user: %w", agentID, ErrForbidden)
	}

	encoded, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("encode assessment paths: %w", err)
	}

	id := platform.NewID()
	_, err = s.db.Exec(ctx,
		`INSERT INTO size_assessments (id, user_id, agent_id, paths, status, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
		id, userID, agentID, encoded, model.AssessmentStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert size assessment: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *AssessmentService) GetByID(ctx context.Context, id string) (*model.SizeAssessment, error) {
	a, err := scanAssessment(s.db.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM size_assessments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("size assessment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get size assessment %s: %w", id, err)
	}
	return &a, nil
}

// GetOwned fetches an assessment and enforces ownership.
func (s *AssessmentService) GetOwned(ctx context.Context, userID, id string) (*model.SizeAssessment, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("size assessment %s: %w", id, ErrForbidden)
	}
	return a, nil
}

// PollPending returns up to 10 pending requests for an agent, oldest first.
func (s *AssessmentService) PollPending(ctx context.Context, agentID string) ([]model.SizeAssessment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assessmentColumns+` FROM size_assessments
		 WHERE agent_id = $1 AND status = $2 ORDER BY created_at LIMIT $3`,
		agentID, model.AssessmentStatusPending, assessmentPollLimit)
	if err != nil {
		return nil, fmt.Errorf("poll assessments for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var pending []model.SizeAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan size assessment: %w", err)
		}
		pending = append(pending, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate size assessments: %w", err)
	}
	return pending, nil
}

// AssessmentResult is an agent's terminal report for a request.
type AssessmentResult struct {
	TotalBytes int64
	TotalFiles int64
	Error      string
}

// Report applies an agent's result, transitioning the request to completed or
// failed exactly once. A second report for an already-terminal request is
// acknowledged as a no-op, tolerating at-least-once delivery.
func (s *AssessmentService) Report(ctx context.Context, agent *model.Agent, id string, result AssessmentResult) (*model.SizeAssessment, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.AgentID != agent.ID || a.UserID != agent.UserID {
		return nil, fmt.Errorf("assessment %s is not assigned to agent %s: %w", id, agent.ID, ErrForbidden)
	}

	if a.Status != model.AssessmentStatusPending {
		return a, nil
	}

	status := model.AssessmentStatusCompleted
	var reportErr *string
	if result.Error != "" {
		status = model.AssessmentStatusFailed
		reportErr = &result.Error
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE size_assessments SET status = $1, total_bytes = $2, total_files = $3, error = $4, reported_at = now()
		 WHERE id = $5 AND status = $6`,
		status, result.TotalBytes, result.TotalFiles, reportErr, id, model.AssessmentStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("report size assessment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Replay raced a concurrent report; first write wins.
		return s.GetByID(ctx, id)
	}

	return s.GetByID(ctx, id)
}
