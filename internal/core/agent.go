package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/crypto"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// AgentService manages agent identity, credentials, and presence.
type AgentService struct {
	db DB
}

func NewAgentService(db DB) *AgentService {
	return &AgentService{db: db}
}

const agentColumns = `id, user_id, name, platform, version, token_prefix, status, last_seen, created_at, updated_at`

func scanAgent(row interface{ Scan(dest ...any) error }) (model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Platform, &a.Version,
		&a.TokenPrefix, &a.Status, &a.LastSeen, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Register creates an agent and mints its bearer token. The raw token is
// returned exactly once; only the bcrypt hash is stored.
func (s *AgentService) Register(ctx context.Context, userID, name, platformTag string) (*model.Agent, string, error) {
	id := platform.NewID()

	rawToken, tokenHash, err := crypto.NewAgentToken(id)
	if err != nil {
		return nil, "", err
	}
	tokenPrefix := rawToken[:16]

	now := time.Now()
	_, err = s.db.Exec(ctx,
		`INSERT INTO agents (id, user_id, name, platform, version, token_hash, token_prefix, status, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, userID, name, platformTag, "", tokenHash, tokenPrefix,
		model.AgentStatusOnline, now, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, "", fmt.Errorf("agent named %s already exists: %w", name, ErrConflict)
		}
		return nil, "", fmt.Errorf("insert agent: %w", err)
	}

	agent := &model.Agent{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Platform:    platformTag,
		TokenPrefix: tokenPrefix,
		Status:      model.AgentStatusOnline,
		LastSeen:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return agent, rawToken, nil
}

// Authenticate resolves a bearer token to exactly one agent. On success the
// agent's last_seen is bumped and status forced online, so presence tracking
// piggy-backs on every authenticated call.
func (s *AgentService) Authenticate(ctx context.Context, token string) (*model.Agent, error) {
	agentID, secret, err := crypto.ParseAgentToken(token)
	if err != nil {
		return nil, fmt.Errorf("parse agent token: %w", ErrUnauthenticated)
	}

	var tokenHash string
	row := s.db.QueryRow(ctx,
		`SELECT token_hash, `+agentColumns+` FROM agents WHERE id = $1`, agentID)

	var a model.Agent
	err = row.Scan(&tokenHash, &a.ID, &a.UserID, &a.Name, &a.Platform, &a.Version,
		&a.TokenPrefix, &a.Status, &a.LastSeen, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Deleted or never existed; either way the credential is dead.
			return nil, fmt.Errorf("agent %s: %w", agentID, ErrUnauthenticated)
		}
		return nil, fmt.Errorf("load agent %s: %w", agentID, err)
	}

	if !crypto.VerifyAgentSecret(tokenHash, secret) {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrUnauthenticated)
	}

	now := time.Now()
	_, err = s.db.Exec(ctx,
		`UPDATE agents SET last_seen = $1, status = $2, updated_at = $1 WHERE id = $3`,
		now, model.AgentStatusOnline, a.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("bump agent last_seen: %w", err)
	}
	a.LastSeen = now
	a.Status = model.AgentStatusOnline

	return &a, nil
}

// Heartbeat is the explicit keep-alive for idle periods; it updates last_seen
// and forces online, optionally recording version and platform.
func (s *AgentService) Heartbeat(ctx context.Context, agentID, version, platformTag string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agents SET last_seen = now(), status = $1, updated_at = now(),
		        version = COALESCE(NULLIF($2, ''), version),
		        platform = COALESCE(NULLIF($3, ''), platform)
		 WHERE id = $4`,
		model.AgentStatusOnline, version, platformTag, agentID,
	)
	if err != nil {
		return fmt.Errorf("record heartbeat for agent %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

// SweepOffline flips online agents whose last_seen is strictly older than the
// threshold to offline. An agent seen exactly at the boundary stays online.
// Pull-style: nothing is pushed to the agent; its next authenticated call
// restores online.
func (s *AgentService) SweepOffline(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE agents SET status = $1, updated_at = now()
		 WHERE status = $2 AND last_seen < now() - ($3 * interval '1 second')`,
		model.AgentStatusOffline, model.AgentStatusOnline, threshold.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep offline agents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetOwned fetches an agent and enforces ownership.
func (s *AgentService) GetOwned(ctx context.Context, userID, id string) (*model.Agent, error) {
	a, err := scanAgent(s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", id, ErrForbidden)
	}
	return &a, nil
}

// ListByUser returns all agents owned by a user.
func (s *AgentService) ListByUser(ctx context.Context, userID string) ([]model.Agent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents for user %s: %w", userID, err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// Delete removes an agent after severing its configs: any config still in
// agent mode falls back to server mode so it never references a dead agent.
func (s *AgentService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx,
		`UPDATE backup_configs SET execution_mode = $1, agent_id = NULL, updated_at = now() WHERE agent_id = $2`,
		model.ExecutionModeServer, id,
	)
	if err != nil {
		return fmt.Errorf("sever configs for agent %s: %w", id, err)
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// RepairOrphanedConfigs falls configs whose agent reference no longer resolves
// back to server mode. Safety net for drift the Delete path should prevent.
func (s *AgentService) RepairOrphanedConfigs(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_configs SET execution_mode = $1, agent_id = NULL, updated_at = now()
		 WHERE execution_mode = $2 AND agent_id IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM agents WHERE agents.id = backup_configs.agent_id)`,
		model.ExecutionModeServer, model.ExecutionModeAgent,
	)
	if err != nil {
		return 0, fmt.Errorf("repair orphaned configs: %w", err)
	}
	return tag.RowsAffected(), nil
}
