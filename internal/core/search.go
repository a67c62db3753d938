package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SearchResult represents a single search result across resource types.
type SearchResult struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Label    string `json:"label"`
	ConfigID string `json:"config_id,omitempty"`
	Status   string `json:"status"`
}

// SearchService provides cross-resource search within a user's scope.
type SearchService struct {
	db DB
}

func NewSearchService(db DB) *SearchService {
	return &SearchService{db: db}
}

// Search runs parallel queries across resource tables and returns matching results.
func (s *SearchService) Search(ctx context.Context, userID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + query + "%"

	type queryDef struct {
		sql  string
		args []any
	}

	queries := []queryDef{
		{
			sql: `SELECT 'agent', id, name, '', status FROM agents
				WHERE user_id = $1 AND (id ILIKE $2 OR name ILIKE $2)
				LIMIT $3`,
			args: []any{userID, pattern, limit},
		},
		{
			sql: `SELECT 'backup_config', id, name, id, CASE WHEN enabled THEN 'enabled' ELSE 'disabled' END
				FROM backup_configs
				WHERE user_id = $1 AND (id ILIKE $2 OR name ILIKE $2)
				LIMIT $3`,
			args: []any{userID, pattern, limit},
		},
		{
			sql: `SELECT 'backup_log', id, COALESCE(s3_path, id), COALESCE(config_id, ''), status FROM backup_logs
				WHERE user_id = $1 AND (id ILIKE $2 OR s3_path ILIKE $2)
				LIMIT $3`,
			args: []any{userID, pattern, limit},
		},
		{
			sql: `SELECT 'alert', id, message, COALESCE(config_id, ''), type FROM alerts
				WHERE user_id = $1 AND message ILIKE $2
				LIMIT $3`,
			args: []any{userID, pattern, limit},
		},
	}

	results := make([][]SearchResult, len(queries))
	g, ctx := errgroup.WithContext(ctx)

	for i, q := range queries {
		g.Go(func() error {
			rows, err := s.db.Query(ctx, q.sql, q.args...)
			if err != nil {
				return fmt.Errorf("search query %d: %w", i, err)
			}
			defer rows.Close()

			for rows.Next() {
				var r SearchResult
				if err := rows.Scan(&r.Type, &r.ID, &r.Label, &r.ConfigID, &r.Status); err != nil {
					return fmt.Errorf("scan search result: %w", err)
				}
				results[i] = append(results[i], r)
			}
			return rows.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var all []SearchResult
	for _, batch := range results {
		all = append(all, batch...)
	}
	return all, nil
}
