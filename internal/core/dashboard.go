package core

import (
	"context"
	"fmt"
)

// DashboardStats holds aggregate counts for one user's backup estate.
type DashboardStats struct {
	Agents       int `json:"agents"`
	AgentsOnline int `json:"agents_online"`

	Configs        int `json:"configs"`
	ConfigsEnabled int `json:"configs_enabled"`

	BackupsRunning   int `json:"backups_running"`
	BackupsLast24h   int `json:"backups_last_24h"`
	FailuresLast24h  int `json:"failures_last_24h"`
	AlertsUnacked    int `json:"alerts_unacknowledged"`
	PendingEstimates int `json:"pending_estimates"`

	// BytesStored sums transferred bytes over completed runs; superseded
	// uploads of the same config still count until retention prunes them.
	BytesStored int64 `json:"bytes_stored"`

	BackupsByStatus []StatusCount   `json:"backups_by_status"`
	StorageByConfig []ConfigStorage `json:"storage_by_config"`
}

// StatusCount holds a count grouped by status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ConfigStorage holds per-config run and storage totals.
type ConfigStorage struct {
	ConfigID   string `json:"config_id"`
	ConfigName string `json:"config_name"`
	Runs       int    `json:"runs"`
	Bytes      int64  `json:"bytes"`
}

// DashboardService queries aggregate stats for the overview endpoint.
type DashboardService struct {
	db DB
}

func NewDashboardService(db DB) *DashboardService {
	return &DashboardService{db: db}
}

// Stats returns aggregate counts for a user using a single query with CTEs,
// plus two group-by breakdowns.
func (s *DashboardService) Stats(ctx context.Context, userID string) (*DashboardStats, error) {
	const countsQuery = `
		WITH agent_count AS (
			SELECT count(*) AS c FROM agents WHERE user_id = $1
		), agent_online AS (
			SELECT count(*) AS c FROM agents WHERE user_id = $1 AND status = 'online'
		), config_count AS (
			SELECT count(*) AS c FROM backup_configs WHERE user_id = $1
		), config_enabled AS (
			SELECT count(*) AS c FROM backup_configs WHERE user_id = $1 AND enabled
		), backup_running AS (
			SELECT count(*) AS c FROM backup_logs WHERE user_id = $1 AND status = 'running'
		), backup_recent AS (
			SELECT count(*) AS c FROM backup_logs WHERE user_id = $1 AND created_at > now() - interval '24 hours'
		), failure_recent AS (
			SELECT count(*) AS c FROM backup_logs
			WHERE user_id = $1 AND status IN ('failed', 'timeout') AND created_at > now() - interval '24 hours'
		), alert_unacked AS (
			SELECT count(*) AS c FROM alerts WHERE user_id = $1 AND NOT acknowledged
		), estimate_pending AS (
			SELECT count(*) AS c FROM size_assessments WHERE user_id = $1 AND status = 'pending'
		), bytes_stored AS (
			SELECT COALESCE(sum(bytes_transferred), 0) AS c FROM backup_logs WHERE user_id = $1 AND status = 'completed'
		)
		SELECT
			(SELECT c FROM agent_count),
			(SELECT c FROM agent_online),
			(SELECT c FROM config_count),
			(SELECT c FROM config_enabled),
			(SELECT c FROM backup_running),
			(SELECT c FROM backup_recent),
			(SELECT c FROM failure_recent),
			(SELECT c FROM alert_unacked),
			(SELECT c FROM estimate_pending),
			(SELECT c FROM bytes_stored)`

	stats := &DashboardStats{}
	err := s.db.QueryRow(ctx, countsQuery, userID).Scan(
		&stats.Agents,
		&stats.AgentsOnline,
		&stats.Configs,
		&stats.ConfigsEnabled,
		&stats.BackupsRunning,
		&stats.BackupsLast24h,
		&stats.FailuresLast24h,
		&stats.AlertsUnacked,
		&stats.PendingEstimates,
		&stats.BytesStored,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	statusRows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM backup_logs WHERE user_id = $1 GROUP BY status ORDER BY count(*) DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("dashboard backups by status: %w", err)
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var sc StatusCount
		if err := statusRows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.BackupsByStatus = append(stats.BackupsByStatus, sc)
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	storageRows, err := s.db.Query(ctx,
		`SELECT c.id, c.name, count(l.id), COALESCE(sum(l.bytes_transferred), 0)
		 FROM backup_configs c LEFT JOIN backup_logs l ON l.config_id = c.id AND l.status = 'completed'
		 WHERE c.user_id = $1
		 GROUP BY c.id, c.name
		 ORDER BY COALESCE(sum(l.bytes_transferred), 0) DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("dashboard storage by config: %w", err)
	}
	defer storageRows.Close()

	for storageRows.Next() {
		var cs ConfigStorage
		if err := storageRows.Scan(&cs.ConfigID, &cs.ConfigName, &cs.Runs, &cs.Bytes); err != nil {
			return nil, fmt.Errorf("scan config storage: %w", err)
		}
		stats.StorageByConfig = append(stats.StorageByConfig, cs)
	}
	if err := storageRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config storage: %w", err)
	}

	return stats, nil
}
