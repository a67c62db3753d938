package activity

import (
	"context"

	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
)

// Maintenance contains the periodic janitor activities: presence sweeps,
// lifecycle timeouts, orphan repair.
type Maintenance struct {
	services *core.Services
	cfg      *config.Config
}

func NewMaintenance(services *core.Services, cfg *config.Config) *Maintenance {
	return &Maintenance{services: services, cfg: cfg}
}

// SweepAgentPresence marks agents offline that have been silent past the
// configured threshold. Returns the number of agents transitioned.
func (a *Maintenance) SweepAgentPresence(ctx context.Context) (int64, error) {
	return a.services.Agent.SweepOffline(ctx, a.cfg.AgentOfflineAfter)
}

// RepairOrphanedConfigs reassigns agent-mode configs whose agent row is gone
// to server execution so they stop waiting on a poll that never comes.
func (a *Maintenance) RepairOrphanedConfigs(ctx context.Context) (int64, error) {
	return a.services.Agent.RepairOrphanedConfigs(ctx)
}

// TimeoutStaleBackups sweeps requested and running logs older than the
// configured window into timeout.
func (a *Maintenance) TimeoutStaleBackups(ctx context.Context) (int64, error) {
	return a.services.BackupLog.TimeoutStale(ctx, a.cfg.BackupTimeoutMinutes)
}
