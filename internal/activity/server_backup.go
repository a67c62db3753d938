package activity

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/storage"
)

// ServerBackup contains the activities that execute a server-mode run: open
// the log, pack and upload the artifact, commit the terminal report.
type ServerBackup struct {
	services *core.Services
	store    storage.ObjectStore
	logger   zerolog.Logger
}

func NewServerBackup(services *core.Services, store storage.ObjectStore, logger zerolog.Logger) *ServerBackup {
	return &ServerBackup{
		services: services,
		store:    store,
		logger:   logger.With().Str("component", "server-backup").Logger(),
	}
}

// StartServerRun opens a running log for the config, claiming a pending
// request when one exists.
func (a *ServerBackup) StartServerRun(ctx context.Context, configID string) (*model.BackupLog, error) {
	cfg, err := a.services.BackupConfig.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	return a.services.BackupLog.StartServer(ctx, configID, cfg.Name+".tar.gz")
}

// ServerArchiveResult carries the packing totals a completion report needs.
type ServerArchiveResult struct {
	FilesProcessed   int64 `json:"files_processed"`
	FilesSkipped     int64 `json:"files_skipped"`
	TotalBytes       int64 `json:"total_bytes"`
	BytesTransferred int64 `json:"bytes_transferred"`
}

// ExecuteServerArchive packs the config's sources into a gzipped tarball and
// uploads it to the log's reserved path. The artifact is staged on local disk
// first so the upload can send an exact content length.
func (a *ServerBackup) ExecuteServerArchive(ctx context.Context, configID, s3Path string) (*ServerArchiveResult, error) {
	cfg, err := a.services.BackupConfig.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "backhaul-server-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	packed, err := archive.Pack(tmp, cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("pack sources: %w", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat staging file: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}

	if err := a.store.Put(ctx, s3Path, tmp, info.Size()); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}

	a.logger.Info().Str("config_id", configID).Str("path", s3Path).
		Int64("files", packed.FilesProcessed).Int64("bytes", info.Size()).Msg("server backup uploaded")

	return &ServerArchiveResult{
		FilesProcessed:   packed.FilesProcessed,
		FilesSkipped:     packed.FilesSkipped,
		TotalBytes:       packed.TotalBytes,
		BytesTransferred: info.Size(),
	}, nil
}

// CompleteServerRunParams is the terminal report for a server-executed log.
type CompleteServerRunParams struct {
	LogID        string               `json:"log_id"`
	Status       string               `json:"status"`
	Result       *ServerArchiveResult `json:"result,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// CompleteServerRun commits the terminal state. Failures carry a structured
// error so the alerting path fires exactly as it does for agent reports.
func (a *ServerBackup) CompleteServerRun(ctx context.Context, params CompleteServerRunParams) (*model.BackupLog, error) {
	report := core.CompletionReport{Status: params.Status}
	if params.Result != nil {
		report.FilesProcessed = params.Result.FilesProcessed
		report.FilesSkipped = params.Result.FilesSkipped
		report.TotalBytes = params.Result.TotalBytes
		report.BytesTransferred = params.Result.BytesTransferred
	}
	if params.ErrorMessage != "" {
		report.Errors = []model.BackupError{{Kind: "server", Message: params.ErrorMessage}}
	}
	return a.services.BackupLog.CompleteServer(ctx, params.LogID, report)
}
