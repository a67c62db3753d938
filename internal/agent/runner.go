package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

// Runner executes one backup run: pack the sources, upload the artifact
// through the scoped credential, report the totals.
type Runner struct {
	logger     zerolog.Logger
	httpClient *http.Client
}

func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{
		logger: logger.With().Str("component", "runner").Logger(),
		httpClient: &http.Client{
			// Uploads are bounded by credential expiry, not a client timeout.
			Timeout: 0,
		},
	}
}

// Run packs the config's sources and uploads the archive. The returned report
// always carries a terminal status; errors along the way produce a failed
// report rather than an error return, so the caller can deliver the outcome.
func (r *Runner) Run(ctx context.Context, cfg *model.BackupConfig, credential *core.UploadCredential) CompletionReport {
	tmp, err := os.CreateTemp("", "backhaul-agent-*.tar.gz")
	if err != nil {
		return failedReport("create staging file: " + err.Error())
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	packed, err := archive.Pack(tmp, cfg.Sources)
	if err != nil {
		return failedReport("pack sources: " + err.Error())
	}

	info, err := tmp.Stat()
	if err != nil {
		return failedReport("stat staging file: " + err.Error())
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return failedReport("rewind staging file: " + err.Error())
	}

	if err := r.upload(ctx, credential, tmp, info.Size()); err != nil {
		return failedReport("upload artifact: " + err.Error())
	}

	r.logger.Info().Str("config", cfg.ID).
		Int64("files", packed.FilesProcessed).
		Int64("bytes", info.Size()).
		Msg("backup uploaded")

	return CompletionReport{
		Status:           model.LogStatusCompleted,
		FilesProcessed:   packed.FilesProcessed,
		FilesSkipped:     packed.FilesSkipped,
		TotalBytes:       packed.TotalBytes,
		BytesTransferred: info.Size(),
	}
}

func (r *Runner) upload(ctx context.Context, credential *core.UploadCredential, body io.Reader, size int64) error {
	if credential == nil {
		return fmt.Errorf("no upload credential")
	}
	if !credential.ExpiresAt.IsZero() && time.Now().After(credential.ExpiresAt) {
		return fmt.Errorf("upload credential expired at %s", credential.ExpiresAt.Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, credential.Method, credential.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	for k, v := range credential.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func failedReport(message string) CompletionReport {
	return CompletionReport{
		Status: model.LogStatusFailed,
		Errors: []model.BackupError{{Kind: "agent", Message: message}},
	}
}
