package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

func testRunner() *Runner {
	return NewRunner(zerolog.Nop())
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("hello backup"), 0o644))
	return dir
}

func TestRunnerRunUploadsArchive(t *testing.T) {
	var received []byte
	var gotMethod, gotHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &model.BackupConfig{
		ID:      "cfg-1",
		Name:    "nightly",
		Sources: []model.BackupSource{{Path: sourceDir(t)}},
	}
	credential := &core.UploadCredential{
		URL:       srv.URL,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": "application/gzip"},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	report := testRunner().Run(context.Background(), cfg, credential)

	assert.Equal(t, model.LogStatusCompleted, report.Status)
	assert.Empty(t, report.Errors)
	assert.Equal(t, int64(1), report.FilesProcessed)
	assert.Equal(t, int64(12), report.TotalBytes)
	assert.Equal(t, int64(len(received)), report.BytesTransferred)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/gzip", gotHeader)
	assert.NotEmpty(t, received)
}

func TestRunnerRunNoCredential(t *testing.T) {
	cfg := &model.BackupConfig{
		ID:      "cfg-1",
		Name:    "nightly",
		Sources: []model.BackupSource{{Path: sourceDir(t)}},
	}

	report := testRunner().Run(context.Background(), cfg, nil)

	assert.Equal(t, model.LogStatusFailed, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "agent", report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Message, "no upload credential")
}

func TestRunnerRunExpiredCredential(t *testing.T) {
	cfg := &model.BackupConfig{
		ID:      "cfg-1",
		Name:    "nightly",
		Sources: []model.BackupSource{{Path: sourceDir(t)}},
	}
	credential := &core.UploadCredential{
		URL:       "http://127.0.0.1:1",
		Method:    http.MethodPut,
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	report := testRunner().Run(context.Background(), cfg, credential)

	assert.Equal(t, model.LogStatusFailed, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "expired")
}

func TestRunnerRunUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "access denied", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := &model.BackupConfig{
		ID:      "cfg-1",
		Name:    "nightly",
		Sources: []model.BackupSource{{Path: sourceDir(t)}},
	}
	credential := &core.UploadCredential{
		URL:       srv.URL,
		Method:    http.MethodPut,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	report := testRunner().Run(context.Background(), cfg, credential)

	assert.Equal(t, model.LogStatusFailed, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "403")
	assert.Contains(t, report.Errors[0].Message, "access denied")
}
