package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.UploadCredentialTTL)
	assert.Equal(t, 5*time.Minute, cfg.AgentOfflineAfter)
	assert.Equal(t, 120, cfg.BackupTimeoutMinutes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_LISTEN_ADDR", ":9999")
	t.Setenv("AGENT_OFFLINE_AFTER", "2m")
	t.Setenv("S3_USE_PATH_STYLE", "false")
	t.Setenv("BACKUP_TIMEOUT_MINUTES", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.AgentOfflineAfter)
	assert.False(t, cfg.S3UsePathStyle)
	assert.Equal(t, 30, cfg.BackupTimeoutMinutes)
}

func TestValidate_CoreAPIRequiresDatabase(t *testing.T) {
	cfg := &Config{S3Endpoint: "http://localhost:9000", S3Bucket: "backups", BackupTimeoutMinutes: 120}
	err := cfg.Validate("core-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_TimeoutWindowBounds(t *testing.T) {
	cfg := &Config{
		DatabaseURL:          "postgres://x",
		S3Endpoint:           "http://localhost:9000",
		S3Bucket:             "backups",
		BackupTimeoutMinutes: 2000,
	}
	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 1 and 1440")

	cfg.BackupTimeoutMinutes = 30
	require.NoError(t, cfg.Validate("worker"))
}

func TestValidate_AgentRoleNeedsNoDatabase(t *testing.T) {
	cfg := &Config{BackupTimeoutMinutes: 120}
	require.NoError(t, cfg.Validate("backup-agent"))
}
