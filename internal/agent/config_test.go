package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8090", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.HeartbeatInterval)
	assert.NotEmpty(t, cfg.Platform)
}

func TestParseConfigValues(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
server_url: https://backup.example.com/
token: tok-abc
poll_interval: 10s
heartbeat_interval: 2m
platform: linux/arm64
`))
	require.NoError(t, err)

	assert.Equal(t, "https://backup.example.com", cfg.ServerURL, "trailing slash trimmed")
	assert.Equal(t, "tok-abc", cfg.Token)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, "linux/arm64", cfg.Platform)
}

func TestParseConfigTokenFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("  tok-from-file\n"), 0o600))

	cfg, err := ParseConfig([]byte("token: inline\ntoken_file: " + tokenPath + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "tok-from-file", cfg.Token)
}

func TestParseConfigMissingTokenFile(t *testing.T) {
	_, err := ParseConfig([]byte("token_file: /nonexistent/token\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read token file")
}

func TestParseConfigInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("server_url: [nope"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: tok-1\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cfg.Token)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
