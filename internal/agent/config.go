package agent

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent configuration loaded from backup-agent.yaml.
type Config struct {
	ServerURL string `yaml:"server_url"`
	// Token is the bearer token issued at registration. TokenFile takes
	// precedence when both are set so the secret can stay out of the config.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`

	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Platform overrides the reported platform tag; defaults to GOOS/GOARCH.
	Platform string `yaml:"platform"`
}

// LoadConfig reads and parses the agent configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses agent configuration from raw bytes and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://127.0.0.1:8090"
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	if cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file %s: %w", cfg.TokenFile, err)
		}
		cfg.Token = strings.TrimSpace(string(raw))
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Minute
	}
	if cfg.Platform == "" {
		cfg.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}

	return &cfg, nil
}
