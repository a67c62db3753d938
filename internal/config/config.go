package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL     string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string

	// S3 endpoint settings for the backup object store.
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// UploadCredentialTTL bounds how long a presigned upload URL stays valid.
	UploadCredentialTTL time.Duration

	// AgentOfflineAfter is how long an agent may stay silent before the
	// presence sweep marks it offline.
	AgentOfflineAfter time.Duration

	// BackupTimeoutMinutes is the default window for the lifecycle timeout sweep.
	BackupTimeoutMinutes int
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		TemporalAddress:      getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:       getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ServiceName:          getEnv("SERVICE_NAME", ""),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle:       getEnvBool("S3_USE_PATH_STYLE", true),
		UploadCredentialTTL:  getEnvDuration("UPLOAD_CREDENTIAL_TTL", time.Hour),
		AgentOfflineAfter:    getEnvDuration("AGENT_OFFLINE_AFTER", 5*time.Minute),
		BackupTimeoutMinutes: getEnvInt("BACKUP_TIMEOUT_MINUTES", 120),
	}

	return cfg, nil
}

// Validate checks that the settings required by the given role are present.
func (c *Config) Validate(role string) error {
	switch role {
	case "core-api", "worker":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s: DATABASE_URL is required", role)
		}
		if c.S3Endpoint == "" {
			return fmt.Errorf("%s: S3_ENDPOINT is required", role)
		}
		if c.S3Bucket == "" {
			return fmt.Errorf("%s: S3_BUCKET is required", role)
		}
	}

	if c.BackupTimeoutMinutes < 1 || c.BackupTimeoutMinutes > 1440 {
		return fmt.Errorf("BACKUP_TIMEOUT_MINUTES must be between 1 and 1440, got %d", c.BackupTimeoutMinutes)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
