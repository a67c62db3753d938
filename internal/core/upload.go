package core

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/edvin/backhaul/internal/storage"
)

// UploadCredential is the time-boxed, single-target authorization an agent
// uses to upload one artifact directly to storage.
type UploadCredential struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ScopedPath string            `json:"scoped_path"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// UploadService issues scoped upload credentials. The path namespacing by
// user and agent is the tenant sandbox: no credential can write outside the
// issuing agent's prefix.
type UploadService struct {
	store storage.ObjectStore
	ttl   time.Duration
}

func NewUploadService(store storage.ObjectStore, ttl time.Duration) *UploadService {
	return &UploadService{store: store, ttl: ttl}
}

// ScopedPath builds the deterministic destination key for an upload.
func (s *UploadService) ScopedPath(userID, agentID, configID, filename string) string {
	name := fmt.Sprintf("%d-%s", time.Now().Unix(), path.Base(filename))
	return path.Join("users", userID, "agents", agentID, configID, name)
}

// ServerScopedPath is the destination key for a server-executed run, kept
// under a separate segment so agent credentials can never reach it.
func (s *UploadService) ServerScopedPath(userID, configID, filename string) string {
	name := fmt.Sprintf("%d-%s", time.Now().Unix(), path.Base(filename))
	return path.Join("users", userID, "server", configID, name)
}

// Issue mints a fresh credential for one scoped path. Credentials are never
// cached; every poll or start gets its own because they expire.
func (s *UploadService) Issue(ctx context.Context, scopedPath string) (*UploadCredential, error) {
	presigned, err := s.store.PresignUpload(ctx, scopedPath, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("issue upload credential for %s: %w", scopedPath, err)
	}

	return &UploadCredential{
		URL:        presigned.URL,
		Method:     presigned.Method,
		Headers:    presigned.Headers,
		ScopedPath: scopedPath,
		ExpiresAt:  presigned.ExpiresAt,
	}, nil
}

// IssueFor builds the scoped path for a (user, agent, config, filename)
// tuple and mints a credential for it.
func (s *UploadService) IssueFor(ctx context.Context, userID, agentID, configID, filename string) (*UploadCredential, error) {
	return s.Issue(ctx, s.ScopedPath(userID, agentID, configID, filename))
}
