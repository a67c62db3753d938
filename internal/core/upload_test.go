package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/storage"
)

func TestUploadService_ScopedPath(t *testing.T) {
	svc := NewUploadService(&mockStore{}, time.Hour)

	p := svc.ScopedPath("user-1", "agent-1", "cfg-1", "nightly.tar.gz")
	assert.True(t, strings.HasPrefix(p, "users/user-1/agents/agent-1/cfg-1/"))
	assert.True(t, strings.HasSuffix(p, "-nightly.tar.gz"))
}

func TestUploadService_ScopedPath_StripsDirectories(t *testing.T) {
	svc := NewUploadService(&mockStore{}, time.Hour)

	// A filename must not be able to climb out of the agent's prefix.
	p := svc.ScopedPath("user-1", "agent-1", "cfg-1", "../../../etc/passwd")
	assert.True(t, strings.HasPrefix(p, "users/user-1/agents/agent-1/cfg-1/"))
	assert.True(t, strings.HasSuffix(p, "-passwd"))
	assert.NotContains(t, p, "..")
}

func TestUploadService_Issue_Success(t *testing.T) {
	store := &mockStore{}
	svc := NewUploadService(store, 30*time.Minute)
	ctx := context.Background()

	expires := time.Now().Add(30 * time.Minute)
	store.On("PresignUpload", ctx, "users/user-1/agents/agent-1/cfg-1/1-a.tar.gz", 30*time.Minute).
		Return(&storage.PresignedUpload{
			URL:       "https://s3.test/put?sig=abc",
			Method:    "PUT",
			Headers:   map[string]string{"Content-Type": "application/gzip"},
			ExpiresAt: expires,
		}, nil)

	cred, err := svc.Issue(ctx, "users/user-1/agents/agent-1/cfg-1/1-a.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/put?sig=abc", cred.URL)
	assert.Equal(t, "PUT", cred.Method)
	assert.Equal(t, "users/user-1/agents/agent-1/cfg-1/1-a.tar.gz", cred.ScopedPath)
	assert.Equal(t, expires, cred.ExpiresAt)
	store.AssertExpectations(t)
}

func TestUploadService_Issue_StoreError(t *testing.T) {
	store := &mockStore{}
	svc := NewUploadService(store, time.Hour)
	ctx := context.Background()

	store.On("PresignUpload", ctx, mock.Anything, time.Hour).Return(nil, errors.New("presign failed"))

	cred, err := svc.Issue(ctx, "users/user-1/agents/agent-1/cfg-1/1-a.tar.gz")
	require.Error(t, err)
	assert.Nil(t, cred)
	assert.Contains(t, err.Error(), "issue upload credential")
	store.AssertExpectations(t)
}

func TestUploadService_IssueFor_BuildsScopedPath(t *testing.T) {
	store := &mockStore{}
	svc := NewUploadService(store, time.Hour)
	ctx := context.Background()

	store.On("PresignUpload", ctx, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "users/user-1/agents/agent-1/cfg-1/")
	}), time.Hour).Return(&storage.PresignedUpload{URL: "https://s3.test/put", Method: "PUT"}, nil)

	cred, err := svc.IssueFor(ctx, "user-1", "agent-1", "cfg-1", "a.tar.gz")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred.ScopedPath, "users/user-1/agents/agent-1/cfg-1/"))
	store.AssertExpectations(t)
}
