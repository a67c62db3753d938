package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Stat when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// PresignedUpload is a short-lived, single-target upload authorization.
type PresignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// ObjectStore is the capability the orchestration core requires from object
// storage. Agents upload through presigned URLs; Put is the direct path used
// by server-side execution. The wire protocol behind it is not this
// package's concern.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (*PresignedUpload, error)
	Put(ctx context.Context, key string, body io.Reader, sizeBytes int64) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
