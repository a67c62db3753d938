package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/backhaul/internal/crypto"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
)

// APIKeyService manages user API keys.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// Create generates a new API key for a user, stores the hash, and returns the
// model along with the raw key string. The raw key must be shown to the user
// exactly once.
func (s *APIKeyService) Create(ctx context.Context, userID, name string) (*model.APIKey, string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := "bkh_" + hex.EncodeToString(rawBytes)

	id := platform.NewID()
	keyHash := crypto.HashAPIKey(rawKey)
	keyPrefix := rawKey[:12]

	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
		id, userID, name, keyHash, keyPrefix,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}

	key := &model.APIKey{
		ID:        id,
		UserID:    userID,
		Name:      name,
		KeyPrefix: keyPrefix,
	}
	err = s.db.QueryRow(ctx, "SELECT created_at FROM api_keys WHERE id = $1", id).Scan(&key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("get api key created_at: %w", err)
	}

	return key, rawKey, nil
}

// Authenticate resolves a raw API key to its owning user ID.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (userID string, err error) {
	keyHash := crypto.HashAPIKey(rawKey)

	err = s.db.QueryRow(ctx,
		`SELECT user_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`, keyHash,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("api key: %w", ErrUnauthenticated)
		}
		return "", fmt.Errorf("authenticate api key: %w", err)
	}
	return userID, nil
}

// Revoke marks an API key revoked. Idempotent.
func (s *APIKeyService) Revoke(ctx context.Context, userID, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}
