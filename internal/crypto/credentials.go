package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const agentTokenPrefix = "bkagt_"

// NewAgentToken mints the bearer token for an agent. The returned raw token
// embeds the agent ID so that auth can resolve the row without a table scan;
// only the bcrypt hash of the secret half is ever stored. The raw token is
// shown to the caller exactly once, at registration.
func NewAgentToken(agentID string) (raw string, hash string, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("generate agent secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash agent secret: %w", err)
	}

	return agentTokenPrefix + agentID + "." + secret, string(h), nil
}

// ParseAgentToken splits a bearer token into the embedded agent ID and the
// secret half. It validates shape only; the secret is checked against the
// stored hash by VerifyAgentSecret.
func ParseAgentToken(token string) (agentID, secret string, err error) {
	rest, ok := strings.CutPrefix(token, agentTokenPrefix)
	if !ok {
		return "", "", fmt.Errorf("malformed agent token")
	}
	agentID, secret, ok = strings.Cut(rest, ".")
	if !ok || agentID == "" || secret == "" {
		return "", "", fmt.Errorf("malformed agent token")
	}
	return agentID, secret, nil
}

// VerifyAgentSecret compares a presented secret against the stored bcrypt
// hash. bcrypt comparison is constant-time with respect to the secret.
func VerifyAgentSecret(storedHash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
}

// HashAPIKey computes the sha256 hex digest stored for user API keys.
func HashAPIKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
