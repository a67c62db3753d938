package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentToken_RoundTrip(t *testing.T) {
	raw, hash, err := NewAgentToken("agent-1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "bkagt_agent-1."))

	id, secret, err := ParseAgentToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", id)
	assert.True(t, VerifyAgentSecret(hash, secret))
}

func TestNewAgentToken_HashNeverContainsSecret(t *testing.T) {
	raw, hash, err := NewAgentToken("agent-1")
	require.NoError(t, err)

	_, secret, err := ParseAgentToken(raw)
	require.NoError(t, err)
	assert.NotContains(t, hash, secret)
}

func TestParseAgentToken_Malformed(t *testing.T) {
	for _, token := range []string{
		"",
		"bkagt_",
		"bkagt_agent-1",
		"bkagt_.secret",
		"other_agent-1.secret",
	} {
		_, _, err := ParseAgentToken(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestVerifyAgentSecret_WrongSecret(t *testing.T) {
	_, hash, err := NewAgentToken("agent-1")
	require.NoError(t, err)
	assert.False(t, VerifyAgentSecret(hash, "not-the-secret"))
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	a := HashAPIKey("bkh_abc")
	b := HashAPIKey("bkh_abc")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashAPIKey("bkh_abd"))
}
