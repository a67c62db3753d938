package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPollConfigs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/v1/configs", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{
					"config":      map[string]any{"id": "cfg-1", "name": "nightly"},
					"run_pending": true,
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-1", zerolog.Nop())
	configs, err := client.PollConfigs(context.Background())
	require.NoError(t, err)

	require.Len(t, configs, 1)
	assert.Equal(t, "cfg-1", configs[0].Config.ID)
	assert.True(t, configs[0].RunPending)
	assert.Nil(t, configs[0].OpenLog)
}

func TestClientStartBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agent/v1/backups", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "cfg-1", payload["config_id"])
		assert.Equal(t, "nightly.tar.gz", payload["filename"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"log":        map[string]any{"id": "log-1", "status": "running"},
				"credential": map[string]any{"url": "https://bucket.example/put", "method": "PUT"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-1", zerolog.Nop())
	result, err := client.StartBackup(context.Background(), "cfg-1", "nightly.tar.gz")
	require.NoError(t, err)

	assert.Equal(t, "log-1", result.Log.ID)
	require.NotNil(t, result.Credential)
	assert.Equal(t, "PUT", result.Credential.Method)
}

func TestClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "invalid agent token",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad", zerolog.Nop())
	err := client.Heartbeat(context.Background(), "1.0.0", "linux/amd64")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid agent token")
}

func TestClientNonEnvelopeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-1", zerolog.Nop())
	_, err := client.PollAssessments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientRegisterUsesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "web-1", payload["name"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"agent": map[string]any{"id": "agent-1", "name": "web-1"},
				"token": "tok-new",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.Nop())
	registered, err := client.Register(context.Background(), "key-1", "web-1", "linux/amd64")
	require.NoError(t, err)

	assert.Equal(t, "agent-1", registered.Agent.ID)
	assert.Equal(t, "tok-new", registered.Token)
}
