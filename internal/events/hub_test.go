package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

// socketPair dials a websocket against an in-process server and returns both
// ends: the accepted conn for the hub, the dialed conn for reading.
func socketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.CloseNow() })

	server := <-accepted
	t.Cleanup(func() { server.CloseNow() })

	return server, client
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, payload, err := conn.Read(ctx)
	require.NoError(t, err)

	var event model.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestHubPublishDelivers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server, client := socketPair(t)

	unsubscribe := hub.Subscribe("user-1", server)
	defer unsubscribe()

	hub.Publish("user-1", model.Event{
		Type:     model.EventBackupCompleted,
		ConfigID: "cfg-1",
		LogID:    "log-1",
		Status:   model.LogStatusCompleted,
	})

	event := readEvent(t, client)
	assert.Equal(t, model.EventBackupCompleted, event.Type)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "cfg-1", event.ConfigID)
	assert.False(t, event.At.IsZero())
}

func TestHubTenantIsolation(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server, client := socketPair(t)

	unsubscribe := hub.Subscribe("user-1", server)
	defer unsubscribe()

	hub.Publish("user-2", model.Event{Type: model.EventBackupFailed, LogID: "other"})
	hub.Publish("user-1", model.Event{Type: model.EventBackupStarted, LogID: "mine"})

	event := readEvent(t, client)
	assert.Equal(t, "mine", event.LogID)
	assert.Equal(t, "user-1", event.UserID)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server, _ := socketPair(t)

	unsubscribe := hub.Subscribe("user-1", server)
	assert.Equal(t, 1, hub.SubscriberCount("user-1"))

	unsubscribe()
	assert.Equal(t, 0, hub.SubscriberCount("user-1"))

	// Publishing with no subscribers is a no-op.
	hub.Publish("user-1", model.Event{Type: model.EventBackupStarted})
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	serverA, clientA := socketPair(t)
	serverB, clientB := socketPair(t)

	defer hub.Subscribe("user-1", serverA)()
	defer hub.Subscribe("user-1", serverB)()
	assert.Equal(t, 2, hub.SubscriberCount("user-1"))

	hub.Publish("user-1", model.Event{Type: model.EventBackupRequested, LogID: "log-9"})

	assert.Equal(t, "log-9", readEvent(t, clientA).LogID)
	assert.Equal(t, "log-9", readEvent(t, clientB).LogID)
}
