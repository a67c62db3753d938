package handler

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/events"
)

type Events struct {
	hub    *events.Hub
	keys   *core.APIKeyService
	logger zerolog.Logger
}

func NewEvents(hub *events.Hub, keys *core.APIKeyService, logger zerolog.Logger) *Events {
	return &Events{hub: hub, keys: keys, logger: logger}
}

// Subscribe upgrades to WebSocket and streams the caller's lifecycle events
// until the client disconnects.
func (h *Events) Subscribe(w http.ResponseWriter, r *http.Request) {
	// Auth via query param (WebSocket API doesn't support custom headers).
	key := r.URL.Query().Get("api_key")
	if key == "" {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	userID, err := h.keys.Authenticate(r.Context(), key)
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin differs from Host when proxied through a dashboard.
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	unsubscribe := h.hub.Subscribe(userID, ws)
	defer unsubscribe()

	h.logger.Debug().Str("user", userID).Msg("event subscriber connected")

	// Drain the read side to learn about disconnects. Clients send nothing.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			return
		}
	}
}
