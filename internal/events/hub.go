package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// Hub fans lifecycle events out to subscribed websocket connections, keyed by
// user. Publish is fire-and-forget: a slow or absent subscriber never blocks
// or fails the caller.
type Hub struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "event-hub").Logger(),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe registers a connection for a user's events and returns an
// unsubscribe func. The caller owns the connection lifecycle.
func (h *Hub) Subscribe(userID string, conn *websocket.Conn) func() {
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs[userID], sub)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		h.mu.Unlock()
	}
}

// Publish delivers an event to all of a user's subscribers. Failed writes are
// logged and dropped.
func (h *Hub) Publish(userID string, event model.Event) {
	event.UserID = userID
	if event.At.IsZero() {
		event.At = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("marshal event")
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		go func(sub *subscriber) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sub.conn.Write(ctx, websocket.MessageText, payload); err != nil {
				h.logger.Debug().Err(err).Str("user", userID).Msg("drop event for slow subscriber")
			}
		}(sub)
	}
}

// SubscriberCount reports how many connections a user currently has.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
