package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

const agentKey contextKey = "agent"

// AgentAuth returns a middleware that resolves a bearer token to an agent.
// Authentication doubles as presence: the agent service bumps last_seen on
// every successful call.
func AgentAuth(agents *core.AgentService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing agent token")
				return
			}

			agent, err := agents.Authenticate(r.Context(), token)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid agent token")
				return
			}

			ctx := context.WithValue(r.Context(), agentKey, agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAgent returns the authenticated agent, or nil outside an agent route.
func GetAgent(ctx context.Context) *model.Agent {
	if a, ok := ctx.Value(agentKey).(*model.Agent); ok {
		return a
	}
	return nil
}

// WithAgent injects an agent identity directly. Test use only.
func WithAgent(ctx context.Context, agent *model.Agent) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}
