package model

import "time"

type Agent struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
	// TokenPrefix is the displayable fragment of the bearer token. The token
	// itself is stored only as a bcrypt hash and returned once, at registration.
	TokenPrefix string    `json:"token_prefix"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	AgentStatusOnline  = "online"
	AgentStatusOffline = "offline"
	AgentStatusError   = "error"
)
