package model

import "time"

// User is the tenant boundary. Every agent, config, log, assessment, and
// alert hangs off a user and is invisible outside it.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
