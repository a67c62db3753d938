package request

// RegisterAgent is the request body for registering an agent.
type RegisterAgent struct {
	Name     string `json:"name" validate:"required,slug"`
	Platform string `json:"platform,omitempty"`
}

// Heartbeat is the agent keep-alive body. Version and platform are optional
// and update the stored values when present.
type Heartbeat struct {
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}
