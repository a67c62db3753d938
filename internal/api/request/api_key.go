package request

// CreateAPIKey is the request body for minting a user API key.
type CreateAPIKey struct {
	Name string `json:"name" validate:"required,slug"`
}
