package auth

import "time"

// Client is a registered caller of the service API: a product backend or an
// internal tool, never an end user. End users are subjects of decisions, not
// callers.
type Client struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt,omitzero"`
}
