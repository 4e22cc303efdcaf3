package membership

import "time"

// Status tracks the lifecycle of a membership row.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Membership binds a user to a team with a single role. A user may hold
// different roles in different teams; exactly one active row exists per
// (user, team) pair. A resolved Membership is a snapshot valid only for the
// current request, never cached across requests.
type Membership struct {
	UserID    string    `json:"userId"`
	TeamID    string    `json:"teamId"`
	Role      string    `json:"role"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the membership currently grants team access.
func (m Membership) Active() bool {
	return m.Status == StatusActive
}
