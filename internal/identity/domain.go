package identity

import "time"

// Account lifecycle statuses. Only ACTIVE accounts may pass the
// authorization gate.
const (
	StatusActive    = "ACTIVE"
	StatusInactive  = "INACTIVE"
	StatusSuspended = "SUSPENDED"
)

// User represents a staff account.
type User struct {
	ID        int64
	Email     string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
