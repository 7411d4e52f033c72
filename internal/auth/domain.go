package auth

import "time"

// User carries the credential-bearing view of an account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
