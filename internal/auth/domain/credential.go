package domain

import "time"

// Credential is the password record the local provider checks logins
// against. One per profile.
type Credential struct {
	ProfileID    string
	Email        string
	PasswordHash string     // argon2id PHC string
	ConfirmedAt  *time.Time // nil until the address is confirmed
	Metadata     Metadata   // user metadata the local provider hands out
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshSession backs a local provider session between restarts.
type RefreshSession struct {
	ID        string
	ProfileID string
	TokenHash string // SHA-256 fingerprint of the refresh token
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
