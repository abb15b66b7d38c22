package domain

import "time"

type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfileInactive ProfileStatus = "inactive"
)

// Profile is the application-level record keyed by email. It lives in the
// profile store, separate from the identity provider's own account.
type Profile struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	Name      string
	Avatar    string // empty when unset
	Status    ProfileStatus
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
