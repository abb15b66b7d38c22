package domain

// Role is the application role carried by a profile or by provider metadata.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

// DefaultRole is used when neither the profile nor the provider names a role.
const DefaultRole = RoleEditor

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }
