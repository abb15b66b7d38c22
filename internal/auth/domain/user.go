package domain

// ApplicationUser is the reconciled user the rest of the application reads.
// Role is never empty.
type ApplicationUser struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Role     Role     `json:"role"`
	Name     string   `json:"name"`
	Metadata Metadata `json:"user_metadata,omitempty"`
}

// Clone returns a copy that does not share the metadata map.
func (u *ApplicationUser) Clone() *ApplicationUser {
	if u == nil {
		return nil
	}
	c := *u
	c.Metadata = u.Metadata.Clone()
	return &c
}
