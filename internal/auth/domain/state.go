package domain

// AuthState is the facade's observable state.
type AuthState struct {
	User          *ApplicationUser `json:"user"`
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	Error         string           `json:"error,omitempty"`
}

// Consistent reports whether the user and authenticated flag agree. It only
// has to hold once Loading is false.
func (s AuthState) Consistent() bool {
	return (s.User != nil) == s.Authenticated
}

// Clone returns a deep copy safe to hand to readers.
func (s AuthState) Clone() AuthState {
	s.User = s.User.Clone()
	return s
}
