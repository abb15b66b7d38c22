package domain

import "time"

// Session is an authenticated session issued by an identity provider.
type Session struct {
	ID           string
	Identity     *Identity // nil when the provider returned no user
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// HasUser reports whether the session carries an identity.
func (s *Session) HasUser() bool {
	return s != nil && s.Identity != nil
}

type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// SessionEvent is a provider notification. Session is nil for sign-out and
// expiry.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}
