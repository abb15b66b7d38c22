// Package provider defines the identity provider contract the session
// reconciler consumes, plus the event broker concrete providers share.
package provider

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

// ErrClosed is returned by providers after Close.
var ErrClosed = errors.New("provider: closed")

// Provider error codes. Callers classify on Message, the codes are for logs
// and metrics.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeRateLimited        = "over_request_rate_limit"
	CodeUnexpected         = "unexpected_failure"
)

// Error is a rejection reported by the identity provider.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Message extracts the human readable provider message from err. Non
// provider errors yield err.Error().
func Message(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

// Subscription releases a Subscribe registration. Unsubscribe is safe to
// call more than once and closes the event channel.
type Subscription interface {
	Unsubscribe()
}

// IdentityProvider is an external authentication service.
type IdentityProvider interface {
	// CurrentSession returns the active session or nil when there is none.
	CurrentSession(ctx context.Context) (*domain.Session, error)

	// Subscribe registers for session events. Events arrive in the order the
	// provider produced them.
	Subscribe() (<-chan domain.SessionEvent, Subscription)

	// VerifyCredentials signs the user in. A nil identity with a nil error
	// means the provider accepted the call but returned no user.
	VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error
}
