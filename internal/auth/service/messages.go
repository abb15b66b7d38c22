package service

import (
	"regexp"
	"strings"

	"github.com/aussiebroadwan/portal/internal/auth/provider"
)

// User facing messages written to AuthState.Error.
const (
	MsgInvalidEmail       = "Please enter a valid email address"
	MsgInvalidCredentials = "Invalid email or password."
	MsgConfirmEmail       = "Please confirm your email."
	MsgTooManyAttempts    = "Too many attempts. Try again later."
	MsgNoUserReturned     = "Login failed. No user returned."
	MsgSignOutFailed      = "Failed to sign out"
	MsgMissingEmail       = "User email is missing"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the login form's email check to the raw input.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ClassifyLoginError turns a provider failure into the message shown to the
// user. Matching is a case-insensitive substring test, first match wins.
func ClassifyLoginError(err error) string {
	msg := provider.Message(err)
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "invalid"):
		return MsgInvalidCredentials
	case strings.Contains(lower, "confirm"):
		return MsgConfirmEmail
	case strings.Contains(lower, "request"):
		return MsgTooManyAttempts
	default:
		return msg
	}
}
