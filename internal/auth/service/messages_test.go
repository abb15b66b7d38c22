package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/auth/provider"
)

func TestValidEmail(t *testing.T) {
	t.Parallel()

	valid := []string{"user@x.com", "a.b+c@sub.example.org", "ü@例え.jp"}
	for _, email := range valid {
		require.True(t, ValidEmail(email), email)
	}

	invalid := []string{"", "userx.com", "user@x", "user@@x.com", "us er@x.com", " user@x.com", "user@x.com ", "@x.com", "user@.com"}
	for _, email := range invalid {
		require.False(t, ValidEmail(email), email)
	}
}

func TestClassifyLoginError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid credentials", &provider.Error{Message: "Invalid login credentials"}, MsgInvalidCredentials},
		{"case insensitive", errors.New("INVALID GRANT"), MsgInvalidCredentials},
		{"unconfirmed", &provider.Error{Message: "Email not confirmed"}, MsgConfirmEmail},
		{"rate limited", &provider.Error{Message: "Request rate limit reached"}, MsgTooManyAttempts},
		{"first match wins", &provider.Error{Message: "invalid request"}, MsgInvalidCredentials},
		{"raw fallthrough", &provider.Error{Message: "Database exploded"}, "Database exploded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyLoginError(tc.err))
		})
	}
}
