package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store"
)

var ErrMissingEmail = errors.New("user email is missing")

// LoginRecorder accepts last-login writes without blocking the caller.
type LoginRecorder interface {
	Record(profileID string, at time.Time) bool
}

// ProfileResolver turns a verified identity into an ApplicationUser using the
// profile store, falling back to provider metadata and then to defaults.
type ProfileResolver struct {
	Profiles  store.Profiles
	LastLogin LoginRecorder // optional
	Logger    *slog.Logger
	Metrics   *Metrics
	Now       func() time.Time
}

// Derive never fails on profile store problems; a failed lookup is treated
// like a missing profile. The only error is ErrMissingEmail.
func (r *ProfileResolver) Derive(ctx context.Context, identity domain.Identity) (domain.ApplicationUser, error) {
	if !identity.HasEmail() {
		return domain.ApplicationUser{}, ErrMissingEmail
	}

	profile, found := r.lookup(ctx, identity.Email)

	user := domain.ApplicationUser{
		ID:       identity.ID,
		Email:    identity.Email,
		Role:     resolveRole(profile, found, identity.Metadata),
		Name:     resolveName(profile, found, identity),
		Metadata: identity.Metadata.Clone(),
	}

	if found && r.LastLogin != nil {
		if !r.LastLogin.Record(profile.ID, r.now()) {
			r.Logger.Warn("last login update dropped", slog.String("profile_id", profile.ID))
		}
	}
	return user, nil
}

func (r *ProfileResolver) lookup(ctx context.Context, email string) (domain.Profile, bool) {
	profile, err := r.Profiles.FindProfileByEmail(ctx, email)
	switch {
	case err == nil:
		r.Metrics.lookup("found")
		return profile, true
	case errors.Is(err, store.ErrNotFound):
		r.Metrics.lookup("not_found")
	default:
		r.Metrics.lookup("error")
		r.Logger.Warn("profile lookup failed, using provider metadata",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}
	return domain.Profile{}, false
}

func (r *ProfileResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func resolveRole(p domain.Profile, found bool, m domain.Metadata) domain.Role {
	if found && p.Role.Valid() {
		return p.Role
	}
	if role, ok := m.Role(); ok {
		return role
	}
	return domain.DefaultRole
}

func resolveName(p domain.Profile, found bool, identity domain.Identity) string {
	if found && p.Name != "" {
		return p.Name
	}
	if name, ok := identity.Metadata.Name(); ok {
		return name
	}
	return identity.Email
}
