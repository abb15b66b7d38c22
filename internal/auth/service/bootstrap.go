package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

var (
	ErrBootstrapAlready             = errors.New("system already bootstrapped")
	ErrBootstrapIncomplete          = errors.New("bootstrap email and password are required")
	ErrBootstrapFailedToCreateAdmin = errors.New("failed to create admin profile")
)

// BootstrapService seeds the first admin profile into an empty store. With a
// Hasher it also creates the matching local credential, already confirmed.
type BootstrapService struct {
	Store  store.Store
	Hasher *cryptox.Hasher // nil when an external provider owns credentials

	Email    string
	Password string
	Name     string
}

// Configured reports whether bootstrap values were supplied.
func (s *BootstrapService) Configured() bool {
	return strings.TrimSpace(s.Email) != ""
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Profiles().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

func (s *BootstrapService) Bootstrap(ctx context.Context) (domain.Profile, error) {
	l := slogx.FromContext(ctx)

	if bootstrapped, err := s.IsBootstrapped(ctx); err != nil {
		return domain.Profile{}, err
	} else if bootstrapped {
		return domain.Profile{}, ErrBootstrapAlready
	}

	email := strings.TrimSpace(s.Email)
	if email == "" || (s.Hasher != nil && s.Password == "") {
		return domain.Profile{}, ErrBootstrapIncomplete
	}
	name := s.Name
	if name == "" {
		name = email
	}

	var passHash string
	if s.Hasher != nil {
		var err error
		if passHash, err = s.Hasher.Hash(s.Password); err != nil {
			l.Error("failed to hash admin password", slog.Any("error", err))
			return domain.Profile{}, ErrBootstrapFailedToCreateAdmin
		}
	}

	var admin domain.Profile
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		admin, err = tx.Profiles().CreateProfile(ctx, domain.Profile{
			Email: email,
			Role:  domain.RoleAdmin,
			Name:  name,
		})
		if err != nil {
			l.Error("failed to create admin profile", slog.String("email", email), slog.Any("error", err))
			return ErrBootstrapFailedToCreateAdmin
		}

		if s.Hasher == nil {
			return nil
		}

		confirmed := time.Now().UTC()
		err = tx.Credentials().CreateCredential(ctx, domain.Credential{
			ProfileID:    admin.ID,
			Email:        email,
			PasswordHash: passHash,
			ConfirmedAt:  &confirmed,
			Metadata: domain.Metadata{
				domain.MetadataKeyRole: string(domain.RoleAdmin),
				domain.MetadataKeyName: name,
			},
		})
		if err != nil {
			l.Error("failed to create admin credential", slog.String("profile_id", admin.ID), slog.Any("error", err))
			return ErrBootstrapFailedToCreateAdmin
		}
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}

	l.Info("successfully bootstrapped system",
		slog.String("admin_profile_id", admin.ID),
		slog.Bool("local_credential", s.Hasher != nil),
	)
	return admin, nil
}
