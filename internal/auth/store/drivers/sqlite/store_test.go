package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store"
	"github.com/aussiebroadwan/portal/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Profiles().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	p, err := s.Profiles().CreateProfile(ctx, domain.Profile{
		Email: "alice@example.com",
		Role:  domain.RoleAdmin,
		Name:  "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "alice@example.com", p.Username)
	require.Equal(t, domain.ProfileActive, p.Status)

	t.Run("find by email", func(t *testing.T) {
		got, err := s.Profiles().FindProfileByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, p.ID, got.ID)
		require.Equal(t, domain.RoleAdmin, got.Role)
		require.Equal(t, "Alice", got.Name)
		require.Nil(t, got.LastLogin)
	})

	t.Run("email match is exact", func(t *testing.T) {
		_, err := s.Profiles().FindProfileByEmail(ctx, "ALICE@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := s.Profiles().CreateProfile(ctx, domain.Profile{Email: "alice@example.com", Username: "other"})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("null role reads back empty", func(t *testing.T) {
		created, err := s.Profiles().CreateProfile(ctx, domain.Profile{Email: "bob@example.com"})
		require.NoError(t, err)

		got, err := s.Profiles().GetProfileByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, domain.Role(""), got.Role)
		require.Empty(t, got.Avatar)
	})

	t.Run("update last login", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Profiles().UpdateLastLogin(ctx, p.ID, at))

		got, err := s.Profiles().GetProfileByID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		require.True(t, at.Equal(*got.LastLogin))
	})

	t.Run("update last login unknown id", func(t *testing.T) {
		err := s.Profiles().UpdateLastLogin(ctx, "missing", time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update profile", func(t *testing.T) {
		p.Name = "Alice A."
		p.Avatar = "https://example.com/a.png"
		p.Status = domain.ProfileInactive
		require.NoError(t, s.Profiles().UpdateProfile(ctx, p))

		got, err := s.Profiles().GetProfileByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, "Alice A.", got.Name)
		require.Equal(t, "https://example.com/a.png", got.Avatar)
		require.Equal(t, domain.ProfileInactive, got.Status)
	})
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Profiles().CreateProfile(ctx, domain.Profile{Email: "carol@example.com"})
	require.NoError(t, err)

	require.NoError(t, s.Credentials().CreateCredential(ctx, domain.Credential{
		ProfileID:    p.ID,
		Email:        p.Email,
		PasswordHash: "hash-1",
		Metadata:     domain.Metadata{"name": "Carol C."},
	}))

	c, err := s.Credentials().GetCredentialByEmail(ctx, p.Email)
	require.NoError(t, err)
	require.Equal(t, "hash-1", c.PasswordHash)
	require.Nil(t, c.ConfirmedAt)
	name, ok := c.Metadata.Name()
	require.True(t, ok)
	require.Equal(t, "Carol C.", name)

	require.NoError(t, s.Credentials().UpdateCredentialMetadata(ctx, p.ID, domain.Metadata{"role": "admin"}))

	c, err = s.Credentials().GetCredentialByEmail(ctx, p.Email)
	require.NoError(t, err)
	role, ok := c.Metadata.Role()
	require.True(t, ok)
	require.Equal(t, domain.RoleAdmin, role)

	_, err = s.Credentials().GetCredentialByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	t.Run("foreign key enforced", func(t *testing.T) {
		err := s.Credentials().CreateCredential(ctx, domain.Credential{
			ProfileID:    "missing",
			Email:        "ghost@example.com",
			PasswordHash: "x",
		})
		require.Error(t, err)
	})
}

func TestRefreshSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.Profiles().CreateProfile(ctx, domain.Profile{Email: "dave@example.com"})
	require.NoError(t, err)

	now := time.Now().UTC()
	live, err := s.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: p.ID,
		TokenHash: "live",
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, live.ID)

	_, err = s.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: p.ID,
		TokenHash: "expired",
		ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	revoked, err := s.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: p.ID,
		TokenHash: "revoked",
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, s.RefreshSessions().RevokeRefreshSession(ctx, revoked.ID))

	got, err := s.RefreshSessions().GetRefreshSessionByHash(ctx, "revoked")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	n, err := s.RefreshSessions().DeleteExpiredRefreshSessions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err = s.RefreshSessions().GetRefreshSessionByHash(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)
	require.False(t, got.Revoked)
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Profiles().CreateProfile(ctx, domain.Profile{Email: "tx@example.com"})
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Profiles().FindProfileByEmail(ctx, "tx@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			p, err := tx.Profiles().CreateProfile(ctx, domain.Profile{Email: "tx@example.com"})
			if err != nil {
				return err
			}
			return tx.Credentials().CreateCredential(ctx, domain.Credential{
				ProfileID: p.ID, Email: p.Email, PasswordHash: "h",
			})
		})
		require.NoError(t, err)

		_, err = s.Credentials().GetCredentialByEmail(ctx, "tx@example.com")
		require.NoError(t, err)
	})

	t.Run("nested tx rejected", func(t *testing.T) {
		tx, err := s.Tx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.Tx(ctx)
		require.Error(t, err)
	})
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}
