package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates admin and confirmed credential", func(t *testing.T) {
		st := newSQLiteStore(t)
		hasher := &cryptox.Hasher{Pepper: "pepper"}
		svc := &BootstrapService{Store: st, Hasher: hasher, Email: " admin@x.com ", Password: "hunter22"}
		require.True(t, svc.Configured())

		admin, err := svc.Bootstrap(ctx)
		require.NoError(t, err)
		require.Equal(t, "admin@x.com", admin.Email)
		require.Equal(t, domain.RoleAdmin, admin.Role)
		require.Equal(t, "admin@x.com", admin.Name)

		cred, err := st.Credentials().GetCredentialByEmail(ctx, "admin@x.com")
		require.NoError(t, err)
		require.Equal(t, admin.ID, cred.ProfileID)
		require.NotNil(t, cred.ConfirmedAt)
		require.NoError(t, hasher.Verify("hunter22", cred.PasswordHash))
		role, ok := cred.Metadata.Role()
		require.True(t, ok)
		require.Equal(t, domain.RoleAdmin, role)

		bootstrapped, err := svc.IsBootstrapped(ctx)
		require.NoError(t, err)
		require.True(t, bootstrapped)

		_, err = svc.Bootstrap(ctx)
		require.ErrorIs(t, err, ErrBootstrapAlready)
	})

	t.Run("profile only without hasher", func(t *testing.T) {
		st := newSQLiteStore(t)
		svc := &BootstrapService{Store: st, Email: "admin@x.com", Name: "Root"}

		admin, err := svc.Bootstrap(ctx)
		require.NoError(t, err)
		require.Equal(t, "Root", admin.Name)

		_, err = st.Credentials().GetCredentialByEmail(ctx, "admin@x.com")
		require.Error(t, err)
	})

	t.Run("password required with hasher", func(t *testing.T) {
		st := newSQLiteStore(t)
		svc := &BootstrapService{Store: st, Hasher: &cryptox.Hasher{}, Email: "admin@x.com"}

		_, err := svc.Bootstrap(ctx)
		require.ErrorIs(t, err, ErrBootstrapIncomplete)

		empty, err := st.Profiles().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	t.Run("not configured", func(t *testing.T) {
		svc := &BootstrapService{Email: "  "}
		require.False(t, svc.Configured())
	})
}

func TestHousekeepingCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newSQLiteStore(t)

	profile, err := st.Profiles().CreateProfile(ctx, domain.Profile{Email: "a@x.com"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	live, err := st.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: profile.ID, TokenHash: "live", ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = st.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: profile.ID, TokenHash: "expired", ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	revoked, err := st.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		ProfileID: profile.ID, TokenHash: "revoked", ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, st.RefreshSessions().RevokeRefreshSession(ctx, revoked.ID))

	m := NewMetrics(prometheus.NewRegistry())
	hk := NewHousekeepingService(st, slogx.Discard(), m, 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.now = func() time.Time { return now }

	require.Equal(t, int64(2), hk.Cleanup(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(m.HousekeepingDeleted))

	got, err := st.RefreshSessions().GetRefreshSessionByHash(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)

	require.Zero(t, hk.Cleanup(ctx))
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	hk := NewHousekeepingService(newSQLiteStore(t), slogx.Discard(), nil, time.Hour)
	hk.Start()
	hk.Stop()
}
