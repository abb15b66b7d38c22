package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/service"
	"github.com/aussiebroadwan/portal/internal/auth/store"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// countingProfiles is a minimal in-memory Profiles that counts lookups.
type countingProfiles struct {
	mu      sync.Mutex
	byEmail map[string]domain.Profile
	finds   int
	logins  int
}

func (c *countingProfiles) FindProfileByEmail(_ context.Context, email string) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finds++
	p, ok := c.byEmail[email]
	if !ok {
		return domain.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (c *countingProfiles) GetProfileByID(_ context.Context, id string) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Profile{}, store.ErrNotFound
}

func (c *countingProfiles) CreateProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byEmail[p.Email] = p
	return p, nil
}

func (c *countingProfiles) UpdateProfile(_ context.Context, p domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byEmail[p.Email] = p
	return nil
}

func (c *countingProfiles) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins++
	for email, p := range c.byEmail {
		if p.ID == id {
			p.LastLogin = &at
			c.byEmail[email] = p
			return nil
		}
	}
	return store.ErrNotFound
}

func (c *countingProfiles) IsEmpty(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byEmail) == 0, nil
}

func (c *countingProfiles) counts() (finds, logins int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finds, c.logins
}

func TestCachedProfiles(t *testing.T) {
	ctx := context.Background()

	t.Run("hits skip the backing repo", func(t *testing.T) {
		next := &countingProfiles{byEmail: map[string]domain.Profile{
			"a@example.com": {ID: "p1", Email: "a@example.com", Name: "A"},
		}}
		c := store.NewCachedProfiles(next, 8, time.Minute)

		for range 3 {
			p, err := c.FindProfileByEmail(ctx, "a@example.com")
			require.NoError(t, err)
			require.Equal(t, "p1", p.ID)
		}
		require.Equal(t, 1, next.finds)
	})

	t.Run("misses are not cached", func(t *testing.T) {
		next := &countingProfiles{byEmail: map[string]domain.Profile{}}
		c := store.NewCachedProfiles(next, 8, time.Minute)

		_, err := c.FindProfileByEmail(ctx, "x@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = c.FindProfileByEmail(ctx, "x@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.Equal(t, 2, next.finds)
	})

	t.Run("last login write keeps the entry", func(t *testing.T) {
		next := &countingProfiles{byEmail: map[string]domain.Profile{
			"a@example.com": {ID: "p1", Email: "a@example.com"},
		}}
		c := store.NewCachedProfiles(next, 8, time.Minute)

		_, err := c.FindProfileByEmail(ctx, "a@example.com")
		require.NoError(t, err)

		require.NoError(t, c.UpdateLastLogin(ctx, "p1", time.Now()))
		require.Equal(t, 1, c.(*store.CachedProfiles).Len())
		require.NotNil(t, next.byEmail["a@example.com"].LastLogin)

		_, err = c.FindProfileByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		require.Equal(t, 1, next.finds)
	})

	t.Run("profile write evicts", func(t *testing.T) {
		next := &countingProfiles{byEmail: map[string]domain.Profile{
			"a@example.com": {ID: "p1", Email: "a@example.com", Role: domain.RoleEditor},
		}}
		c := store.NewCachedProfiles(next, 8, time.Minute)

		_, err := c.FindProfileByEmail(ctx, "a@example.com")
		require.NoError(t, err)

		require.NoError(t, c.UpdateProfile(ctx, domain.Profile{ID: "p1", Email: "a@example.com", Role: domain.RoleAdmin}))
		require.Equal(t, 0, c.(*store.CachedProfiles).Len())

		p, err := c.FindProfileByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		require.Equal(t, domain.RoleAdmin, p.Role)
		require.Equal(t, 2, next.finds)
	})

	t.Run("zero size disables", func(t *testing.T) {
		next := &countingProfiles{byEmail: map[string]domain.Profile{}}
		c := store.NewCachedProfiles(next, 0, time.Minute)
		require.Same(t, next, c)
	})
}

func TestCachedProfilesServeRepeatSignIns(t *testing.T) {
	next := &countingProfiles{byEmail: map[string]domain.Profile{
		"a@example.com": {ID: "p1", Email: "a@example.com", Role: domain.RoleAdmin, Name: "Ada"},
	}}
	cached := store.NewCachedProfiles(next, 512, 30*time.Second)

	recorder := service.NewLastLoginRecorder(cached, slogx.Discard(), nil, 16)
	recorder.Start()
	resolver := &service.ProfileResolver{
		Profiles:  cached,
		LastLogin: recorder,
		Logger:    slogx.Discard(),
	}

	identity := domain.Identity{ID: "u1", Email: "a@example.com"}
	for range 5 {
		user, err := resolver.Derive(context.Background(), identity)
		require.NoError(t, err)
		require.Equal(t, domain.RoleAdmin, user.Role)
		require.Equal(t, "Ada", user.Name)
	}
	recorder.Stop()

	finds, logins := next.counts()
	require.Equal(t, 1, finds)
	require.Equal(t, 5, logins)
}
