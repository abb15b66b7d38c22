package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

// CachedProfiles decorates a Profiles repo with a bounded, expiring cache of
// email lookups. Misses and errors are never cached. Profile writes drop the
// affected entry so a later lookup sees the stored row. Last-login writes do
// not: cached entries may carry a stale LastLogin until they expire.
type CachedProfiles struct {
	Profiles
	cache *lru.LRU[string, domain.Profile]
}

// NewCachedProfiles wraps next. A size below one disables caching and returns
// next unchanged.
func NewCachedProfiles(next Profiles, size int, ttl time.Duration) Profiles {
	if size < 1 {
		return next
	}
	return &CachedProfiles{
		Profiles: next,
		cache:    lru.NewLRU[string, domain.Profile](size, nil, ttl),
	}
}

func (c *CachedProfiles) FindProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	if p, ok := c.cache.Get(email); ok {
		return p, nil
	}

	p, err := c.Profiles.FindProfileByEmail(ctx, email)
	if err != nil {
		return domain.Profile{}, err
	}
	c.cache.Add(email, p)
	return p, nil
}

func (c *CachedProfiles) CreateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	c.cache.Remove(p.Email)
	return c.Profiles.CreateProfile(ctx, p)
}

func (c *CachedProfiles) UpdateProfile(ctx context.Context, p domain.Profile) error {
	c.evictID(p.ID)
	return c.Profiles.UpdateProfile(ctx, p)
}

// UpdateLastLogin writes through without touching the cache. Re-adding the
// entry would restart its TTL on every sign-in.
func (c *CachedProfiles) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return c.Profiles.UpdateLastLogin(ctx, id, at)
}

// Len reports the number of live entries.
func (c *CachedProfiles) Len() int { return c.cache.Len() }

func (c *CachedProfiles) evictID(id string) {
	for _, key := range c.cache.Keys() {
		if p, ok := c.cache.Peek(key); ok && p.ID == id {
			c.cache.Remove(key)
		}
	}
}
