package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it and expose sub-repositories so a transaction scoped
// Store looks exactly like the root one.
type Store interface {
	Profiles() Profiles
	Credentials() Credentials
	RefreshSessions() RefreshSessions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Profiles is the profile datastore the reconciler reads.
type Profiles interface {
	// FindProfileByEmail is an exact, case-sensitive match on email.
	FindProfileByEmail(ctx context.Context, email string) (domain.Profile, error)

	GetProfileByID(ctx context.Context, id string) (domain.Profile, error)

	// CreateProfile inserts p. An empty ID is assigned by the driver and the
	// stored profile is returned.
	CreateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)

	// UpdateProfile rewrites role, name, avatar and status and bumps updated_at.
	UpdateProfile(ctx context.Context, p domain.Profile) error

	// UpdateLastLogin sets last_login. Returns ErrNotFound for unknown ids.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

// Credentials backs the local identity provider.
type Credentials interface {
	GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error)
	CreateCredential(ctx context.Context, c domain.Credential) error

	// UpdateCredentialMetadata replaces the user metadata handed out with
	// identities.
	UpdateCredentialMetadata(ctx context.Context, profileID string, m domain.Metadata) error
}

// RefreshSessions stores local provider refresh tokens by fingerprint.
type RefreshSessions interface {
	// CreateRefreshSession inserts s. An empty ID is assigned by the driver.
	CreateRefreshSession(ctx context.Context, s domain.RefreshSession) (domain.RefreshSession, error)

	GetRefreshSessionByHash(ctx context.Context, hash string) (domain.RefreshSession, error)

	RevokeRefreshSession(ctx context.Context, id string) error

	// DeleteExpiredRefreshSessions removes expired or revoked rows and
	// reports how many went.
	DeleteExpiredRefreshSessions(ctx context.Context, now time.Time) (int64, error)
}
