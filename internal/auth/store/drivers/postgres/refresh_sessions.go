package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store"
)

type refreshSessionsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *refreshSessionsRepo) CreateRefreshSession(ctx context.Context, s domain.RefreshSession) (domain.RefreshSession, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = r.now()
	s.ExpiresAt = s.ExpiresAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, profile_id, token_hash, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.ProfileID, s.TokenHash, s.ExpiresAt, s.Revoked, s.CreatedAt,
	)
	if err != nil {
		return domain.RefreshSession{}, mapConstraint(err)
	}
	return s, nil
}

func (r *refreshSessionsRepo) GetRefreshSessionByHash(ctx context.Context, hash string) (domain.RefreshSession, error) {
	var s domain.RefreshSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, profile_id, token_hash, expires_at, revoked, created_at
		   FROM refresh_sessions WHERE token_hash = $1`, hash,
	).Scan(&s.ID, &s.ProfileID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &s.CreatedAt)
	if err != nil {
		return domain.RefreshSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *refreshSessionsRepo) RevokeRefreshSession(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked = TRUE WHERE id = $1`, id,
	))
}

func (r *refreshSessionsRepo) DeleteExpiredRefreshSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE revoked OR expires_at <= $1`, now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
