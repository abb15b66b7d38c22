package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/internal/auth/store"
)

const profileColumns = `id, username, email, role, name, avatar, status, last_login, created_at, updated_at`

type profilesRepo struct {
	db  dbtx
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		p         domain.Profile
		role      sql.NullString
		avatar    sql.NullString
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &role, &p.Name, &avatar, &status, &lastLogin, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Profile{}, err
	}
	p.Role = domain.Role(role.String)
	p.Avatar = avatar.String
	p.Status = domain.ProfileStatus(status)
	p.LastLogin = timePtr(lastLogin)
	return p, nil
}

func (r *profilesRepo) FindProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email))
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profilesRepo) GetProfileByID(ctx context.Context, id string) (domain.Profile, error) {
	if !validID(id) {
		return domain.Profile{}, store.ErrNotFound
	}
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profilesRepo) CreateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	now := r.now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Username == "" {
		p.Username = p.Email
	}
	if p.Status == "" {
		p.Status = domain.ProfileActive
	}
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Username, p.Email, nullString(string(p.Role)), p.Name,
		nullString(p.Avatar), string(p.Status), nullTime(p.LastLogin),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, mapConstraint(err)
	}
	return p, nil
}

func (r *profilesRepo) UpdateProfile(ctx context.Context, p domain.Profile) error {
	if !validID(p.ID) {
		return store.ErrNotFound
	}
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $1, name = $2, avatar = $3, status = $4, updated_at = $5 WHERE id = $6`,
		nullString(string(p.Role)), p.Name, nullString(p.Avatar), string(p.Status), r.now(), p.ID,
	))
}

func (r *profilesRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE profiles SET last_login = $1 WHERE id = $2`, at.UTC(), id,
	))
}

func (r *profilesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles)`).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}
