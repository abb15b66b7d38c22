package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/pkg/idx"
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
	err := row.Scan(&p.ID, &p.Username, &p.Email, &role, &p.Name, &avatar, &status, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Role = domain.Role(mapNullString(role))
	p.Avatar = mapNullString(avatar)
	p.Status = domain.ProfileStatus(status)
	p.LastLogin = mapNullTimePtr(lastLogin)
	return p, nil
}

func (r *profilesRepo) FindProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = ?`, email)
	p, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profilesRepo) GetProfileByID(ctx context.Context, id string) (domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (r *profilesRepo) CreateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	now := r.now()
	if p.ID == "" {
		p.ID = idx.New().String()
	}
	if p.Username == "" {
		p.Username = p.Email
	}
	if p.Status == "" {
		p.Status = domain.ProfileActive
	}
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.Email, mapStringNull(string(p.Role)), p.Name,
		mapStringNull(p.Avatar), string(p.Status), mapOptionalTime(p.LastLogin),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, mapConstraint(err)
	}
	return p, nil
}

func (r *profilesRepo) UpdateProfile(ctx context.Context, p domain.Profile) error {
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE profiles SET role = ?, name = ?, avatar = ?, status = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(string(p.Role)), p.Name, mapStringNull(p.Avatar), string(p.Status), r.now(), p.ID,
	))
}

func (r *profilesRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE profiles SET last_login = ? WHERE id = ?`, at.UTC(), id,
	))
}

func (r *profilesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
