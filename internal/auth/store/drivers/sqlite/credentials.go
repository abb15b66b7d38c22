package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

type credentialsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *credentialsRepo) GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	var (
		c         domain.Credential
		meta      []byte
		confirmed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT profile_id, email, password_hash, user_metadata, confirmed_at, created_at, updated_at
		   FROM credentials WHERE email = ?`, email,
	).Scan(&c.ProfileID, &c.Email, &c.PasswordHash, &meta, &confirmed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	c.ConfirmedAt = mapNullTimePtr(confirmed)
	if c.Metadata, err = decodeMetadata(meta); err != nil {
		return domain.Credential{}, err
	}
	return c, nil
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	now := r.now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (profile_id, email, password_hash, user_metadata, confirmed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ProfileID, c.Email, c.PasswordHash, meta, mapOptionalTime(c.ConfirmedAt), now, now,
	)
	return mapConstraint(err)
}

func encodeMetadata(m domain.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode user metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(b []byte) (domain.Metadata, error) {
	m := domain.Metadata{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode user metadata: %w", err)
	}
	return m, nil
}

func (r *credentialsRepo) UpdateCredentialMetadata(ctx context.Context, profileID string, m domain.Metadata) error {
	meta, err := encodeMetadata(m)
	if err != nil {
		return err
	}
	return requireRow(r.db.ExecContext(ctx,
		`UPDATE credentials SET user_metadata = ?, updated_at = ? WHERE profile_id = ?`,
		meta, r.now(), profileID,
	))
}
