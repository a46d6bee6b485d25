package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, name, role, company_id, park_id, auth_source, password_hash,
	directory_dn, sso_subject_id, sso_provider_id, is_active, twofa_enabled, twofa_secret,
	created_at, updated_at`

type userRow struct {
	ID            string         `db:"id"`
	Email         string         `db:"email"`
	Name          string         `db:"name"`
	Role          string         `db:"role"`
	CompanyID     string         `db:"company_id"`
	ParkID        sql.NullString `db:"park_id"`
	AuthSource    string         `db:"auth_source"`
	PasswordHash  string         `db:"password_hash"`
	DirectoryDN   sql.NullString `db:"directory_dn"`
	SSOSubjectID  sql.NullString `db:"sso_subject_id"`
	SSOProviderID sql.NullString `db:"sso_provider_id"`
	IsActive      bool           `db:"is_active"`
	TwoFAEnabled  bool           `db:"twofa_enabled"`
	TwoFASecret   sql.NullString `db:"twofa_secret"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r userRow) domain() (domain.User, error) {
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", r.ID, err)
	}
	src, err := domain.ParseAuthSource(r.AuthSource)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", r.ID, err)
	}
	return domain.User{
		ID:            r.ID,
		Email:         r.Email,
		Name:          r.Name,
		Role:          role,
		CompanyID:     r.CompanyID,
		ParkID:        stringPtr(r.ParkID),
		AuthSource:    src,
		PasswordHash:  r.PasswordHash,
		DirectoryDN:   stringPtr(r.DirectoryDN),
		SSOSubjectID:  stringPtr(r.SSOSubjectID),
		SSOProviderID: stringPtr(r.SSOProviderID),
		IsActive:      r.IsActive,
		TwoFAEnabled:  r.TwoFAEnabled,
		TwoFASecret:   stringPtr(r.TwoFASecret),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

type usersRepo struct {
	q sqlx.ExtContext
}

func (r *usersRepo) getOne(ctx context.Context, where string, args ...any) (domain.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return row.domain()
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `email = ?`, domain.NormalizeEmail(email))
}

func (r *usersRepo) GetUserByDirectoryDN(ctx context.Context, companyID, dn string) (domain.User, error) {
	return r.getOne(ctx, `company_id = ? AND directory_dn = ? COLLATE NOCASE LIMIT 1`, companyID, dn)
}

func (r *usersRepo) GetUserBySSOSubject(ctx context.Context, providerID, subject string) (domain.User, error) {
	return r.getOne(ctx, `sso_provider_id = ? AND sso_subject_id = ?`, providerID, subject)
}

func (r *usersRepo) ListDirectoryUsers(ctx context.Context, companyID string) ([]domain.User, error) {
	var rows []userRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+userColumns+` FROM users WHERE company_id = ? AND auth_source = ? ORDER BY id`,
		companyID, domain.AuthSourceDirectory.String())
	if err != nil {
		return nil, err
	}

	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, domain.NormalizeEmail(u.Email), u.Name, u.Role.String(), u.CompanyID, nullString(u.ParkID),
		u.AuthSource.String(), u.PasswordHash, nullString(u.DirectoryDN), nullString(u.SSOSubjectID),
		nullString(u.SSOProviderID), u.IsActive, u.TwoFAEnabled, nullString(u.TwoFASecret),
		u.CreatedAt, u.UpdatedAt,
	)
	return mapWriteError(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	return requireAffected(r.q.ExecContext(ctx, `
		UPDATE users SET
			email = ?, name = ?, role = ?, park_id = ?, auth_source = ?, password_hash = ?,
			directory_dn = ?, sso_subject_id = ?, sso_provider_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		domain.NormalizeEmail(u.Email), u.Name, u.Role.String(), nullString(u.ParkID), u.AuthSource.String(),
		u.PasswordHash, nullString(u.DirectoryDN), nullString(u.SSOSubjectID), nullString(u.SSOProviderID),
		u.IsActive, u.UpdatedAt, u.ID,
	))
}

func (r *usersRepo) SetUserActive(ctx context.Context, id string, active bool, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id))
}

func (r *usersRepo) SetTwoFASecret(ctx context.Context, id, sealed string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		`UPDATE users SET twofa_secret = ?, updated_at = ? WHERE id = ?`, sealed, at, id))
}

func (r *usersRepo) EnableTwoFA(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		`UPDATE users SET twofa_enabled = 1, updated_at = ? WHERE id = ?`, at, id))
}

func (r *usersRepo) DisableTwoFA(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		`UPDATE users SET twofa_enabled = 0, twofa_secret = NULL, updated_at = ? WHERE id = ?`, at, id))
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}
