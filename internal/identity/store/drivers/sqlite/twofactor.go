package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/jmoiron/sqlx"
)

type backupCodesRepo struct {
	q sqlx.ExtContext
}

type backupCodeRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CodeHash  string    `db:"code_hash"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, c domain.BackupCode) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO backup_codes (id, user_id, code_hash, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.CodeHash, c.CreatedAt)
	return mapWriteError(err)
}

func (r *backupCodesRepo) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	var rows []backupCodeRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT id, user_id, code_hash, created_at FROM backup_codes WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BackupCode, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.BackupCode(row))
	}
	return out, nil
}

func (r *backupCodesRepo) DeleteBackupCode(ctx context.Context, id string) error {
	return requireAffected(r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE id = ?`, id))
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID)
	return n, err
}

type trustedDevicesRepo struct {
	q sqlx.ExtContext
}

type trustedDeviceRow struct {
	ID         string       `db:"id"`
	UserID     string       `db:"user_id"`
	TokenHash  string       `db:"token_hash"`
	UserAgent  string       `db:"user_agent"`
	IP         string       `db:"ip"`
	ExpiresAt  time.Time    `db:"expires_at"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

func (r trustedDeviceRow) domain() domain.TrustedDevice {
	return domain.TrustedDevice{
		ID:         r.ID,
		UserID:     r.UserID,
		TokenHash:  r.TokenHash,
		UserAgent:  r.UserAgent,
		IP:         r.IP,
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: timePtr(r.LastUsedAt),
	}
}

const trustedDeviceColumns = `id, user_id, token_hash, user_agent, ip, expires_at, created_at, last_used_at`

func (r *trustedDevicesRepo) CreateTrustedDevice(ctx context.Context, d domain.TrustedDevice) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO trusted_devices (`+trustedDeviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.TokenHash, d.UserAgent, d.IP, d.ExpiresAt, d.CreatedAt, nullTime(d.LastUsedAt))
	return mapWriteError(err)
}

func (r *trustedDevicesRepo) GetTrustedDeviceByHash(ctx context.Context, hash string) (domain.TrustedDevice, error) {
	var row trustedDeviceRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+trustedDeviceColumns+` FROM trusted_devices WHERE token_hash = ?`, hash)
	if err != nil {
		return domain.TrustedDevice{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *trustedDevicesRepo) ListUserTrustedDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	var rows []trustedDeviceRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+trustedDeviceColumns+` FROM trusted_devices WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TrustedDevice, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *trustedDevicesRepo) TouchTrustedDevice(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		`UPDATE trusted_devices SET last_used_at = ? WHERE id = ?`, at, id))
}

func (r *trustedDevicesRepo) DeleteTrustedDevice(ctx context.Context, userID, id string) error {
	return requireAffected(r.q.ExecContext(ctx,
		`DELETE FROM trusted_devices WHERE id = ? AND user_id = ?`, id, userID))
}

func (r *trustedDevicesRepo) DeleteUserTrustedDevices(ctx context.Context, userID string) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM trusted_devices WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
