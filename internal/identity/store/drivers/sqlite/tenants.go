package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/jmoiron/sqlx"
)

type tenantsRepo struct {
	q sqlx.ExtContext
}

type companyRow struct {
	ID               string    `db:"id"`
	ParkID           string    `db:"park_id"`
	Name             string    `db:"name"`
	TwoFAEnforcement string    `db:"twofa_enforcement"`
	CreatedAt        time.Time `db:"created_at"`
}

type parkRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	TwoFAEnforcement string    `db:"twofa_enforcement"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r *tenantsRepo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var row companyRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, park_id, name, twofa_enforcement, created_at FROM companies WHERE id = ?`, id)
	if err != nil {
		return domain.Company{}, mapNotFound(err)
	}
	level, err := domain.ParseLevelEnforcement(row.TwoFAEnforcement)
	if err != nil {
		return domain.Company{}, err
	}
	return domain.Company{
		ID:               row.ID,
		ParkID:           row.ParkID,
		Name:             row.Name,
		TwoFAEnforcement: level,
		CreatedAt:        row.CreatedAt,
	}, nil
}

func (r *tenantsRepo) GetPark(ctx context.Context, id string) (domain.Park, error) {
	var row parkRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, name, twofa_enforcement, created_at FROM parks WHERE id = ?`, id)
	if err != nil {
		return domain.Park{}, mapNotFound(err)
	}
	level, err := domain.ParseLevelEnforcement(row.TwoFAEnforcement)
	if err != nil {
		return domain.Park{}, err
	}
	return domain.Park{
		ID:               row.ID,
		Name:             row.Name,
		TwoFAEnforcement: level,
		CreatedAt:        row.CreatedAt,
	}, nil
}

func (r *tenantsRepo) CreateCompany(ctx context.Context, c domain.Company) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO companies (id, park_id, name, twofa_enforcement, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ParkID, c.Name, levelOrInherit(c.TwoFAEnforcement), c.CreatedAt)
	return mapWriteError(err)
}

func (r *tenantsRepo) CreatePark(ctx context.Context, p domain.Park) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO parks (id, name, twofa_enforcement, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, levelOrInherit(p.TwoFAEnforcement), p.CreatedAt)
	return mapWriteError(err)
}

func levelOrInherit(l domain.LevelEnforcement) string {
	if l == domain.LevelUnknown {
		return domain.LevelInherit.String()
	}
	return l.String()
}

type settingsRepo struct {
	q sqlx.ExtContext
}

type settingsRow struct {
	TwoFAEnforcement      string    `db:"twofa_enforcement"`
	TrustedDevicesEnabled bool      `db:"trusted_devices_enabled"`
	TrustedDeviceDays     int       `db:"trusted_device_days"`
	UpdatedAt             time.Time `db:"updated_at"`
}

func (r *settingsRepo) GetSettings(ctx context.Context) (domain.SystemSettings, error) {
	var row settingsRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT twofa_enforcement, trusted_devices_enabled, trusted_device_days, updated_at
		FROM system_settings WHERE id = 1`)
	if err != nil {
		err = mapNotFound(err)
		if errors.Is(err, store.ErrNotFound) {
			return store.DefaultSettings(), nil
		}
		return domain.SystemSettings{}, err
	}

	mode, err := domain.ParseEnforcement(row.TwoFAEnforcement)
	if err != nil {
		mode = domain.EnforcementOptional
	}
	return domain.SystemSettings{
		TwoFAEnforcement:      mode,
		TrustedDevicesEnabled: row.TrustedDevicesEnabled,
		TrustedDeviceDays:     row.TrustedDeviceDays,
		UpdatedAt:             row.UpdatedAt,
	}, nil
}

func (r *settingsRepo) UpdateSettings(ctx context.Context, s domain.SystemSettings) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO system_settings (id, twofa_enforcement, trusted_devices_enabled, trusted_device_days, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			twofa_enforcement = excluded.twofa_enforcement,
			trusted_devices_enabled = excluded.trusted_devices_enabled,
			trusted_device_days = excluded.trusted_device_days,
			updated_at = excluded.updated_at`,
		s.TwoFAEnforcement.String(), s.TrustedDevicesEnabled, s.TrustedDeviceDays, s.UpdatedAt)
	return err
}
