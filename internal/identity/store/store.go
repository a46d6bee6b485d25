package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers (sqlite, memory)
// implement it and hand out sub-repositories so each service can be given
// only the ones it uses.
type Store interface {
	Transactor

	Users() Users
	BackupCodes() BackupCodes
	TrustedDevices() TrustedDevices
	DirectoryConfigs() DirectoryConfigs
	SSOConfigs() SSOConfigs
	Tenants() Tenants
	Settings() Settings

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	Close() error
	Ping(ctx context.Context) error
}

// Transactor is the slice of Store a service needs to run atomic multi-repo
// writes. fn receives a Tx-scoped store; returning an error rolls back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a transactional store. Nested transactions are not supported.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches on the normalised email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByDirectoryDN compares DNs case-insensitively within a tenant.
	GetUserByDirectoryDN(ctx context.Context, companyID, dn string) (domain.User, error)

	GetUserBySSOSubject(ctx context.Context, providerID, subject string) (domain.User, error)

	// ListDirectoryUsers returns every directory-sourced user of a tenant,
	// active or not.
	ListDirectoryUsers(ctx context.Context, companyID string) ([]domain.User, error)

	// CreateUser returns ErrAlreadyExists on an email or SSO subject clash.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser rewrites the identity, credential-link and state fields.
	// TOTP fields are only changed through the dedicated methods below.
	UpdateUser(ctx context.Context, u domain.User) error

	SetUserActive(ctx context.Context, id string, active bool, at time.Time) error

	// SetTwoFASecret stores a pending (not yet confirmed) sealed secret.
	SetTwoFASecret(ctx context.Context, id, sealed string, at time.Time) error
	EnableTwoFA(ctx context.Context, id string, at time.Time) error

	// DisableTwoFA clears both the flag and the secret.
	DisableTwoFA(ctx context.Context, id string, at time.Time) error

	CountUsers(ctx context.Context) (int, error)
}

type BackupCodes interface {
	CreateBackupCode(ctx context.Context, c domain.BackupCode) error
	ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// DeleteBackupCode returns ErrNotFound when the row is already gone, so
	// two concurrent redemptions of one code cannot both succeed.
	DeleteBackupCode(ctx context.Context, id string) error

	DeleteAllBackupCodes(ctx context.Context, userID string) error
	CountBackupCodes(ctx context.Context, userID string) (int, error)
}

type TrustedDevices interface {
	CreateTrustedDevice(ctx context.Context, d domain.TrustedDevice) error
	GetTrustedDeviceByHash(ctx context.Context, tokenHash string) (domain.TrustedDevice, error)
	ListUserTrustedDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error)
	TouchTrustedDevice(ctx context.Context, id string, at time.Time) error

	// DeleteTrustedDevice only deletes when the device belongs to userID.
	DeleteTrustedDevice(ctx context.Context, userID, id string) error

	// DeleteUserTrustedDevices returns how many rows were removed.
	DeleteUserTrustedDevices(ctx context.Context, userID string) (int, error)
}

type DirectoryConfigs interface {
	// CreateDirectoryConfig returns ErrAlreadyExists if the company has one.
	CreateDirectoryConfig(ctx context.Context, c domain.DirectoryConfig) error
	GetDirectoryConfig(ctx context.Context, id string) (domain.DirectoryConfig, error)
	GetDirectoryConfigByCompany(ctx context.Context, companyID string) (domain.DirectoryConfig, error)
	ListEnabledDirectoryConfigs(ctx context.Context) ([]domain.DirectoryConfig, error)
	UpdateDirectoryConfig(ctx context.Context, c domain.DirectoryConfig) error
	UpdateSyncStatus(ctx context.Context, id string, status domain.SyncStatus, at time.Time, message string, count int) error
	DeleteDirectoryConfig(ctx context.Context, id string) error
}

type SSOConfigs interface {
	// CreateSSOConfig returns ErrAlreadyExists if the company has one.
	CreateSSOConfig(ctx context.Context, c domain.SSOConfig) error
	GetSSOConfig(ctx context.Context, id string) (domain.SSOConfig, error)
	GetSSOConfigByCompany(ctx context.Context, companyID string) (domain.SSOConfig, error)
	ListEnabledSSOConfigs(ctx context.Context) ([]domain.SSOConfig, error)
	UpdateSSOConfig(ctx context.Context, c domain.SSOConfig) error
	DeleteSSOConfig(ctx context.Context, id string) error
}

// Tenants reads the company and park rows this core depends on. Their
// administration lives elsewhere; Create* exists for bootstrap and tests.
type Tenants interface {
	GetCompany(ctx context.Context, id string) (domain.Company, error)
	GetPark(ctx context.Context, id string) (domain.Park, error)
	CreateCompany(ctx context.Context, c domain.Company) error
	CreatePark(ctx context.Context, p domain.Park) error
}

type Settings interface {
	// GetSettings returns defaults when nothing has been stored yet.
	GetSettings(ctx context.Context) (domain.SystemSettings, error)
	UpdateSettings(ctx context.Context, s domain.SystemSettings) error
}

// DefaultSettings is what a fresh install runs with.
func DefaultSettings() domain.SystemSettings {
	return domain.SystemSettings{
		TwoFAEnforcement:      domain.EnforcementOptional,
		TrustedDevicesEnabled: true,
		TrustedDeviceDays:     domain.DefaultTrustedDeviceDays,
	}
}
