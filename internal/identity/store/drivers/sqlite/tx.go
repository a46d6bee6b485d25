package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/jmoiron/sqlx"
)

type txStore struct {
	tx *sqlx.Tx
}

func newTx(tx *sqlx.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error         { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                       { return &usersRepo{q: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes           { return &backupCodesRepo{q: t.tx} }
func (t *txStore) TrustedDevices() store.TrustedDevices     { return &trustedDevicesRepo{q: t.tx} }
func (t *txStore) DirectoryConfigs() store.DirectoryConfigs { return &directoryConfigsRepo{q: t.tx} }
func (t *txStore) SSOConfigs() store.SSOConfigs             { return &ssoConfigsRepo{q: t.tx} }
func (t *txStore) Tenants() store.Tenants                   { return &tenantsRepo{q: t.tx} }
func (t *txStore) Settings() store.Settings                 { return &settingsRepo{q: t.tx} }
