// Package memory is an in-process store driver. It backs unit tests and
// STORE_DRIVER=memory runs; nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
)

var errTxDone = errors.New("memory: transaction already finished")

type data struct {
	users     map[string]domain.User
	codes     map[string]domain.BackupCode
	devices   map[string]domain.TrustedDevice
	dirs      map[string]domain.DirectoryConfig
	ssos      map[string]domain.SSOConfig
	companies map[string]domain.Company
	parks     map[string]domain.Park
	settings  *domain.SystemSettings
}

func newData() *data {
	return &data{
		users:     map[string]domain.User{},
		codes:     map[string]domain.BackupCode{},
		devices:   map[string]domain.TrustedDevice{},
		dirs:      map[string]domain.DirectoryConfig{},
		ssos:      map[string]domain.SSOConfig{},
		companies: map[string]domain.Company{},
		parks:     map[string]domain.Park{},
	}
}

// clone is shallow per row; rows are copied on write so that is enough.
func (d *data) clone() *data {
	c := &data{
		users:     maps.Clone(d.users),
		codes:     maps.Clone(d.codes),
		devices:   maps.Clone(d.devices),
		dirs:      maps.Clone(d.dirs),
		ssos:      maps.Clone(d.ssos),
		companies: maps.Clone(d.companies),
		parks:     maps.Clone(d.parks),
	}
	if d.settings != nil {
		s := *d.settings
		c.settings = &s
	}
	return c
}

// db guards data. Every repository call takes mu; transactions additionally
// serialise on txMu and restore a snapshot on rollback.
type db struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	d    *data
}

type Store struct {
	db *db
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{db: &db{d: newData()}}
}

func (s *Store) Users() store.Users                       { return &usersRepo{db: s.db} }
func (s *Store) BackupCodes() store.BackupCodes           { return &backupCodesRepo{db: s.db} }
func (s *Store) TrustedDevices() store.TrustedDevices     { return &trustedDevicesRepo{db: s.db} }
func (s *Store) DirectoryConfigs() store.DirectoryConfigs { return &directoryConfigsRepo{db: s.db} }
func (s *Store) SSOConfigs() store.SSOConfigs             { return &ssoConfigsRepo{db: s.db} }
func (s *Store) Tenants() store.Tenants                   { return &tenantsRepo{db: s.db} }
func (s *Store) Settings() store.Settings                 { return &settingsRepo{db: s.db} }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.txMu.Lock()

	s.db.mu.RLock()
	snap := s.db.d.clone()
	s.db.mu.RUnlock()

	return &txStore{Store: &Store{db: s.db}, snap: snap}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	*Store

	mu   sync.Mutex
	snap *data
	done bool
}

func (t *txStore) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.done = true
	t.db.txMu.Unlock()
	return nil
}

func (t *txStore) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true

	t.db.mu.Lock()
	t.db.d = t.snap
	t.db.mu.Unlock()

	t.db.txMu.Unlock()
	return nil
}

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, errTxDone }

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return errTxDone }

func (t *txStore) Close() error { return nil }
