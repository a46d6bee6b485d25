package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/storetest"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
}

func TestWithPragmas(t *testing.T) {
	require.Equal(t, "file.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("file.db"))
	require.Equal(t, "file.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("file.db?mode=rwc"))
}
