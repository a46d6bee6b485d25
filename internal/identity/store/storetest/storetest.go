// Package storetest holds the behaviour every store driver must share. Driver
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a migrated, empty store. The driver registers cleanup.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises the repositories of s.
func Run(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("backup codes", func(t *testing.T) { testBackupCodes(t, newStore(t)) })
	t.Run("trusted devices", func(t *testing.T) { testTrustedDevices(t, newStore(t)) })
	t.Run("directory configs", func(t *testing.T) { testDirectoryConfigs(t, newStore(t)) })
	t.Run("sso configs", func(t *testing.T) { testSSOConfigs(t, newStore(t)) })
	t.Run("tenants and settings", func(t *testing.T) { testTenants(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTx(t, newStore(t)) })
}

// SeedCompany creates a park and a company under it.
func SeedCompany(t *testing.T, s store.Store, parkID, companyID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Tenants().GetPark(ctx, parkID); errors.Is(err, store.ErrNotFound) {
		require.NoError(t, s.Tenants().CreatePark(ctx, domain.Park{ID: parkID, Name: parkID, TwoFAEnforcement: domain.LevelInherit, CreatedAt: epoch}))
	}
	require.NoError(t, s.Tenants().CreateCompany(ctx, domain.Company{
		ID: companyID, ParkID: parkID, Name: companyID, TwoFAEnforcement: domain.LevelInherit, CreatedAt: epoch,
	}))
}

// NewUser returns a local user of companyID that has not been stored.
func NewUser(companyID, email string) domain.User {
	return domain.User{
		ID:         idx.New().String(),
		Email:      email,
		Name:       "Test User",
		Role:       domain.RoleUser,
		CompanyID:  companyID,
		AuthSource: domain.AuthSourceLocal,
		IsActive:   true,
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")
	users := s.Users()

	u := NewUser("co-1", "Alice@Example.com")
	require.NoError(t, users.CreateUser(ctx, u))

	got, err := users.GetUserByEmail(ctx, "alice@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, domain.RoleUser, got.Role)
	require.Equal(t, domain.AuthSourceLocal, got.AuthSource)
	require.Nil(t, got.DirectoryDN)

	dup := NewUser("co-1", "alice@example.com")
	require.ErrorIs(t, users.CreateUser(ctx, dup), store.ErrAlreadyExists)

	_, err = users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	t.Run("directory lookup ignores DN case", func(t *testing.T) {
		d := NewUser("co-1", "bob@example.com")
		d.AuthSource = domain.AuthSourceDirectory
		d.DirectoryDN = domain.Ptr("uid=bob,ou=People,dc=example,dc=com")
		require.NoError(t, users.CreateUser(ctx, d))

		got, err := users.GetUserByDirectoryDN(ctx, "co-1", "UID=BOB,OU=people,DC=example,DC=com")
		require.NoError(t, err)
		require.Equal(t, d.ID, got.ID)

		_, err = users.GetUserByDirectoryDN(ctx, "co-2", "uid=bob,ou=People,dc=example,dc=com")
		require.ErrorIs(t, err, store.ErrNotFound)

		list, err := users.ListDirectoryUsers(ctx, "co-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, d.ID, list[0].ID)
	})

	t.Run("sso subject is unique per provider", func(t *testing.T) {
		a := NewUser("co-1", "carol@example.com")
		a.AuthSource = domain.AuthSourceOIDC
		a.SSOProviderID = domain.Ptr("sso-1")
		a.SSOSubjectID = domain.Ptr("sub-123")
		require.NoError(t, users.CreateUser(ctx, a))

		got, err := users.GetUserBySSOSubject(ctx, "sso-1", "sub-123")
		require.NoError(t, err)
		require.Equal(t, a.ID, got.ID)

		b := NewUser("co-1", "dave@example.com")
		b.AuthSource = domain.AuthSourceOIDC
		b.SSOProviderID = domain.Ptr("sso-1")
		b.SSOSubjectID = domain.Ptr("sub-123")
		require.ErrorIs(t, users.CreateUser(ctx, b), store.ErrAlreadyExists)
	})

	t.Run("update leaves totp fields alone", func(t *testing.T) {
		require.NoError(t, users.SetTwoFASecret(ctx, u.ID, "sealed", epoch))
		require.NoError(t, users.EnableTwoFA(ctx, u.ID, epoch))

		u.Name = "Alice Renamed"
		u.Role = domain.RoleCompanyAdmin
		u.UpdatedAt = epoch.Add(time.Hour)
		require.NoError(t, users.UpdateUser(ctx, u))

		got, err := users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Alice Renamed", got.Name)
		require.Equal(t, domain.RoleCompanyAdmin, got.Role)
		require.True(t, got.TwoFAEnabled)
		require.Equal(t, "sealed", domain.Deref(got.TwoFASecret))

		require.NoError(t, users.DisableTwoFA(ctx, u.ID, epoch))
		got, err = users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFAEnabled)
		require.Nil(t, got.TwoFASecret)
	})

	t.Run("set active", func(t *testing.T) {
		require.NoError(t, users.SetUserActive(ctx, u.ID, false, epoch))
		got, err := users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.IsActive)

		require.ErrorIs(t, users.SetUserActive(ctx, "missing", true, epoch), store.ErrNotFound)
	})

	n, err := users.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func testBackupCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")
	u := NewUser("co-1", "codes@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	codes := s.BackupCodes()
	var ids []string
	for range 3 {
		c := domain.BackupCode{ID: idx.New().String(), UserID: u.ID, CodeHash: "hash", CreatedAt: epoch}
		require.NoError(t, codes.CreateBackupCode(ctx, c))
		ids = append(ids, c.ID)
	}

	n, err := codes.CountBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	list, err := codes.ListBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	t.Run("a code deletes once", func(t *testing.T) {
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			won int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if codes.DeleteBackupCode(ctx, ids[0]) == nil {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, won)
		require.ErrorIs(t, codes.DeleteBackupCode(ctx, ids[0]), store.ErrNotFound)
	})

	require.NoError(t, codes.DeleteAllBackupCodes(ctx, u.ID))
	n, err = codes.CountBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testTrustedDevices(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")
	u := NewUser("co-1", "devices@example.com")
	other := NewUser("co-1", "other@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.NoError(t, s.Users().CreateUser(ctx, other))

	devices := s.TrustedDevices()
	d := domain.TrustedDevice{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "fingerprint-1",
		UserAgent: "Firefox",
		IP:        "203.0.113.7",
		ExpiresAt: epoch.Add(30 * 24 * time.Hour),
		CreatedAt: epoch,
	}
	require.NoError(t, devices.CreateTrustedDevice(ctx, d))

	dupe := d
	dupe.ID = idx.New().String()
	require.ErrorIs(t, devices.CreateTrustedDevice(ctx, dupe), store.ErrAlreadyExists)

	got, err := devices.GetTrustedDeviceByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.True(t, got.ExpiresAt.Equal(d.ExpiresAt))
	require.Nil(t, got.LastUsedAt)

	require.NoError(t, devices.TouchTrustedDevice(ctx, d.ID, epoch.Add(time.Minute)))
	got, err = devices.GetTrustedDeviceByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	require.True(t, got.LastUsedAt.Equal(epoch.Add(time.Minute)))

	require.ErrorIs(t, devices.DeleteTrustedDevice(ctx, other.ID, d.ID), store.ErrNotFound)

	second := d
	second.ID = idx.New().String()
	second.TokenHash = "fingerprint-2"
	require.NoError(t, devices.CreateTrustedDevice(ctx, second))

	list, err := devices.ListUserTrustedDevices(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, devices.DeleteTrustedDevice(ctx, u.ID, d.ID))
	n, err := devices.DeleteUserTrustedDevices(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = devices.GetTrustedDeviceByHash(ctx, "fingerprint-2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDirectoryConfigs(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")
	SeedCompany(t, s, "park-1", "co-2")
	repo := s.DirectoryConfigs()

	c := domain.DirectoryConfig{
		ID:              idx.New().String(),
		CompanyID:       "co-1",
		Enabled:         true,
		Host:            "ldap.example.com",
		Port:            636,
		TLSMode:         domain.TLSLDAPS,
		BindDN:          "cn=svc,dc=example,dc=com",
		BindPasswordEnc: "sealed",
		BaseDN:          "ou=People,dc=example,dc=com",
		GroupBaseDN:     "ou=Groups,dc=example,dc=com",
		RoleMappings: []domain.RoleMapping{
			{GroupDN: "cn=admins,ou=Groups,dc=example,dc=com", Role: domain.RoleCompanyAdmin},
		},
		DefaultRole:       domain.RoleUser,
		SyncIntervalHours: 6,
		CreatedAt:         epoch,
		UpdatedAt:         epoch,
	}
	require.NoError(t, repo.CreateDirectoryConfig(ctx, c))

	second := c
	second.ID = idx.New().String()
	require.ErrorIs(t, repo.CreateDirectoryConfig(ctx, second), store.ErrAlreadyExists)

	got, err := repo.GetDirectoryConfigByCompany(ctx, "co-1")
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, domain.TLSLDAPS, got.TLSMode)
	require.Equal(t, c.RoleMappings, got.RoleMappings)
	require.Equal(t, domain.SyncNever, got.LastSyncStatus)
	require.Nil(t, got.LastSyncAt)

	disabled := c
	disabled.ID = idx.New().String()
	disabled.CompanyID = "co-2"
	disabled.Enabled = false
	require.NoError(t, repo.CreateDirectoryConfig(ctx, disabled))

	enabled, err := repo.ListEnabledDirectoryConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, c.ID, enabled[0].ID)

	require.NoError(t, repo.UpdateSyncStatus(ctx, c.ID, domain.SyncPartial, epoch.Add(time.Hour), "1 errors", 42))

	c.Host = "ldap2.example.com"
	c.UpdatedAt = epoch.Add(2 * time.Hour)
	require.NoError(t, repo.UpdateDirectoryConfig(ctx, c))

	got, err = repo.GetDirectoryConfig(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "ldap2.example.com", got.Host)
	require.Equal(t, domain.SyncPartial, got.LastSyncStatus, "config edits keep sync status")
	require.Equal(t, 42, got.LastSyncCount)
	require.NotNil(t, got.LastSyncAt)

	require.NoError(t, repo.DeleteDirectoryConfig(ctx, c.ID))
	require.ErrorIs(t, repo.DeleteDirectoryConfig(ctx, c.ID), store.ErrNotFound)
}

func testSSOConfigs(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")
	repo := s.SSOConfigs()

	c := domain.SSOConfig{
		ID:              idx.New().String(),
		CompanyID:       "co-1",
		Enabled:         true,
		Protocol:        domain.ProtocolOIDC,
		DisplayName:     "Okta",
		IssuerURL:       "https://idp.example.com",
		ClientID:        "client",
		ClientSecretEnc: "sealed",
		Scopes:          []string{"openid", "email", "profile"},
		AutoProvision:   true,
		DefaultRole:     domain.RoleUser,
		AllowedDomains:  []string{"example.com", "example.org"},
		CreatedAt:       epoch,
		UpdatedAt:       epoch,
	}
	require.NoError(t, repo.CreateSSOConfig(ctx, c))

	second := c
	second.ID = idx.New().String()
	require.ErrorIs(t, repo.CreateSSOConfig(ctx, second), store.ErrAlreadyExists)

	got, err := repo.GetSSOConfig(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Scopes, got.Scopes)
	require.Equal(t, c.AllowedDomains, got.AllowedDomains)
	require.Equal(t, domain.ProtocolOIDC, got.Protocol)

	c.Protocol = domain.ProtocolSAML
	c.IDPSSOURL = "https://idp.example.com/sso"
	c.Scopes = nil
	c.UpdatedAt = epoch.Add(time.Hour)
	require.NoError(t, repo.UpdateSSOConfig(ctx, c))

	got, err = repo.GetSSOConfigByCompany(ctx, "co-1")
	require.NoError(t, err)
	require.Equal(t, domain.ProtocolSAML, got.Protocol)
	require.Empty(t, got.Scopes)

	list, err := repo.ListEnabledSSOConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.DeleteSSOConfig(ctx, c.ID))
	_, err = repo.GetSSOConfig(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTenants(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")

	co, err := s.Tenants().GetCompany(ctx, "co-1")
	require.NoError(t, err)
	require.Equal(t, "park-1", co.ParkID)
	require.Equal(t, domain.LevelInherit, co.TwoFAEnforcement)

	_, err = s.Tenants().GetPark(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	settings, err := s.Settings().GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, store.DefaultSettings(), settings)

	want := domain.SystemSettings{
		TwoFAEnforcement:      domain.EnforcementRequired,
		TrustedDevicesEnabled: false,
		TrustedDeviceDays:     7,
		UpdatedAt:             epoch,
	}
	require.NoError(t, s.Settings().UpdateSettings(ctx, want))
	require.NoError(t, s.Settings().UpdateSettings(ctx, want))

	settings, err = s.Settings().GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.EnforcementRequired, settings.TwoFAEnforcement)
	require.False(t, settings.TrustedDevicesEnabled)
	require.Equal(t, 7, settings.TrustedDeviceDays)
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedCompany(t, s, "park-1", "co-1")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, NewUser("co-1", "rolled@example.com")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.Users().GetUserByEmail(ctx, "rolled@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, NewUser("co-1", "kept@example.com"))
	})
	require.NoError(t, err)
	_, err = s.Users().GetUserByEmail(ctx, "kept@example.com")
	require.NoError(t, err)
}
