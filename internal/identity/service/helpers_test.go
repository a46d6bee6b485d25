package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/directory"
	"github.com/aussiebroadwan/roomkey/internal/identity/directory/directorytest"
	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/drivers/memory"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/storetest"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testPark    = "park-1"
	testCompany = "co-1"
	otherPark   = "park-2"
	otherCo     = "co-2"

	serviceDN = "cn=svc,dc=example,dc=com"
	peopleDN  = "ou=People,dc=example,dc=com"
	groupsDN  = "ou=Groups,dc=example,dc=com"
	adminsDN  = "cn=admins," + groupsDN
)

// harness wires every service over the memory store, a fake directory and
// a fake clock.
type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	clock   *clockwork.FakeClock
	vault   *cryptox.Vault
	ldap    *directorytest.Server
	metrics *Metrics
	issuer  *jwtx.Issuer

	directory *DirectoryService
	devices   *TrustedDeviceService
	twofa     *TwoFactorService
	login     *LoginService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s := memory.NewStore()
	storetest.SeedCompany(t, s, testPark, testCompany)
	storetest.SeedCompany(t, s, otherPark, otherCo)

	clock := clockwork.NewFakeClockAt(testEpoch)
	vault, err := cryptox.NewVault([]byte("service-test-key"))
	require.NoError(t, err)

	issuer, err := jwtx.NewIssuer("roomkey-test", []string{"roomkey"})
	require.NoError(t, err)
	issuer.Now = clock.Now

	srv := directorytest.NewServer()
	srv.AddAccount(serviceDN, "svc-secret")

	metrics := NewMetrics(prometheus.NewRegistry())

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   s,
		clock:   clock,
		vault:   vault,
		ldap:    srv,
		metrics: metrics,
		issuer:  issuer,
	}
	h.directory = &DirectoryService{
		Configs: s.DirectoryConfigs(),
		Users:   s.Users(),
		Tenants: s.Tenants(),
		Vault:   vault,
		Client:  directory.NewClient(srv),
		Clock:   clock,
		Metrics: metrics,
	}
	h.devices = &TrustedDeviceService{Devices: s.TrustedDevices(), Settings: s.Settings(), Clock: clock}
	h.twofa = &TwoFactorService{Store: s, Vault: vault, Directory: h.directory, Clock: clock, Issuer: "Roomkey"}
	h.login = &LoginService{
		Users:     s.Users(),
		Policy:    &EnforcementResolver{Settings: s.Settings(), Tenants: s.Tenants()},
		Directory: h.directory,
		TwoFactor: h.twofa,
		Devices:   h.devices,
		Tokens:    issuer,
		Metrics:   metrics,
	}
	return h
}

// addLocalUser stores an active local user with password.
func (h *harness) addLocalUser(companyID, email, password string) domain.User {
	h.t.Helper()
	u := storetest.NewUser(companyID, email)
	hash, err := cryptox.HashPassword(password)
	require.NoError(h.t, err)
	u.PasswordHash = hash
	if companyID == testCompany {
		u.ParkID = domain.Ptr(testPark)
	}
	require.NoError(h.t, h.store.Users().CreateUser(h.ctx, u))
	return u
}

// addDirectoryConfig stores an enabled config pointing at the fake directory
// with cn=admins mapped to company_admin.
func (h *harness) addDirectoryConfig(companyID string, intervalHours int) domain.DirectoryConfig {
	h.t.Helper()
	sealed, err := h.vault.Encrypt("svc-secret")
	require.NoError(h.t, err)
	cfg := domain.DirectoryConfig{
		ID:                idx.New().String(),
		CompanyID:         companyID,
		Enabled:           true,
		Host:              "ldap.example.test",
		BindDN:            serviceDN,
		BindPasswordEnc:   sealed,
		BaseDN:            peopleDN,
		GroupBaseDN:       groupsDN,
		RoleMappings:      []domain.RoleMapping{{GroupDN: adminsDN, Role: domain.RoleCompanyAdmin}},
		DefaultRole:       domain.RoleUser,
		SyncIntervalHours: intervalHours,
		CreatedAt:         testEpoch,
		UpdatedAt:         testEpoch,
	}.WithDefaults()
	require.NoError(h.t, h.store.DirectoryConfigs().CreateDirectoryConfig(h.ctx, cfg))
	return cfg
}

// enableTwoFA enrols u directly and returns the plaintext TOTP secret.
func (h *harness) enableTwoFA(u domain.User) string {
	h.t.Helper()
	setup, err := h.twofa.BeginSetup(h.ctx, u.ID)
	require.NoError(h.t, err)
	_, err = h.twofa.ConfirmSetup(h.ctx, u.ID, h.code(setup.Secret))
	require.NoError(h.t, err)
	return setup.Secret
}

func (h *harness) code(secret string) string {
	h.t.Helper()
	c, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(h.t, err)
	return c
}

func (h *harness) setSettings(mut func(*domain.SystemSettings)) {
	h.t.Helper()
	s, err := h.store.Settings().GetSettings(h.ctx)
	require.NoError(h.t, err)
	mut(&s)
	require.NoError(h.t, h.store.Settings().UpdateSettings(h.ctx, s))
}

func (h *harness) user(id string) domain.User {
	h.t.Helper()
	u, err := h.store.Users().GetUserByID(h.ctx, id)
	require.NoError(h.t, err)
	return u
}
