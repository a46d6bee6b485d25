package service

import (
	"context"
	"sync"
	"testing"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled map[string]int
	triggered []string
}

func (r *recordingScheduler) ScheduleTenant(id string, hours int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduled == nil {
		r.scheduled = map[string]int{}
	}
	r.scheduled[id] = hours
}

func (r *recordingScheduler) UnscheduleTenant(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, id)
}

func (r *recordingScheduler) TriggerSync(_ context.Context, id string) (domain.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = append(r.triggered, id)
	return domain.SyncResult{Created: 1}, nil
}

type recordingCache struct{ forgotten []string }

func (c *recordingCache) Forget(id string) { c.forgotten = append(c.forgotten, id) }

var (
	superAdmin   = Actor{UserID: "root", Role: domain.RoleSuperAdmin}
	companyAdmin = Actor{UserID: "ca", Role: domain.RoleCompanyAdmin, CompanyID: testCompany, ParkID: testPark}
	parkAdmin    = Actor{UserID: "pa", Role: domain.RoleParkAdmin, ParkID: testPark}
	plainUser    = Actor{UserID: "u", Role: domain.RoleUser, CompanyID: testCompany}
)

func validDirectoryInput(companyID string) DirectoryConfigInput {
	return DirectoryConfigInput{
		CompanyID:         companyID,
		Enabled:           true,
		Host:              " ldap.example.test ",
		BindDN:            serviceDN,
		BindPassword:      domain.Ptr("svc-secret"),
		BaseDN:            peopleDN,
		GroupBaseDN:       groupsDN,
		RoleMappings:      []domain.RoleMapping{{GroupDN: adminsDN, Role: domain.RoleCompanyAdmin}},
		SyncIntervalHours: 12,
	}
}

func TestAuthorizeTenant(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tenants := h.store.Tenants()

	require.NoError(t, authorizeTenant(h.ctx, tenants, superAdmin, otherCo))
	require.NoError(t, authorizeTenant(h.ctx, tenants, companyAdmin, testCompany))
	require.ErrorIs(t, authorizeTenant(h.ctx, tenants, companyAdmin, otherCo), ErrForbidden)
	require.NoError(t, authorizeTenant(h.ctx, tenants, parkAdmin, testCompany))
	require.ErrorIs(t, authorizeTenant(h.ctx, tenants, parkAdmin, otherCo), ErrForbidden)
	require.ErrorIs(t, authorizeTenant(h.ctx, tenants, parkAdmin, "missing"), ErrForbidden)
	require.ErrorIs(t, authorizeTenant(h.ctx, tenants, plainUser, testCompany), ErrForbidden)
	require.ErrorIs(t, authorizeTenant(h.ctx, tenants, Actor{}, testCompany), ErrForbidden)
}

func newDirectoryConfigService(h *harness) (*DirectoryConfigService, *recordingScheduler) {
	sched := &recordingScheduler{}
	return &DirectoryConfigService{
		Configs:   h.store.DirectoryConfigs(),
		Tenants:   h.store.Tenants(),
		Vault:     h.vault,
		Directory: h.directory,
		Scheduler: sched,
		Clock:     h.clock,
	}, sched
}

func TestDirectoryConfigService(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	svc, sched := newDirectoryConfigService(h)

	_, err := svc.Create(h.ctx, plainUser, validDirectoryInput(testCompany))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(h.ctx, companyAdmin, validDirectoryInput(otherCo))
	require.ErrorIs(t, err, ErrForbidden)

	cfg, err := svc.Create(h.ctx, companyAdmin, validDirectoryInput(testCompany))
	require.NoError(t, err)
	require.Equal(t, "ldap.example.test", cfg.Host)
	require.Equal(t, domain.DefaultUserFilter, cfg.UserFilter)
	require.Equal(t, domain.RoleUser, cfg.DefaultRole)
	require.NotEqual(t, "svc-secret", cfg.BindPasswordEnc)
	require.Equal(t, map[string]int{testCompany: 12}, sched.scheduled)

	_, err = svc.Create(h.ctx, companyAdmin, validDirectoryInput(testCompany))
	require.ErrorIs(t, err, ErrDuplicateConfigForTenant)

	t.Run("update keeps secret and company", func(t *testing.T) {
		in := validDirectoryInput(otherCo)
		in.BindPassword = nil
		in.SyncIntervalHours = 0
		got, err := svc.Update(h.ctx, companyAdmin, cfg.ID, in)
		require.NoError(t, err)
		require.Equal(t, testCompany, got.CompanyID)
		require.Equal(t, cfg.BindPasswordEnc, got.BindPasswordEnc)
		require.Empty(t, sched.scheduled, "interval 0 unschedules")
	})

	t.Run("enabled config must be complete", func(t *testing.T) {
		in := validDirectoryInput(testCompany)
		in.BindPassword = domain.Ptr("")
		_, err := svc.Update(h.ctx, companyAdmin, cfg.ID, in)
		require.ErrorIs(t, err, ErrDirectoryConfigIncomplete)

		in.Enabled = false
		_, err = svc.Update(h.ctx, companyAdmin, cfg.ID, in)
		require.NoError(t, err, "a disabled draft may be incomplete")

		_, err = svc.Sync(h.ctx, companyAdmin, cfg.ID)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("manual sync goes through the scheduler", func(t *testing.T) {
		_, err := svc.Update(h.ctx, companyAdmin, cfg.ID, validDirectoryInput(testCompany))
		require.NoError(t, err)
		res, err := svc.Sync(h.ctx, parkAdmin, cfg.ID)
		require.NoError(t, err)
		require.Equal(t, 1, res.Created)
		require.Equal(t, []string{testCompany}, sched.triggered)
	})

	t.Run("status and test connection", func(t *testing.T) {
		seedPeople(h)
		_, err := h.directory.SyncTenant(h.ctx, testCompany)
		require.NoError(t, err)

		st, err := svc.SyncStatus(h.ctx, companyAdmin, cfg.ID)
		require.NoError(t, err)
		require.Equal(t, domain.SyncSuccess, st.Status)
		require.Equal(t, 3, st.Count)

		res, err := svc.Test(h.ctx, companyAdmin, cfg.ID)
		require.NoError(t, err)
		require.True(t, res.Success)
	})

	t.Run("delete unschedules", func(t *testing.T) {
		_, err := svc.GetForCompany(h.ctx, companyAdmin, testCompany)
		require.NoError(t, err)
		require.ErrorIs(t, svc.Delete(h.ctx, plainUser, cfg.ID), ErrForbidden)
		require.NoError(t, svc.Delete(h.ctx, companyAdmin, cfg.ID))
		require.Empty(t, sched.scheduled)
		_, err = svc.Get(h.ctx, companyAdmin, cfg.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestValidateDirectoryInput(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*DirectoryConfigInput){
		"bad port":              func(in *DirectoryConfigInput) { in.Port = 70000 },
		"negative interval":     func(in *DirectoryConfigInput) { in.SyncIntervalHours = -1 },
		"interval too long":     func(in *DirectoryConfigInput) { in.SyncIntervalHours = MaxSyncIntervalHours + 1 },
		"super admin default":   func(in *DirectoryConfigInput) { in.DefaultRole = domain.RoleSuperAdmin },
		"park admin mapping":    func(in *DirectoryConfigInput) { in.RoleMappings[0].Role = domain.RoleParkAdmin },
		"mapping without group": func(in *DirectoryConfigInput) { in.RoleMappings[0].GroupDN = " " },
		"broken user filter":    func(in *DirectoryConfigInput) { in.UserFilter = "(objectClass=person" },
		"broken group filter":   func(in *DirectoryConfigInput) { in.GroupFilter = "objectClass=group)" },
		"no company":            func(in *DirectoryConfigInput) { in.CompanyID = "" },
	}
	for name, mut := range tests {
		t.Run(name, func(t *testing.T) {
			in := validDirectoryInput(testCompany)
			mut(&in)
			require.ErrorIs(t, validateDirectoryInput(in), ErrInvalidConfig)
		})
	}

	in := validDirectoryInput(testCompany)
	in.UserFilter = "(&(objectClass=person)(memberOf=cn=staff,dc=example,dc=com))"
	require.NoError(t, validateDirectoryInput(in))
}

func validSSOInput(companyID string) SSOConfigInput {
	return SSOConfigInput{
		CompanyID:      companyID,
		Enabled:        true,
		Protocol:       domain.ProtocolOIDC,
		DisplayName:    "Okta",
		IssuerURL:      "https://idp.example.test/",
		ClientID:       "roomkey",
		ClientSecret:   domain.Ptr("client-secret"),
		Scopes:         []string{"openid", "email", "openid"},
		AutoProvision:  true,
		AllowedDomains: []string{"@Example.com", "example.com", " "},
	}
}

func TestSSOConfigService(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cache := &recordingCache{}
	svc := &SSOConfigService{
		Configs: h.store.SSOConfigs(),
		Tenants: h.store.Tenants(),
		Vault:   h.vault,
		Cache:   cache,
		Clock:   h.clock,
	}

	cfg, err := svc.Create(h.ctx, companyAdmin, validSSOInput(testCompany))
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.test", cfg.IssuerURL)
	require.Equal(t, []string{"openid", "email"}, cfg.Scopes)
	require.Equal(t, []string{"example.com"}, cfg.AllowedDomains)
	require.Equal(t, domain.RoleUser, cfg.DefaultRole)
	secret, err := h.vault.Decrypt(cfg.ClientSecretEnc)
	require.NoError(t, err)
	require.Equal(t, "client-secret", secret)

	_, err = svc.Create(h.ctx, superAdmin, validSSOInput(testCompany))
	require.ErrorIs(t, err, ErrDuplicateConfigForTenant)
	_, err = svc.Create(h.ctx, companyAdmin, validSSOInput(otherCo))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(h.ctx, superAdmin, validSSOInput("missing"))
	require.ErrorIs(t, err, ErrInvalidConfig)

	in := validSSOInput(testCompany)
	in.ClientSecret = nil
	in.DisplayName = "Okta (prod)"
	got, err := svc.Update(h.ctx, companyAdmin, cfg.ID, in)
	require.NoError(t, err)
	require.Equal(t, cfg.ClientSecretEnc, got.ClientSecretEnc)
	require.Equal(t, []string{cfg.ID}, cache.forgotten)

	read, err := svc.GetForCompany(h.ctx, parkAdmin, testCompany)
	require.NoError(t, err)
	require.Equal(t, "Okta (prod)", read.DisplayName)

	require.NoError(t, svc.Delete(h.ctx, companyAdmin, cfg.ID))
	require.Equal(t, []string{cfg.ID, cfg.ID}, cache.forgotten)
	_, err = svc.Get(h.ctx, companyAdmin, cfg.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateSSOConfig(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	svc := &SSOConfigService{Configs: h.store.SSOConfigs(), Tenants: h.store.Tenants(), Vault: h.vault, Clock: h.clock}

	tests := map[string]func(*SSOConfigInput){
		"no display name":     func(in *SSOConfigInput) { in.DisplayName = "" },
		"relative issuer":     func(in *SSOConfigInput) { in.IssuerURL = "idp.example.test" },
		"no client id":        func(in *SSOConfigInput) { in.ClientID = "" },
		"unknown protocol":    func(in *SSOConfigInput) { in.Protocol = domain.ProtocolUnknown },
		"admin default role":  func(in *SSOConfigInput) { in.DefaultRole = domain.RoleParkAdmin },
		"saml without cert":   func(in *SSOConfigInput) { in.Protocol = domain.ProtocolSAML; in.IDPSSOURL = "https://idp.example.test/sso" },
		"saml without sso url": func(in *SSOConfigInput) {
			in.Protocol = domain.ProtocolSAML
			in.IDPCertificate = "-----BEGIN CERTIFICATE-----"
		},
	}
	for name, mut := range tests {
		t.Run(name, func(t *testing.T) {
			in := validSSOInput(testCompany)
			mut(&in)
			_, err := svc.Create(h.ctx, superAdmin, in)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
