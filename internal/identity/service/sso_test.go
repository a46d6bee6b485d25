package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation/federationtest"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/kvx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const idpCode = "code-123"

type ssoFixture struct {
	*harness
	sso       *SSOService
	providers *federationtest.Source
}

func newSSOFixture(t *testing.T) *ssoFixture {
	h := newHarness(t)
	src := federationtest.NewSource()
	return &ssoFixture{
		harness:   h,
		providers: src,
		sso: &SSOService{
			Configs:   h.store.SSOConfigs(),
			Users:     h.store.Users(),
			Tenants:   h.store.Tenants(),
			Providers: src,
			State:     kvx.NewMemory(),
			Clock:     h.clock,
			Metrics:   h.metrics,
		},
	}
}

// addConfig stores an enabled config for companyID and registers a fake
// provider asserting id.
func (f *ssoFixture) addConfig(companyID string, proto domain.SSOProtocol, id federation.Identity, mut func(*domain.SSOConfig)) (domain.SSOConfig, *federationtest.Provider) {
	f.t.Helper()
	cfg := domain.SSOConfig{
		ID:             idx.New().String(),
		CompanyID:      companyID,
		Enabled:        true,
		Protocol:       proto,
		DisplayName:    "Example IdP",
		IssuerURL:      "https://idp.example.test",
		ClientID:       "roomkey",
		IDPSSOURL:      "https://idp.example.test/sso",
		AutoProvision:  true,
		DefaultRole:    domain.RoleUser,
		AllowedDomains: []string{"example.com"},
		CreatedAt:      testEpoch,
		UpdatedAt:      testEpoch,
	}
	if mut != nil {
		mut(&cfg)
	}
	require.NoError(f.t, f.store.SSOConfigs().CreateSSOConfig(f.ctx, cfg))
	p := federationtest.NewProvider(proto, idpCode, id)
	f.providers.Set(cfg.ID, p)
	return cfg, p
}

// begin starts a flow and returns the state carried in the redirect.
func (f *ssoFixture) begin(configID string) string {
	f.t.Helper()
	raw, err := f.sso.BuildAuthorizationURL(f.ctx, configID)
	require.NoError(f.t, err)
	u, err := url.Parse(raw)
	require.NoError(f.t, err)
	state := u.Query().Get("state")
	require.NotEmpty(f.t, state)
	return state
}

var dana = federation.Identity{Subject: "sub-dana", Email: "Dana@Example.com", Name: "Dana"}

func TestSSOCallbackProvisions(t *testing.T) {
	t.Parallel()
	f := newSSOFixture(t)
	cfg, p := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)

	state := f.begin(cfg.ID)
	u, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, state)
	require.NoError(t, err)
	require.Equal(t, "dana@example.com", u.Email)
	require.Equal(t, "Dana", u.Name)
	require.Equal(t, domain.AuthSourceOIDC, u.AuthSource)
	require.Equal(t, domain.RoleUser, u.Role)
	require.Equal(t, testPark, domain.Deref(u.ParkID))
	require.Equal(t, "sub-dana", domain.Deref(u.SSOSubjectID))
	require.Equal(t, 1, p.Completed())

	// The state is single use.
	_, err = f.sso.HandleOIDCCallback(f.ctx, idpCode, state)
	require.ErrorIs(t, err, ErrInvalidOrExpiredState)

	// A second login resolves the same user by subject, even after an
	// email change at the IdP.
	p.SetIdentity(federation.Identity{Subject: "sub-dana", Email: "dana.new@example.com"})
	again, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)

	require.Equal(t, float64(2), testutil.ToFloat64(f.metrics.SSOCallbacks.WithLabelValues("oidc", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SSOCallbacks.WithLabelValues("oidc", "invalid_state")))
}

func TestSSOState(t *testing.T) {
	t.Parallel()

	t.Run("expired", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, p := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		state := f.begin(cfg.ID)

		f.clock.Advance(DefaultSSOStateTTL + time.Minute)
		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, state)
		require.ErrorIs(t, err, ErrInvalidOrExpiredState)
		require.Zero(t, p.Completed())
	})

	t.Run("unknown and empty", func(t *testing.T) {
		f := newSSOFixture(t)
		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, "forged")
		require.ErrorIs(t, err, ErrInvalidOrExpiredState)
		_, err = f.sso.HandleOIDCCallback(f.ctx, idpCode, "")
		require.ErrorIs(t, err, ErrInvalidOrExpiredState)
	})

	t.Run("consumed even when the callback fails", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, p := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		state := f.begin(cfg.ID)

		_, err := f.sso.HandleOIDCCallback(f.ctx, "wrong-code", state)
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = f.sso.HandleOIDCCallback(f.ctx, idpCode, state)
		require.ErrorIs(t, err, ErrInvalidOrExpiredState)
		require.Zero(t, p.Completed())
	})

	t.Run("protocol mismatch", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		_, err := f.sso.HandleSAMLCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrProtocolMismatch)
	})

	t.Run("disabled config", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, func(c *domain.SSOConfig) { c.Enabled = false })
		_, err := f.sso.BuildAuthorizationURL(f.ctx, cfg.ID)
		require.ErrorIs(t, err, ErrSSOConfigNotFound)
	})
}

func TestSSOSAMLCallback(t *testing.T) {
	t.Parallel()
	f := newSSOFixture(t)
	cfg, _ := f.addConfig(testCompany, domain.ProtocolSAML, dana, nil)

	u, err := f.sso.HandleSAMLCallback(f.ctx, idpCode, f.begin(cfg.ID))
	require.NoError(t, err)
	require.Equal(t, domain.AuthSourceSAML, u.AuthSource)

	md, err := f.sso.Metadata(f.ctx, cfg.ID)
	require.NoError(t, err)
	require.Contains(t, string(md), "EntityDescriptor")
}

func TestSSOMetadataRequiresSAML(t *testing.T) {
	t.Parallel()
	f := newSSOFixture(t)
	cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)

	_, err := f.sso.Metadata(f.ctx, cfg.ID)
	require.ErrorIs(t, err, ErrProtocolMismatch)
	_, err = f.sso.Metadata(f.ctx, "missing")
	require.ErrorIs(t, err, ErrSSOConfigNotFound)
}

func TestSSOProvisioningRules(t *testing.T) {
	t.Parallel()

	t.Run("links same-tenant local user", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		local := f.addLocalUser(testCompany, "dana@example.com", "pw")

		u, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.NoError(t, err)
		require.Equal(t, local.ID, u.ID)

		stored := f.user(local.ID)
		require.Equal(t, domain.AuthSourceOIDC, stored.AuthSource)
		require.Equal(t, cfg.ID, domain.Deref(stored.SSOProviderID))
		require.Empty(t, stored.PasswordHash)
	})

	t.Run("email in another tenant", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		foreign := f.addLocalUser(otherCo, "dana@example.com", "pw")

		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrCrossTenantEmailCollision)
		require.Nil(t, f.user(foreign.ID).SSOSubjectID)
		require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SSOCallbacks.WithLabelValues("oidc", "provisioning_denied")))
	})

	t.Run("auto provisioning off", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, func(c *domain.SSOConfig) { c.AutoProvision = false })
		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrAutoProvisioningDisabled)
	})

	t.Run("domain not allowed", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC,
			federation.Identity{Subject: "sub-eve", Email: "eve@elsewhere.org"}, nil)
		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrEmailDomainNotAllowed)
	})

	t.Run("missing email", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, federation.Identity{Subject: "sub-x"}, nil)
		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrEmailClaimMissing)
	})

	t.Run("disabled account", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		local := f.addLocalUser(testCompany, "dana@example.com", "pw")
		require.NoError(t, f.store.Users().SetUserActive(f.ctx, local.ID, false, testEpoch))

		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrAccountDisabled)

		stored := f.user(local.ID)
		require.Equal(t, domain.AuthSourceLocal, stored.AuthSource, "a rejected callback writes nothing")
		require.Equal(t, local.PasswordHash, stored.PasswordHash)
		require.Nil(t, stored.SSOSubjectID)
		require.Nil(t, stored.SSOProviderID)
	})

	t.Run("elevated account is not linked", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		admin := f.addLocalUser(testCompany, "dana@example.com", "pw")
		admin.Role = domain.RoleSuperAdmin
		require.NoError(t, f.store.Users().UpdateUser(f.ctx, admin))

		_, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.ErrorIs(t, err, ErrElevatedAccountLink)

		stored := f.user(admin.ID)
		require.Equal(t, domain.AuthSourceLocal, stored.AuthSource)
		require.Equal(t, admin.PasswordHash, stored.PasswordHash)
		require.Nil(t, stored.SSOSubjectID)
		require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SSOCallbacks.WithLabelValues("oidc", "provisioning_denied")))
	})

	t.Run("company admin is linked", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		admin := f.addLocalUser(testCompany, "dana@example.com", "pw")
		admin.Role = domain.RoleCompanyAdmin
		require.NoError(t, f.store.Users().UpdateUser(f.ctx, admin))

		u, err := f.sso.HandleOIDCCallback(f.ctx, idpCode, f.begin(cfg.ID))
		require.NoError(t, err)
		require.Equal(t, admin.ID, u.ID)
		require.Equal(t, domain.RoleCompanyAdmin, u.Role)
	})

	t.Run("non-assignable default role falls back to user", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		cfg.DefaultRole = domain.RoleSuperAdmin

		u, err := f.sso.FindOrCreateUser(f.ctx, "dana@example.com", "", "", cfg)
		require.NoError(t, err)
		require.Equal(t, domain.RoleUser, u.Role)
		require.Equal(t, "dana@example.com", domain.Deref(u.SSOSubjectID), "subject defaults to email")
		require.Equal(t, "dana@example.com", u.Name)
	})

	t.Run("provider build failure", func(t *testing.T) {
		f := newSSOFixture(t)
		cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)
		f.sso.Providers = failingSource{}

		_, err := f.sso.BuildAuthorizationURL(f.ctx, cfg.ID)
		require.ErrorIs(t, err, ErrSSOUnavailable)
	})
}

func TestSSODiscover(t *testing.T) {
	t.Parallel()
	f := newSSOFixture(t)
	cfg, _ := f.addConfig(testCompany, domain.ProtocolOIDC, dana, nil)

	d, err := f.sso.Discover(f.ctx, "Someone@EXAMPLE.com")
	require.NoError(t, err)
	require.True(t, d.HasSSO)
	require.Equal(t, cfg.ID, d.ConfigID)
	require.Equal(t, domain.ProtocolOIDC, d.Protocol)

	d, err = f.sso.Discover(f.ctx, "someone@elsewhere.org")
	require.NoError(t, err)
	require.False(t, d.HasSSO)

	// An existing user is routed by tenant, not by domain.
	f.addLocalUser(otherCo, "bob@example.com", "pw")
	d, err = f.sso.Discover(f.ctx, "bob@example.com")
	require.NoError(t, err)
	require.False(t, d.HasSSO)

	d, err = f.sso.Discover(f.ctx, "")
	require.NoError(t, err)
	require.False(t, d.HasSSO)
}

type failingSource struct{}

func (failingSource) Provider(_ context.Context, _ domain.SSOConfig) (federation.Provider, error) {
	return nil, errors.New("discovery failed")
}
