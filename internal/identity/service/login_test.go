package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func (h *harness) claims(token string) jwtx.Claims {
	h.t.Helper()
	c, err := h.issuer.Verify(token)
	require.NoError(h.t, err)
	return c
}

func TestLoginLocal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "s3cret")

	res, err := h.login.Login(h.ctx, LoginRequest{Email: " Alice@Example.com ", Password: "s3cret"})
	require.NoError(t, err)
	require.Equal(t, StateFullSession, res.State)
	require.False(t, res.RequiresTwoFA)
	require.Equal(t, testEpoch.Add(DefaultSessionTTL), res.ExpiresAt)

	c := h.claims(res.Token)
	require.Equal(t, u.ID, c.Subject())
	require.False(t, c.IsPartial())
	require.Equal(t, "user", c.Role)
	require.Equal(t, testCompany, c.CompanyID)
	require.Equal(t, testPark, c.ParkID)
	require.Equal(t, []string{jwtx.AMRPassword}, c.AMR)

	res, err = h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret", RememberMe: true})
	require.NoError(t, err)
	require.Equal(t, testEpoch.Add(DefaultRememberMeTTL), res.ExpiresAt)

	require.Equal(t, float64(2), testutil.ToFloat64(h.metrics.LoginAttempts.WithLabelValues("success")))
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "s3cret")

	_, wrongPw := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "nope"})
	_, unknown := h.login.Login(h.ctx, LoginRequest{Email: "ghost@example.com", Password: "nope"})
	require.ErrorIs(t, wrongPw, ErrInvalidCredentials)
	require.ErrorIs(t, unknown, ErrInvalidCredentials)
	require.Equal(t, wrongPw.Error(), unknown.Error(), "unknown email looks like a wrong password")

	_, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, h.store.Users().SetUserActive(h.ctx, u.ID, false, testEpoch))
	_, err = h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	require.ErrorIs(t, err, ErrAccountDisabled)

	sso := h.addLocalUser(testCompany, "sso@example.com", "pw")
	sso.AuthSource = domain.AuthSourceSAML
	require.NoError(t, h.store.Users().UpdateUser(h.ctx, sso))
	_, err = h.login.Login(h.ctx, LoginRequest{Email: "sso@example.com", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials, "sso users cannot use a password")

	require.Equal(t, float64(4), testutil.ToFloat64(h.metrics.LoginAttempts.WithLabelValues("invalid_credentials")))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.LoginAttempts.WithLabelValues("account_disabled")))
}

func TestLoginWithTwoFA(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "s3cret")
	secret := h.enableTwoFA(u)

	res, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret", RememberMe: true})
	require.ErrorIs(t, err, ErrTwoFAPending)
	require.Equal(t, StatePartialSession, res.State)
	require.True(t, res.RequiresTwoFA)
	require.False(t, res.TwoFASetupRequired)
	require.Equal(t, testEpoch.Add(DefaultPartialTTL), res.ExpiresAt)

	partial := h.claims(res.Token)
	require.True(t, partial.IsPartial())
	require.Equal(t, jwtx.ScopeTwoFA, partial.Scope)
	require.Empty(t, partial.Role, "partial sessions carry no role")

	t.Run("wrong code changes nothing", func(t *testing.T) {
		_, err := h.login.VerifyTwoFA(h.ctx, partial, "000000", false, DeviceMeta{})
		require.ErrorIs(t, err, ErrInvalidVerificationCode)
	})

	t.Run("full token cannot be re-verified", func(t *testing.T) {
		full, err := h.login.IssueFullSession(h.user(u.ID), []string{jwtx.AMRPassword}, false)
		require.NoError(t, err)
		_, err = h.login.VerifyTwoFA(h.ctx, h.claims(full.Token), h.code(secret), false, DeviceMeta{})
		require.ErrorIs(t, err, ErrForbidden)
	})

	var deviceToken string
	t.Run("valid code upgrades and trusts the device", func(t *testing.T) {
		out, err := h.login.VerifyTwoFA(h.ctx, partial, h.code(secret), true, DeviceMeta{UserAgent: "browser"})
		require.NoError(t, err)
		require.Equal(t, StateFullSession, out.State)
		require.NotEmpty(t, out.DeviceToken)
		require.Equal(t, testEpoch.Add(DefaultRememberMeTTL), out.ExpiresAt, "remember-me survives the partial stage")

		c := h.claims(out.Token)
		require.False(t, c.IsPartial())
		require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMROTP}, c.AMR)
		deviceToken = out.DeviceToken
	})

	t.Run("trusted device skips the second factor", func(t *testing.T) {
		res, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret", DeviceToken: deviceToken})
		require.NoError(t, err)
		require.Equal(t, StateFullSession, res.State)
		require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMRDevice}, h.claims(res.Token).AMR)
	})

	t.Run("another user's device token does not bypass", func(t *testing.T) {
		bob := h.addLocalUser(testCompany, "bob@example.com", "pw")
		h.enableTwoFA(bob)
		_, err := h.login.Login(h.ctx, LoginRequest{Email: "bob@example.com", Password: "pw", DeviceToken: deviceToken})
		require.ErrorIs(t, err, ErrTwoFAPending)
	})

	t.Run("backup code completes login", func(t *testing.T) {
		res, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret"})
		require.ErrorIs(t, err, ErrTwoFAPending)

		codes, err := h.twofa.RegenerateBackupCodes(h.ctx, u.ID, h.code(secret))
		require.NoError(t, err)

		out, err := h.login.VerifyTwoFA(h.ctx, h.claims(res.Token), codes[0], false, DeviceMeta{})
		require.NoError(t, err)
		require.Contains(t, h.claims(out.Token).AMR, jwtx.AMRBackup)
		require.Empty(t, out.DeviceToken)
	})

	t.Run("device expires", func(t *testing.T) {
		h.clock.Advance(time.Duration(domain.DefaultTrustedDeviceDays+1) * 24 * time.Hour)
		_, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret", DeviceToken: deviceToken})
		require.ErrorIs(t, err, ErrTwoFAPending)
	})
}

func TestLoginEnforcedSetup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "s3cret")
	h.setSettings(func(s *domain.SystemSettings) { s.TwoFAEnforcement = domain.EnforcementRequired })

	res, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	require.ErrorIs(t, err, ErrTwoFAPending)
	require.True(t, res.TwoFASetupRequired)

	partial := h.claims(res.Token)
	require.True(t, partial.TwoFASetupRequired)

	_, err = h.login.VerifyTwoFA(h.ctx, partial, "123456", false, DeviceMeta{})
	require.ErrorIs(t, err, ErrTwoFANotEnabled, "nothing to verify before enrolment")

	setup, err := h.twofa.BeginSetup(h.ctx, u.ID)
	require.NoError(t, err)
	out, err := h.login.ConfirmTwoFASetup(h.ctx, partial, h.code(setup.Secret))
	require.NoError(t, err)
	require.Len(t, out.BackupCodes, domain.BackupCodeCount)
	require.NotNil(t, out.Session)

	c := h.claims(out.Session.Token)
	require.False(t, c.IsPartial())
	require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMROTP}, c.AMR)

	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.LoginAttempts.WithLabelValues("twofa_setup_required")))
}

func TestLoginDirectoryUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedPeople(h)
	h.addDirectoryConfig(testCompany, 0)
	_, err := h.directory.SyncTenant(h.ctx, testCompany)
	require.NoError(t, err)

	res, err := h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "alice-pw"})
	require.NoError(t, err)
	c := h.claims(res.Token)
	require.Equal(t, []string{jwtx.AMRDirectory}, c.AMR)
	require.Equal(t, "company_admin", c.Role)

	_, err = h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	h.ldap.SetDown(true)
	_, err = h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "alice-pw"})
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.LoginAttempts.WithLabelValues("unavailable")))
	h.ldap.SetDown(false)

	cfg, err := h.store.DirectoryConfigs().GetDirectoryConfigByCompany(h.ctx, testCompany)
	require.NoError(t, err)
	cfg.Enabled = false
	require.NoError(t, h.store.DirectoryConfigs().UpdateDirectoryConfig(h.ctx, cfg))
	_, err = h.login.Login(h.ctx, LoginRequest{Email: "alice@example.com", Password: "alice-pw"})
	require.ErrorIs(t, err, ErrDirectoryUnavailable, "a disabled config never falls back to a local password")
}

func TestCompleteExternalLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "dana@example.com", "pw")
	u.AuthSource = domain.AuthSourceSAML
	require.NoError(t, h.store.Users().UpdateUser(h.ctx, u))

	res, err := h.login.CompleteExternalLogin(h.ctx, h.user(u.ID), "", false)
	require.NoError(t, err)
	require.Equal(t, []string{jwtx.AMRSAML}, h.claims(res.Token).AMR)

	h.enableTwoFA(u)
	_, err = h.login.CompleteExternalLogin(h.ctx, h.user(u.ID), "", false)
	require.ErrorIs(t, err, ErrTwoFAPending, "sso logins still owe the second factor")
}
