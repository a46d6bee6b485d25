package service

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorSetup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "pw")

	_, err := h.twofa.ConfirmSetup(h.ctx, u.ID, "123456")
	require.ErrorIs(t, err, ErrTwoFANotEnrolled)

	setup, err := h.twofa.BeginSetup(h.ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.True(t, strings.HasPrefix(setup.QRCodeURL, "data:image/png;base64,"))
	require.Contains(t, setup.OTPAuthURL, "otpauth://totp/")
	require.Contains(t, setup.OTPAuthURL, "issuer=Roomkey")

	stored := h.user(u.ID)
	require.False(t, stored.TwoFAEnabled, "not enabled before confirmation")
	require.NotNil(t, stored.TwoFASecret)
	require.NotContains(t, *stored.TwoFASecret, setup.Secret, "secret is sealed at rest")

	_, err = h.twofa.ConfirmSetup(h.ctx, u.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidVerificationCode)
	require.False(t, h.user(u.ID).TwoFAEnabled)

	codes, err := h.twofa.ConfirmSetup(h.ctx, u.ID, h.code(setup.Secret))
	require.NoError(t, err)
	require.Len(t, codes, domain.BackupCodeCount)
	require.True(t, h.user(u.ID).TwoFAEnabled)

	n, err := h.twofa.RemainingBackupCodes(h.ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BackupCodeCount, n)

	_, err = h.twofa.BeginSetup(h.ctx, u.ID)
	require.ErrorIs(t, err, ErrTwoFAAlreadyEnabled)
	_, err = h.twofa.ConfirmSetup(h.ctx, u.ID, h.code(setup.Secret))
	require.ErrorIs(t, err, ErrTwoFAAlreadyEnabled)
}

func TestTwoFactorVerifyCode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "pw")
	secret := h.enableTwoFA(u)
	u = h.user(u.ID)

	t.Run("totp tolerates one step of drift", func(t *testing.T) {
		now := h.clock.Now()
		for _, at := range []time.Time{now.Add(-30 * time.Second), now, now.Add(30 * time.Second)} {
			code, err := totp.GenerateCode(secret, at)
			require.NoError(t, err)
			amr, err := h.twofa.VerifyCode(h.ctx, u, code)
			require.NoError(t, err, "code for %s", at)
			require.Equal(t, jwtx.AMROTP, amr)
		}

		stale, err := totp.GenerateCode(secret, now.Add(-90*time.Second))
		require.NoError(t, err)
		_, err = h.twofa.VerifyCode(h.ctx, u, stale)
		require.ErrorIs(t, err, ErrInvalidVerificationCode)
	})

	t.Run("garbage is just a wrong code", func(t *testing.T) {
		for _, code := range []string{"", "12345", "abcdef", "1234567", "ZZZZ-ZZZZ"} {
			_, err := h.twofa.VerifyCode(h.ctx, u, code)
			require.ErrorIs(t, err, ErrInvalidVerificationCode, "code %q", code)
		}
	})

	t.Run("not enabled", func(t *testing.T) {
		other := h.addLocalUser(testCompany, "bob@example.com", "pw")
		_, err := h.twofa.VerifyCode(h.ctx, other, "123456")
		require.ErrorIs(t, err, ErrTwoFANotEnabled)
	})
}

func TestTwoFactorBackupCodes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	u := h.addLocalUser(testCompany, "alice@example.com", "pw")

	setup, err := h.twofa.BeginSetup(h.ctx, u.ID)
	require.NoError(t, err)
	codes, err := h.twofa.ConfirmSetup(h.ctx, u.ID, h.code(setup.Secret))
	require.NoError(t, err)
	u = h.user(u.ID)

	amr, err := h.twofa.VerifyCode(h.ctx, u, strings.ToLower(codes[0]))
	require.NoError(t, err, "backup codes are case-insensitive")
	require.Equal(t, jwtx.AMRBackup, amr)

	_, err = h.twofa.VerifyCode(h.ctx, u, codes[0])
	require.ErrorIs(t, err, ErrInvalidVerificationCode, "a backup code works once")

	n, err := h.twofa.RemainingBackupCodes(h.ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BackupCodeCount-1, n)

	_, err = h.twofa.RegenerateBackupCodes(h.ctx, u.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidVerificationCode)

	fresh, err := h.twofa.RegenerateBackupCodes(h.ctx, u.ID, h.code(setup.Secret))
	require.NoError(t, err)
	require.Len(t, fresh, domain.BackupCodeCount)

	_, err = h.twofa.VerifyCode(h.ctx, u, codes[1])
	require.ErrorIs(t, err, ErrInvalidVerificationCode, "old batch is gone")
	_, err = h.twofa.VerifyCode(h.ctx, u, fresh[1])
	require.NoError(t, err)
}

func TestTwoFactorDisable(t *testing.T) {
	t.Parallel()

	t.Run("local user needs the password and everything is cleared", func(t *testing.T) {
		h := newHarness(t)
		u := h.addLocalUser(testCompany, "alice@example.com", "right-pw")
		h.enableTwoFA(u)
		_, _, err := h.devices.Trust(h.ctx, u.ID, DeviceMeta{UserAgent: "test"})
		require.NoError(t, err)

		err = h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.True(t, h.user(u.ID).TwoFAEnabled)

		require.NoError(t, h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "right-pw"}))

		stored := h.user(u.ID)
		require.False(t, stored.TwoFAEnabled)
		require.Nil(t, stored.TwoFASecret)

		n, err := h.twofa.RemainingBackupCodes(h.ctx, u.ID)
		require.NoError(t, err)
		require.Zero(t, n)

		devices, err := h.devices.List(h.ctx, u.ID)
		require.NoError(t, err)
		require.Empty(t, devices)

		err = h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "right-pw"})
		require.ErrorIs(t, err, ErrTwoFANotEnabled)
	})

	t.Run("directory user proves the directory password", func(t *testing.T) {
		h := newHarness(t)
		seedPeople(h)
		h.addDirectoryConfig(testCompany, 0)
		_, err := h.directory.SyncTenant(h.ctx, testCompany)
		require.NoError(t, err)

		u, err := h.store.Users().GetUserByEmail(h.ctx, "bob@example.com")
		require.NoError(t, err)
		h.enableTwoFA(u)

		err = h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "nope"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.NoError(t, h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "bob-pw"}))
	})

	t.Run("sso user proves a code", func(t *testing.T) {
		h := newHarness(t)
		u := h.addLocalUser(testCompany, "carol@example.com", "pw")
		secret := h.enableTwoFA(u)
		u = h.user(u.ID)
		u.AuthSource = domain.AuthSourceOIDC
		u.PasswordHash = ""
		require.NoError(t, h.store.Users().UpdateUser(h.ctx, u))

		err := h.twofa.Disable(h.ctx, u.ID, DisableRequest{Password: "pw"})
		require.ErrorIs(t, err, ErrInvalidVerificationCode)
		require.NoError(t, h.twofa.Disable(h.ctx, u.ID, DisableRequest{Code: h.code(secret)}))
	})
}
