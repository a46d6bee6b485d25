package identity_test

import (
	"testing"

	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorFlow(t *testing.T) {
	baseURL, cleanup := setupIdentityContainer(t, relaxedLimits)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)
	bootstrapService(t, client)
	session := loginAdmin(t, client)
	admin := client.WithToken(session.Token)

	// 1. Enrol
	setup, err := admin.SetupTwoFA(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.OTPAuthURL, "otpauth://totp/")

	_, err = admin.ConfirmTwoFA(t.Context(), "000000")
	require.ErrorIs(t, err, identitysdk.ErrInvalidVerificationCode)

	confirmed, err := admin.ConfirmTwoFA(t.Context(), totpCode(t, setup.Secret))
	require.NoError(t, err)
	require.Len(t, confirmed.BackupCodes, 10)
	require.Nil(t, confirmed.Session, "a full session needs no upgrade")

	_, err = admin.SetupTwoFA(t.Context())
	require.ErrorIs(t, err, identitysdk.ErrTwoFAAlreadyEnabled)

	// 2. Login now stops at the second factor
	pending, err := client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)
	require.True(t, pending.RequiresTwoFA)
	require.Nil(t, pending.User)
	partial := client.WithToken(pending.Token)

	_, err = partial.ListTrustedDevices(t.Context())
	require.Error(t, err, "a partial session is not a full session")

	// 3. Verify and trust this device
	verified, err := partial.VerifyTwoFA(t.Context(), identitysdk.TwoFAVerifyRequest{
		Code:        totpCode(t, setup.Secret),
		TrustDevice: true,
	})
	require.NoError(t, err)
	assertFullSession(t, &verified.LoginResponse)
	require.NotEmpty(t, verified.DeviceToken)
	require.True(t, verified.User.TwoFAEnabled)

	// 4. The device token skips the second factor
	trusted, err := client.Login(t.Context(), identitysdk.LoginRequest{
		Email:       adminEmail,
		Password:    adminPassword,
		DeviceToken: verified.DeviceToken,
	})
	require.NoError(t, err)
	assertFullSession(t, trusted)

	full := client.WithToken(trusted.Token)
	devices, err := full.ListTrustedDevices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 1)

	// 5. A backup code also completes a login, once
	pending, err = client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)
	backup := identitysdk.TwoFAVerifyRequest{Code: confirmed.BackupCodes[0]}
	_, err = client.WithToken(pending.Token).VerifyTwoFA(t.Context(), backup)
	require.NoError(t, err)

	pending, err = client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)
	_, err = client.WithToken(pending.Token).VerifyTwoFA(t.Context(), backup)
	require.ErrorIs(t, err, identitysdk.ErrInvalidVerificationCode)

	// 6. Revoking every device restores the second factor
	revoked, err := full.RevokeAllTrustedDevices(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, revoked)

	again, err := client.Login(t.Context(), identitysdk.LoginRequest{
		Email:       adminEmail,
		Password:    adminPassword,
		DeviceToken: verified.DeviceToken,
	})
	require.NoError(t, err)
	require.True(t, again.RequiresTwoFA)

	// 7. Regenerate backup codes, then disable
	codes, err := full.RegenerateBackupCodes(t.Context(), totpCode(t, setup.Secret))
	require.NoError(t, err)
	require.Len(t, codes.BackupCodes, 10)

	require.NoError(t, full.DisableTwoFA(t.Context(), identitysdk.TwoFADisableRequest{Password: adminPassword}))
	loginAdmin(t, client)
}
