package identity_test

import (
	"errors"
	"testing"

	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

func TestLoginErrors(t *testing.T) {
	baseURL, cleanup := setupIdentityContainer(t, relaxedLimits)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)
	bootstrapService(t, client)

	_, wrongPassword := client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail, Password: "wrong"})
	require.ErrorIs(t, wrongPassword, identitysdk.ErrInvalidCredentials)

	_, unknownEmail := client.Login(t.Context(), identitysdk.LoginRequest{Email: "ghost@roomkey.test", Password: "wrong"})
	require.ErrorIs(t, unknownEmail, identitysdk.ErrInvalidCredentials)

	// Unknown emails are indistinguishable from wrong passwords
	var a, b *identitysdk.APIError
	require.True(t, errors.As(wrongPassword, &a))
	require.True(t, errors.As(unknownEmail, &b))
	require.Equal(t, a.Description, b.Description)

	_, err := client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail})
	require.ErrorIs(t, err, identitysdk.ErrInvalidRequest)

	// A full session is accepted by the authenticated endpoints
	session := loginAdmin(t, client)
	devices, err := client.WithToken(session.Token).ListTrustedDevices(t.Context())
	require.NoError(t, err)
	require.Empty(t, devices)

	_, err = client.WithToken("not-a-token").ListTrustedDevices(t.Context())
	require.ErrorIs(t, err, &identitysdk.APIError{StatusCode: 401, Code: identitysdk.ErrorCodeInvalidToken})
}

func TestLoginRateLimit(t *testing.T) {
	// Default limits: strict is 5 requests per minute per IP and email
	baseURL, cleanup := setupIdentityContainer(t, nil)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)

	for i := range 5 {
		_, err := client.Login(t.Context(), identitysdk.LoginRequest{Email: "someone@roomkey.test", Password: "wrong"})
		require.ErrorIs(t, err, identitysdk.ErrInvalidCredentials, "attempt %d should reach the service", i+1)
	}

	_, err := client.Login(t.Context(), identitysdk.LoginRequest{Email: "someone@roomkey.test", Password: "wrong"})
	var apiErr *identitysdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 429, apiErr.StatusCode)
	require.Equal(t, identitysdk.ErrorCodeRateLimitExceeded, apiErr.Code)

	// Another email has its own bucket
	_, err = client.Login(t.Context(), identitysdk.LoginRequest{Email: "other@roomkey.test", Password: "wrong"})
	require.ErrorIs(t, err, identitysdk.ErrInvalidCredentials)
}
