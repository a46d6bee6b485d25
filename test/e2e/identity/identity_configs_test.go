package identity_test

import (
	"encoding/pem"
	"strings"
	"testing"

	"github.com/aussiebroadwan/roomkey/internal/identity/federation"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

func TestSSOConfigLifecycle(t *testing.T) {
	baseURL, cleanup := setupIdentityContainer(t, relaxedLimits)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)
	boot := bootstrapService(t, client)
	admin := client.WithToken(loginAdmin(t, client).Token)

	// Any self-signed certificate stands in for the IdP signing key
	idpKeys, err := federation.LoadSPKeyPair("", "")
	require.NoError(t, err)
	idpCert := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: idpKeys.Cert.Raw}))

	created, err := admin.CreateSSOConfig(t.Context(), identitysdk.SSOConfigRequest{
		CompanyID:      boot.CompanyID,
		Enabled:        true,
		Protocol:       "saml",
		DisplayName:    "Corporate SAML",
		IDPEntityID:    "https://idp.roomkey.test/metadata",
		IDPSSOURL:      "https://idp.roomkey.test/sso",
		IDPCertificate: idpCert,
		AutoProvision:  true,
		AllowedDomains: []string{"Corp.Roomkey.Test"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"corp.roomkey.test"}, created.AllowedDomains)

	_, err = admin.CreateSSOConfig(t.Context(), identitysdk.SSOConfigRequest{
		CompanyID:   boot.CompanyID,
		Protocol:    "saml",
		DisplayName: "Second",
		IDPEntityID: "https://idp.roomkey.test/metadata",
		IDPSSOURL:   "https://idp.roomkey.test/sso",

		IDPCertificate: idpCert,
	})
	require.ErrorIs(t, err, identitysdk.ErrConflict)

	// Metadata is served for SAML configs
	metadata, err := client.GetSAMLMetadata(t.Context(), created.ID)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(metadata), "EntityDescriptor"))

	// Discovery points the login page at the config
	discovered, err := client.Discover(t.Context(), "someone@corp.roomkey.test")
	require.NoError(t, err)
	require.True(t, discovered.HasSSO)
	require.Equal(t, created.ID, discovered.ConfigID)

	none, err := client.Discover(t.Context(), "someone@elsewhere.test")
	require.NoError(t, err)
	require.False(t, none.HasSSO)

	// Init redirects to the IdP
	location, err := client.InitSSO(t.Context(), created.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location, "https://idp.roomkey.test/sso"))

	require.NoError(t, admin.DeleteSSOConfig(t.Context(), created.ID))
	_, err = admin.GetSSOConfig(t.Context(), created.ID)
	require.ErrorIs(t, err, identitysdk.ErrNotFound)
}

func TestDirectoryConfigLifecycle(t *testing.T) {
	baseURL, cleanup := setupIdentityContainer(t, relaxedLimits)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)
	boot := bootstrapService(t, client)
	admin := client.WithToken(loginAdmin(t, client).Token)

	bindPassword := "bind-pw"
	created, err := admin.CreateDirectoryConfig(t.Context(), identitysdk.DirectoryConfigRequest{
		CompanyID:         boot.CompanyID,
		Enabled:           true,
		Host:              "ldap.invalid",
		BindDN:            "cn=svc,dc=roomkey,dc=test",
		BindPassword:      &bindPassword,
		BaseDN:            "dc=roomkey,dc=test",
		SyncIntervalHours: 24,
	})
	require.NoError(t, err)
	require.True(t, created.HasBindPassword)
	require.Equal(t, "never", created.LastSync.Status)

	// Probing an unreachable directory reports failure without an error
	probe, err := admin.TestDirectoryConfig(t.Context(), created.ID)
	require.NoError(t, err)
	require.False(t, probe.Success)

	status, err := admin.GetSyncStatus(t.Context(), created.ID)
	require.NoError(t, err)
	require.Contains(t, []string{"never", "error"}, status.Status, "the scheduler may already have tried")

	require.NoError(t, admin.DeleteDirectoryConfig(t.Context(), created.ID))
	_, err = admin.GetDirectoryConfig(t.Context(), created.ID)
	require.ErrorIs(t, err, identitysdk.ErrNotFound)
}
