package identity_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for identity service end-to-end tests.
 * This includes container setup, service operations, and assertions.
 */

const (
	testImageName = "roomkey-identity-test:latest"

	bootstrapToken = "test-bootstrap-token-12345"
	adminEmail     = "admin@roomkey.test"
	adminName      = "Administrator"
	adminPassword  = "Admin123!"
)

// TestMain builds the Docker image once before all tests and cleans it up
// after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Identity Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Identity Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/identity/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// relaxedLimits raises the rate limits so tests making many rapid requests
// do not trip the production defaults.
var relaxedLimits = map[string]string{
	"RATELIMIT_STRICT_REQUESTS":   "1000",
	"RATELIMIT_STRICT_WINDOW_SEC": "60",
	"RATELIMIT_STRICT_BURST":      "1000",
	"RATELIMIT_MODERATE_REQUESTS": "1000",
	"RATELIMIT_MODERATE_BURST":    "1000",
}

// setupIdentityContainer starts the service and returns its base URL. extra
// is merged over the default environment.
func setupIdentityContainer(t *testing.T, extra map[string]string) (string, func()) {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"BOOTSTRAP_TOKEN":     bootstrapToken,
		"DATABASE_FILE":       "/data/identity.db",
		"PEPPER_FILE":         "/data/pepper",
		"IDENTITY_MASTER_KEY": "e2e-master-key",
		"IDENTITY_ISSUER":     "roomkey-identity",
		"ENV":                 "test",
		"LOG_LEVEL":           "info",
		"LOG_FORMAT":          "json",
	}
	for k, v := range extra {
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// bootstrapService seeds the first park, company and super admin.
func bootstrapService(t *testing.T, client *identitysdk.Client) *identitysdk.BootstrapResponse {
	t.Helper()

	resp, err := client.Bootstrap(t.Context(), bootstrapToken, identitysdk.BootstrapRequest{
		ParkName:      "Tech Park",
		CompanyName:   "Roomkey",
		AdminEmail:    adminEmail,
		AdminName:     adminName,
		AdminPassword: adminPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AdminUserID)
	return resp
}

// loginAdmin logs in with the bootstrap credentials and expects a full session.
func loginAdmin(t *testing.T, client *identitysdk.Client) *identitysdk.LoginResponse {
	t.Helper()

	resp, err := client.Login(t.Context(), identitysdk.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)
	assertFullSession(t, resp)
	return resp
}

// totpCode generates the current code for secret.
func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// assertFullSession verifies a login response carries a full session.
func assertFullSession(t *testing.T, resp *identitysdk.LoginResponse) {
	t.Helper()
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.Token, "Token should not be empty")
	require.False(t, resp.RequiresTwoFA, "Session should not be pending")
	require.NotNil(t, resp.User, "Full sessions include the user")
	require.True(t, resp.ExpiresAt.After(time.Now()), "Session should not be expired")
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *identitysdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
	require.NotEmpty(t, health.Version)
	require.NotEmpty(t, health.Uptime)
}
