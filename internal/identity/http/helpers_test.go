package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/directory"
	"github.com/aussiebroadwan/roomkey/internal/identity/directory/directorytest"
	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation/federationtest"
	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/drivers/memory"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/storetest"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/kvx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testPark    = "park-1"
	testCompany = "co-1"
	otherCo     = "co-2"
	appURL      = "https://app.example.test"
)

// noopScheduler satisfies service.TenantScheduler without running syncs.
type noopScheduler struct{}

func (noopScheduler) ScheduleTenant(string, int) {}
func (noopScheduler) UnscheduleTenant(string)    {}
func (noopScheduler) TriggerSync(context.Context, string) (domain.SyncResult, error) {
	return domain.SyncResult{}, nil
}

// failingPinger is a dependency that is down.
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// fixture is a fully wired Router over the memory store, the in-memory SSO
// state store, a fake directory, scripted identity providers and a fake clock.
type fixture struct {
	t         *testing.T
	store     *memory.Store
	clock     *clockwork.FakeClock
	issuer    *jwtx.Issuer
	providers *federationtest.Source
	login     *service.LoginService
	twofa     *service.TwoFactorService
	router    *Router
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	bootstrapToken string
	state          Pinger
}

func withBootstrapToken(tok string) fixtureOption {
	return func(c *fixtureConfig) { c.bootstrapToken = tok }
}

func withStatePinger(p Pinger) fixtureOption {
	return func(c *fixtureConfig) { c.state = p }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, o := range opts {
		o(&cfg)
	}

	s := memory.NewStore()
	storetest.SeedCompany(t, s, testPark, testCompany)
	storetest.SeedCompany(t, s, "park-2", otherCo)

	clock := clockwork.NewFakeClockAt(testEpoch)
	vault, err := cryptox.NewVault([]byte("http-test-key"))
	require.NoError(t, err)

	issuer, err := jwtx.NewIssuer("roomkey-test", []string{"roomkey"})
	require.NoError(t, err)
	issuer.Now = clock.Now

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	state := kvx.NewMemory()
	providers := federationtest.NewSource()

	dir := &service.DirectoryService{
		Configs: s.DirectoryConfigs(),
		Users:   s.Users(),
		Tenants: s.Tenants(),
		Vault:   vault,
		Client:  directory.NewClient(directorytest.NewServer()),
		Clock:   clock,
		Metrics: metrics,
	}
	devices := &service.TrustedDeviceService{Devices: s.TrustedDevices(), Settings: s.Settings(), Clock: clock}
	twofa := &service.TwoFactorService{Store: s, Vault: vault, Directory: dir, Clock: clock, Issuer: "Roomkey"}
	login := &service.LoginService{
		Users:     s.Users(),
		Policy:    &service.EnforcementResolver{Settings: s.Settings(), Tenants: s.Tenants()},
		Directory: dir,
		TwoFactor: twofa,
		Devices:   devices,
		Tokens:    issuer,
		Metrics:   metrics,
	}

	var statePinger Pinger = state
	if cfg.state != nil {
		statePinger = cfg.state
	}

	r := NewRouter(issuer, "test", s, statePinger, reg, slog.New(slog.DiscardHandler))
	r.AppURL = appURL
	r.LoginService = login
	r.TwoFactorService = twofa
	r.TrustedDeviceService = devices
	r.DirectoryConfigService = &service.DirectoryConfigService{
		Configs:   s.DirectoryConfigs(),
		Tenants:   s.Tenants(),
		Vault:     vault,
		Directory: dir,
		Scheduler: noopScheduler{},
		Clock:     clock,
	}
	r.SSOConfigService = &service.SSOConfigService{
		Configs: s.SSOConfigs(),
		Tenants: s.Tenants(),
		Vault:   vault,
		Clock:   clock,
	}
	r.SSOService = &service.SSOService{
		Configs:   s.SSOConfigs(),
		Users:     s.Users(),
		Tenants:   s.Tenants(),
		Providers: providers,
		State:     state,
		Clock:     clock,
		Metrics:   metrics,
	}
	r.BootstrapService = &service.BootstrapService{Store: s, Token: cfg.bootstrapToken, Clock: clock}
	r.ApplyRoutes()

	return &fixture{
		t:         t,
		store:     s,
		clock:     clock,
		issuer:    issuer,
		providers: providers,
		login:     login,
		twofa:     twofa,
		router:    r,
	}
}

// addUser stores an active local user with password and the given role.
func (f *fixture) addUser(companyID, email, password string, role domain.Role) domain.User {
	f.t.Helper()
	u := storetest.NewUser(companyID, email)
	hash, err := cryptox.HashPassword(password)
	require.NoError(f.t, err)
	u.PasswordHash = hash
	u.Role = role
	require.NoError(f.t, f.store.Users().CreateUser(f.t.Context(), u))
	return u
}

// sessionFor mints a full session token for u.
func (f *fixture) sessionFor(u domain.User) string {
	f.t.Helper()
	res, err := f.login.IssueFullSession(u, []string{jwtx.AMRPassword}, false)
	require.NoError(f.t, err)
	return res.Token
}

// enableTwoFA enrols u and returns the plaintext TOTP secret.
func (f *fixture) enableTwoFA(u domain.User) string {
	f.t.Helper()
	setup, err := f.twofa.BeginSetup(f.t.Context(), u.ID)
	require.NoError(f.t, err)
	_, err = f.twofa.ConfirmSetup(f.t.Context(), u.ID, f.code(setup.Secret))
	require.NoError(f.t, err)
	return setup.Secret
}

func (f *fixture) code(secret string) string {
	f.t.Helper()
	c, err := totp.GenerateCode(secret, f.clock.Now())
	require.NoError(f.t, err)
	return c
}

// do sends a request through the full middleware chain. body is JSON-encoded
// unless nil.
func (f *fixture) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	return serve(f, req)
}

func newFormRequest(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var env struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, code, env.Error)
	require.NotEmpty(t, env.Description)
}
