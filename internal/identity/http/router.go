package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/roomkey/api/identity" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// adminRoles may reach the config endpoints. Which tenant they may touch is
// decided by the service.
var adminRoles = []string{
	domain.RoleCompanyAdmin.String(),
	domain.RoleParkAdmin.String(),
	domain.RoleSuperAdmin.String(),
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         KeyPublisher
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   Pinger
	state   Pinger
	metrics prometheus.Gatherer

	// AppURL is where SSO callbacks send the browser.
	AppURL string

	LoginService           *service.LoginService
	TwoFactorService       *service.TwoFactorService
	TrustedDeviceService   *service.TrustedDeviceService
	DirectoryConfigService *service.DirectoryConfigService
	SSOConfigService       *service.SSOConfigService
	SSOService             *service.SSOService
	BootstrapService       *service.BootstrapService
}

// NewRouter wires the shared dependencies. issuer both signs and verifies
// session tokens; its keys are published at the JWKS endpoint.
func NewRouter(
	issuer *jwtx.Issuer,
	buildVersion string,
	st Pinger,
	state Pinger,
	metrics prometheus.Gatherer,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         issuer,
		verifier:     issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		state:        state,
		metrics:      metrics,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFA()
	r.registerTrustedDevices()
	r.registerDirectoryConfigs()
	r.registerSSOConfigs()
	r.registerSSO()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Roomkey Identity Service API
//	@version		0.1.0
//	@description	Identity and access federation for the booking platform: password, directory
//	@description	(LDAP) and SSO (OIDC, SAML) login, two-factor authentication and tenant-scoped
//	@description	directory and SSO administration.
//	@description
//	@description				Session tokens are EdDSA-signed JWTs and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/roomkey
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &LoginHandler{LoginService: r.LoginService}

	// POST /login - strict rate limit by IP + email to slow credential stuffing
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(h,
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
}

func (r *Router) registerTwoFA() {
	h := &TwoFAHandler{
		LoginService:     r.LoginService,
		TwoFactorService: r.TwoFactorService,
	}

	// Setup and confirm accept a pending session so enforced enrolment can
	// finish a login.
	pendingSetup := httpx.Chain(http.HandlerFunc(h.HandleSetup),
		httpx.PendingAuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
	pendingConfirm := httpx.Chain(http.HandlerFunc(h.HandleConfirm),
		httpx.PendingAuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// Verify only makes sense for a pending session; the service rejects full ones.
	pendingVerify := httpx.Chain(http.HandlerFunc(h.HandleVerify),
		httpx.PendingAuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	securedDisable := httpx.Chain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)
	securedBackupCodes := httpx.Chain(http.HandlerFunc(h.HandleBackupCodes),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/auth/2fa/setup", pendingSetup)
	r.Mux.Handle("POST /v1/auth/2fa/confirm", pendingConfirm)
	r.Mux.Handle("POST /v1/auth/2fa/verify", pendingVerify)
	r.Mux.Handle("POST /v1/auth/2fa/disable", securedDisable)
	r.Mux.Handle("POST /v1/auth/2fa/backup-codes", securedBackupCodes)
}

func (r *Router) registerTrustedDevices() {
	h := &TrustedDevicesHandler{TrustedDeviceService: r.TrustedDeviceService}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/auth/trusted-devices", secured(h.HandleList))
	r.Mux.Handle("DELETE /v1/auth/trusted-devices/{id}", secured(h.HandleRevoke))
	r.Mux.Handle("DELETE /v1/auth/trusted-devices", secured(h.HandleRevokeAll))
}

// admin guards the config endpoints: full session, an admin role, moderate limit.
func (r *Router) admin(fn http.HandlerFunc) http.Handler {
	return httpx.Chain(fn,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyRole(adminRoles...),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
}

func (r *Router) registerDirectoryConfigs() {
	h := &DirectoryConfigsHandler{DirectoryConfigService: r.DirectoryConfigService}

	r.Mux.Handle("POST /v1/directory-configs", r.admin(h.HandleCreate))
	r.Mux.Handle("GET /v1/directory-configs/{id}", r.admin(h.HandleGet))
	r.Mux.Handle("PUT /v1/directory-configs/{id}", r.admin(h.HandleUpdate))
	r.Mux.Handle("DELETE /v1/directory-configs/{id}", r.admin(h.HandleDelete))
	r.Mux.Handle("POST /v1/directory-configs/{id}/test", r.admin(h.HandleTest))

	// Manual sync is expensive on the directory side - strict limit
	r.Mux.Handle("POST /v1/directory-configs/{id}/sync",
		httpx.Chain(http.HandlerFunc(h.HandleSync),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyRole(adminRoles...),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/directory-configs/{id}/sync-status", r.admin(h.HandleSyncStatus))
}

func (r *Router) registerSSOConfigs() {
	h := &SSOConfigsHandler{SSOConfigService: r.SSOConfigService}

	r.Mux.Handle("POST /v1/sso-configs", r.admin(h.HandleCreate))
	r.Mux.Handle("GET /v1/sso-configs/{id}", r.admin(h.HandleGet))
	r.Mux.Handle("PUT /v1/sso-configs/{id}", r.admin(h.HandleUpdate))
	r.Mux.Handle("DELETE /v1/sso-configs/{id}", r.admin(h.HandleDelete))
}

func (r *Router) registerSSO() {
	h := &SSOHandler{
		SSOService:   r.SSOService,
		LoginService: r.LoginService,
		AppURL:       r.AppURL,
	}

	// Public endpoints. Discovery is probed on every keystroke of some login
	// pages, so it gets the lenient limit.
	r.Mux.Handle("POST /v1/sso/discover",
		httpx.Chain(http.HandlerFunc(h.HandleDiscover),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/sso/{id}/init",
		httpx.Chain(http.HandlerFunc(h.HandleInit),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/sso/callback/oidc",
		httpx.Chain(http.HandlerFunc(h.HandleOIDCCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/sso/callback/saml",
		httpx.Chain(http.HandlerFunc(h.HandleSAMLCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/sso/{id}/metadata",
		httpx.Chain(http.HandlerFunc(h.HandleMetadata),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.state, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{}))
	}
}
