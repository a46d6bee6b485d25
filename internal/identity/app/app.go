package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/directory"
	"github.com/aussiebroadwan/roomkey/internal/identity/federation"
	httpapi "github.com/aussiebroadwan/roomkey/internal/identity/http"
	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/drivers/memory"
	"github.com/aussiebroadwan/roomkey/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/kvx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	// sessionAudience is the aud claim on every session token.
	sessionAudience = "roomkey"
)

// Application encapsulates the identity service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	// Core dependencies
	db       store.Store
	state    kvx.Store
	vault    *cryptox.Vault
	issuer   *jwtx.Issuer
	registry *prometheus.Registry
	metrics  *service.Metrics

	// Services
	directoryService       *service.DirectoryService
	directoryConfigService *service.DirectoryConfigService
	scheduler              *service.SyncScheduler
	twoFactorService       *service.TwoFactorService
	trustedDeviceService   *service.TrustedDeviceService
	loginService           *service.LoginService
	ssoService             *service.SSOService
	ssoConfigService       *service.SSOConfigService
	bootstrapService       *service.BootstrapService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Pepper must be in place before the first hash
	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return nil, err
	}

	vault, err := cryptox.LoadVault(cfg.MasterKeyPath, cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load secret vault: %w", err)
	}
	app.vault = vault

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initStateStore(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	issuer, err := jwtx.NewIssuer(cfg.Issuer, []string{sessionAudience})
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	app.issuer = issuer
	app.logger.Info("token signing key generated", "kid", issuer.KID())

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = service.NewMetrics(app.registry)

	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.cfg.SyncEnabled {
		if err := app.scheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start sync scheduler: %w", err)
		}
	} else {
		app.logger.Info("scheduled directory sync disabled on this replica")
	}

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.scheduler.Stop()
			app.closeStores()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop scheduled syncs; a sync in flight finishes first
	app.scheduler.Stop()

	if err := app.state.Close(); err != nil {
		app.logger.Error("error closing state store", "error", err)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// Handler exposes the router, mainly for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase() error {
	switch app.cfg.StoreDriver {
	case "memory":
		app.db = memory.NewStore()
		app.logger.Warn("using the in-memory store, all data is lost on restart")
		return nil
	case "sqlite", "":
	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
	}

	host := fmt.Sprintf("file:%s", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initStateStore picks where SSO correlation state lives. Redis is required
// when more than one replica serves callbacks.
func (app *Application) initStateStore() error {
	switch app.cfg.StateStore {
	case "memory", "":
		app.state = kvx.NewMemory()
	case "redis":
		r := kvx.NewRedis(kvx.RedisConfig{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
			Prefix:   app.cfg.RedisPrefix,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		app.state = r
	default:
		return fmt.Errorf("unknown state store %q", app.cfg.StateStore)
	}
	app.logger.Info("sso state store ready", "driver", app.cfg.StateStore)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	db := app.db

	app.directoryService = &service.DirectoryService{
		Configs: db.DirectoryConfigs(),
		Users:   db.Users(),
		Tenants: db.Tenants(),
		Vault:   app.vault,
		Client:  directory.NewClient(directory.LDAPDialer{}),
		Clock:   app.clock,
		Metrics: app.metrics,
		Timeout: app.cfg.DirectoryTimeout,
	}

	app.scheduler = service.NewSyncScheduler(
		db.DirectoryConfigs(),
		app.directoryService,
		app.clock,
		app.logger.With("component", "sync-scheduler"),
		service.SchedulerOptions{
			ReconcileInterval: app.cfg.SyncReconcileInterval,
			Metrics:           app.metrics,
		},
	)

	app.directoryConfigService = &service.DirectoryConfigService{
		Configs:   db.DirectoryConfigs(),
		Tenants:   db.Tenants(),
		Vault:     app.vault,
		Directory: app.directoryService,
		Scheduler: app.scheduler,
		Clock:     app.clock,
	}

	app.twoFactorService = &service.TwoFactorService{
		Store:     db,
		Vault:     app.vault,
		Directory: app.directoryService,
		Clock:     app.clock,
		Issuer:    app.cfg.TOTPIssuer,
	}
	app.trustedDeviceService = &service.TrustedDeviceService{
		Devices:  db.TrustedDevices(),
		Settings: db.Settings(),
		Clock:    app.clock,
	}
	app.loginService = &service.LoginService{
		Users:       db.Users(),
		Policy:      &service.EnforcementResolver{Settings: db.Settings(), Tenants: db.Tenants()},
		Directory:   app.directoryService,
		TwoFactor:   app.twoFactorService,
		Devices:     app.trustedDeviceService,
		Tokens:      app.issuer,
		Metrics:     app.metrics,
		SessionTTL:  app.cfg.SessionTTL,
		RememberTTL: app.cfg.RememberMeTTL,
		PartialTTL:  app.cfg.PartialSessionTTL,
	}

	spKeys, err := federation.LoadSPKeyPair(app.cfg.SAMLCertFile, app.cfg.SAMLKeyFile)
	if err != nil {
		return err
	}
	if app.cfg.SAMLCertFile == "" {
		app.logger.Warn("no saml sp keypair configured, generated an ephemeral one")
	}
	providers := federation.NewFactory(
		app.vault,
		app.cfg.PublicURL,
		&http.Client{Timeout: app.cfg.SSOHTTPTimeout},
		spKeys,
		federation.DefaultProviderTTL,
	)

	app.ssoService = &service.SSOService{
		Configs:   db.SSOConfigs(),
		Users:     db.Users(),
		Tenants:   db.Tenants(),
		Providers: providers,
		State:     app.state,
		Clock:     app.clock,
		Metrics:   app.metrics,
	}
	app.ssoConfigService = &service.SSOConfigService{
		Configs: db.SSOConfigs(),
		Tenants: db.Tenants(),
		Vault:   app.vault,
		Cache:   providers,
		Clock:   app.clock,
	}

	app.bootstrapService = &service.BootstrapService{
		Store: db,
		Token: app.cfg.BootstrapToken,
		Clock: app.clock,
	}
	if app.cfg.BootstrapToken != "" {
		done, err := app.bootstrapService.IsBootstrapped(context.Background())
		if err != nil {
			return fmt.Errorf("failed to check bootstrap state: %w", err)
		}
		if !done {
			app.logger.Info("bootstrap endpoint enabled")
		}
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.issuer,
		BuildVersion,
		app.db,
		app.state,
		app.registry,
		app.logger,
	)

	// Wire services to router
	router.AppURL = app.cfg.AppURL
	router.LoginService = app.loginService
	router.TwoFactorService = app.twoFactorService
	router.TrustedDeviceService = app.trustedDeviceService
	router.DirectoryConfigService = app.directoryConfigService
	router.SSOConfigService = app.ssoConfigService
	router.SSOService = app.ssoService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func (app *Application) closeStores() {
	if app.state != nil {
		_ = app.state.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}
