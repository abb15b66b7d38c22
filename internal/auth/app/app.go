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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/aussiebroadwan/portal/internal/auth/http"
	"github.com/aussiebroadwan/portal/internal/auth/provider"
	"github.com/aussiebroadwan/portal/internal/auth/provider/local"
	"github.com/aussiebroadwan/portal/internal/auth/provider/oidc"
	"github.com/aussiebroadwan/portal/internal/auth/service"
	"github.com/aussiebroadwan/portal/internal/auth/store"
	"github.com/aussiebroadwan/portal/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/portal/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// identityProvider is a provider the application owns the lifecycle of.
type identityProvider interface {
	provider.IdentityProvider
	Start(ctx context.Context) error
	Close() error
}

// Application encapsulates the auth agent with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	registry *prometheus.Registry
	metrics  *service.Metrics
	provider identityProvider
	hasher   *cryptox.Hasher // local provider only

	// Services
	authService         *service.AuthService
	lastLogin           *service.LastLoginRecorder
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router

	cancel context.CancelFunc
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "portal-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.bootstrap(ctx); err != nil {
		_ = app.provider.Close()
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(slogx.WithContext(context.Background(), app.logger))
	app.cancel = cancel

	app.housekeepingService.Start()
	app.lastLogin.Start()

	if err := app.provider.Start(ctx); err != nil {
		_ = app.Shutdown()
		return fmt.Errorf("failed to start identity provider: %w", err)
	}
	app.authService.Start(ctx)

	app.logger.Info("auth agent starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"provider", app.cfg.Provider,
		"store", app.cfg.StoreDriver,
	)

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
			_ = app.Shutdown()
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
	app.logger.Info("shutting down auth agent...")

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

	// Stop the reconciler before the provider it listens to
	app.authService.Close()
	if err := app.provider.Close(); err != nil {
		app.logger.Error("error closing identity provider", "error", err)
	}
	if app.cancel != nil {
		app.cancel()
	}

	// Pending last-login writes need the database
	app.lastLogin.Stop()
	app.housekeepingService.Stop()

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth agent stopped")
	return nil
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.StoreDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(app.cfg.DatabaseURL)
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initServices builds the identity provider and the reconciler around it
func (app *Application) initServices(ctx context.Context) error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = service.NewMetrics(app.registry)

	if err := app.initProvider(ctx); err != nil {
		return err
	}

	profiles := store.NewCachedProfiles(app.db.Profiles(), app.cfg.ProfileCacheSize, app.cfg.ProfileCacheTTL)

	app.lastLogin = service.NewLastLoginRecorder(profiles, app.logger, app.metrics, app.cfg.LastLoginBuffer)

	resolver := &service.ProfileResolver{
		Profiles:  profiles,
		LastLogin: app.lastLogin,
		Logger:    app.logger,
		Metrics:   app.metrics,
	}

	app.authService = service.NewAuthService(
		app.provider,
		resolver,
		app.logger,
		app.metrics,
		app.cfg.ProviderTimeout,
	)

	app.bootstrapService = &service.BootstrapService{
		Store:    app.db,
		Hasher:   app.hasher,
		Email:    app.cfg.Bootstrap.Email,
		Password: app.cfg.Bootstrap.Password,
		Name:     app.cfg.Bootstrap.Name,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.metrics,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) initProvider(ctx context.Context) error {
	switch app.cfg.Provider {
	case ProviderOIDC:
		p, err := oidc.New(ctx, oidc.Config{
			IssuerURL:       app.cfg.OIDC.IssuerURL,
			ClientID:        app.cfg.OIDC.ClientID,
			ClientSecret:    app.cfg.OIDC.ClientSecret,
			Scopes:          app.cfg.OIDC.Scopes,
			RoleClaim:       app.cfg.OIDC.RoleClaim,
			NameClaim:       app.cfg.OIDC.NameClaim,
			RefreshInterval: app.cfg.RefreshInterval,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize oidc provider: %w", err)
		}
		app.provider = p
		app.logger.Info("using oidc identity provider", "issuer", app.cfg.OIDC.IssuerURL)

	default:
		pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		app.hasher = &cryptox.Hasher{Pepper: pepper}

		signer, err := LoadOrCreateSigningKey(app.cfg.SigningKeyFile, app.logger)
		if err != nil {
			return err
		}

		sessionFile := app.cfg.SessionFile
		if sessionFile == "-" {
			sessionFile = ""
		}

		p, err := local.New(app.db, *app.hasher, signer, local.Config{
			Issuer:          app.cfg.Issuer,
			SessionTTL:      app.cfg.SessionTTL,
			RefreshTTL:      app.cfg.RefreshTTL,
			RefreshInterval: app.cfg.RefreshInterval,
			SessionFile:     sessionFile,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize local provider: %w", err)
		}
		app.provider = p
		app.logger.Info("using local identity provider", "issuer", app.cfg.Issuer, "kid", signer.KID())
	}
	return nil
}

// bootstrap seeds the first admin when configured and the store is empty
func (app *Application) bootstrap(ctx context.Context) error {
	if !app.bootstrapService.Configured() {
		return nil
	}

	_, err := app.bootstrapService.Bootstrap(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrBootstrapAlready):
		app.logger.Debug("bootstrap skipped, profiles already exist")
		return nil
	default:
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.authService,
		app.registry,
		httpx.DefaultLimits(),
		app.logger,
	)
	if keys, ok := app.provider.(httpapi.KeyPublisher); ok {
		router.PublishKeys(keys)
	}
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
