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
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/keyhouse/internal/auth/http"
	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
	"github.com/aussiebroadwan/keyhouse/pkg/kv"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	// Core dependencies
	db     store.Store
	redis  *redis.Client
	facade *kv.Facade // nil when no REDIS_URL is configured
	kv     kv.Store
	keys   Keys

	// Services
	engine              *service.Engine
	codec               *jwtx.Codec
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}

	httpx.StrictLimit = cfg.StrictLimit
	httpx.ModerateLimit = cfg.ModerateLimit
	httpx.PublicLimit = cfg.PublicLimit

	keys, err := InitKeys(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.keys = keys

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKV(); err != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Error("error closing database", "error", cerr)
		}
		return nil, err
	}

	if err := app.initServices(); err != nil {
		if cerr := app.closeStores(); cerr != nil {
			app.logger.Error("error releasing stores after failed startup", "error", cerr)
		}
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

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
		if err != nil && err != http.ErrServerClosed {
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
	app.logger.Info("shutting down auth service...")

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

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// closeStores releases the key-value tiers, the redis client and the
// database, in that order. The database error, if any, is returned.
func (app *Application) closeStores() error {
	if app.facade != nil {
		if err := app.facade.Close(); err != nil {
			app.logger.Error("error closing kv facade", "error", err)
		}
	} else if local, ok := app.kv.(*kv.LocalStore); ok {
		_ = local.Close()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		if cerr := db.Close(); cerr != nil {
			app.logger.Error("error closing database after failed migrations", "error", cerr)
		}
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKV builds the local tier and, when REDIS_URL is set, the facade over
// redis. An unreachable redis at startup is not fatal: the facade falls back
// on the first failed operation and reconnects on its own.
func (app *Application) initKV() error {
	local := kv.NewLocalStore(kv.LocalConfig{
		Capacity:       app.cfg.KVLocalCapacity,
		UniqueCapacity: app.cfg.KVLocalUniqueCapacity,
	})

	if app.cfg.RedisURL == "" {
		app.logger.Warn("REDIS_URL not set, codes and throttles live in process memory only")
		app.kv = local
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		_ = local.Close()
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	app.redis = redis.NewClient(opts)

	remote := kv.NewRemoteStore(app.redis)
	app.facade = kv.NewFacade(local, remote, kv.FacadeConfig{
		HealthcheckInterval: app.cfg.RedisHealthcheckInterval,
		Logger:              app.logger,
		OnStateChange:       app.metrics.ObserveKVState,
		OnFallback:          app.metrics.ObserveKVFallback,
	})
	app.kv = app.facade

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := remote.Ping(ctx); err != nil {
		app.logger.Warn("redis unreachable at startup", "addr", opts.Addr, "error", err)
	} else {
		app.logger.Info("redis connected", "addr", opts.Addr)
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:    app.keys.Secret,
		Algorithm: app.cfg.Algorithm,
		AccessTTL: app.cfg.AccessTTL,
		Issuer:    app.cfg.Issuer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	app.engine = service.NewEngine(service.EngineConfig{
		CodeTTL:          app.cfg.CodeTTL,
		RefreshTTL:       app.cfg.RefreshTTL,
		MaxLoginAttempts: app.cfg.MaxLoginAttempts,
		LockoutDuration:  app.cfg.LockoutDuration,
		Logger:           app.logger,
		OnLockout:        app.metrics.ObserveLockout,
	}, service.Deps{
		Store: app.db,
		KV:    app.kv,
		Hasher: cryptox.NewHasher(cryptox.HasherConfig{
			Pepper:  app.keys.Pepper,
			Workers: app.cfg.HashWorkers,
		}),
		Codec: codec,
	})

	if err := app.grantAdmins(); err != nil {
		return err
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.TokenPurgeAfter,
	)
	return nil
}

// grantAdmins promotes the configured logins. A login that is not
// registered yet is skipped with a warning; it is picked up on the next start.
func (app *Application) grantAdmins() error {
	ctx := slogx.WithContext(context.Background(), app.logger)
	for _, login := range app.cfg.AdminLogins {
		_, err := app.engine.SetPrivilege(ctx, login, domain.PrivilegeAdmin)
		if errors.Is(err, service.ErrUserNotFound) {
			app.logger.Warn("admin login not registered", "login", login)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to grant admin privilege to %q: %w", login, err)
		}
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	var kvState httpapi.KVStater
	if app.facade != nil {
		kvState = app.facade
	}

	router := httpapi.NewRouter(
		app.engine,
		app.codec,
		app.db,
		kvState,
		BuildVersion,
		app.cfg.Debug,
		app.logger,
	)
	router.Metrics = app.metrics.Handler()
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           app.metrics.Middleware(router),
		ReadHeaderTimeout: 3 * time.Second,
	}
}
