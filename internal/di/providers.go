package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/propfront/propfront/internal/apiclient"
	"github.com/propfront/propfront/internal/app"
	"github.com/propfront/propfront/internal/config"
	"github.com/propfront/propfront/internal/http/handler"
	"github.com/propfront/propfront/internal/http/router"
	"github.com/propfront/propfront/internal/observability"
	"github.com/propfront/propfront/internal/repository"
	"github.com/propfront/propfront/internal/service"
)

var ConfigSet = wire.NewSet(
	provideConfig,
	provideLogProvider,
	provideLogger,
	provideRuntime,
)

var StorageSet = wire.NewSet(
	provideRedisClient,
	provideQueryCacheStore,
	provideReadiness,
	provideTokenRepository,
	service.NewTokenStore,
)

var SessionSet = wire.NewSet(
	provideAPIClient,
	wire.Bind(new(service.Authenticator), new(*apiclient.Client)),
	wire.Bind(new(service.ProfileService), new(*apiclient.Client)),
	service.NewCacheCoordinator,
	wire.Bind(new(service.SessionCache), new(*service.CacheCoordinator)),
	wire.Bind(new(handler.CacheInvalidator), new(*service.CacheCoordinator)),
	service.NewSessionStore,
	wire.Bind(new(handler.SessionController), new(*service.SessionStore)),
)

var HTTPSet = wire.NewSet(
	handler.NewSessionHandler,
	provideRouter,
	provideHTTPServer,
	app.New,
)

func provideConfig(ctx context.Context) (*config.Config, error) {
	return config.Load(ctx)
}

func provideLogProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, func(), error) {
	lp, err := observability.InitLogProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if lp == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lp.Shutdown(ctx)
	}
	return lp, cleanup, nil
}

func provideLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := observability.NewLogger(cfg, os.Stderr, lp)
	slog.SetDefault(logger)
	return logger
}

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, func(), error) {
	rt, err := observability.InitRuntime(ctx, cfg, logger, lp)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(ctx); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
	}
	return rt, cleanup, nil
}

// provideRedisClient returns nil unless the redis cache backend is selected.
func provideRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.Cache.Backend != "redis" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func provideQueryCacheStore(cfg *config.Config, client redis.UniversalClient) service.QueryCacheStore {
	switch cfg.Cache.Backend {
	case "redis":
		return service.NewRedisQueryCacheStore(client, cfg.Cache.Prefix)
	case "none":
		return service.NewNoopQueryCacheStore()
	default:
		return service.NewInMemoryQueryCacheStore()
	}
}

func provideReadiness(client redis.UniversalClient) router.ReadinessCheck {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}

func provideTokenRepository(cfg *config.Config) (repository.TokenRepository, func(), error) {
	switch cfg.Persist.Driver {
	case "sqlite", "postgres":
		target := cfg.Persist.DSN
		if cfg.Persist.Driver == "sqlite" {
			target = cfg.Persist.Path
		}
		db, err := repository.OpenGormDB(cfg.Persist.Driver, target)
		if err != nil {
			return nil, nil, fmt.Errorf("open token database: %w", err)
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		repo, err := repository.NewGormTokenRepository(db)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return repo, cleanup, nil
	default:
		return repository.NewFileTokenRepository(cfg.Persist.Path), func() {}, nil
	}
}

func provideAPIClient(cfg *config.Config, logger *slog.Logger) (*apiclient.Client, error) {
	return apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		Instrument: cfg.OTEL.HTTPInstrumentation,
		Logger:     logger,
	})
}

func provideRouter(cfg *config.Config, h *handler.SessionHandler, sessions *service.SessionStore, ready router.ReadinessCheck) http.Handler {
	return router.NewRouter(router.Dependencies{
		SessionHandler:   h,
		Sessions:         sessions,
		SignInPath:       cfg.SignInPath,
		SignInRateLimit:  cfg.SignInRateLimit,
		SignInRateWindow: cfg.SignInRateWindow,
		Readiness:        ready,
		EnableOTelHTTP:   cfg.OTEL.HTTPInstrumentation,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
