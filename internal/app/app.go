package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/propfront/propfront/internal/config"
	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/observability"
	"github.com/propfront/propfront/internal/service"
)

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Sessions        *service.SessionStore
	Cache           *service.CacheCoordinator
	Observability   *observability.Runtime
	ShutdownTimeout time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	sessions *service.SessionStore,
	cache *service.CacheCoordinator,
	runtime *observability.Runtime,
) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Sessions:        sessions,
		Cache:           cache,
		Observability:   runtime,
		ShutdownTimeout: timeout,
	}
}

// Run restores the persisted session and serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	stop := a.WatchSession()
	defer stop()

	snap, err := a.Sessions.Restore(ctx)
	if err != nil {
		a.Logger.WarnContext(ctx, "session restore failed", "error", err)
	}
	a.Logger.InfoContext(ctx, "session restored", "state", snap.State)

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// WatchSession logs each change of session state until stop is called.
// Loading and revision-only updates within one state are not logged.
func (a *App) WatchSession() (stop func()) {
	last := a.Sessions.Snapshot().State
	return a.Sessions.Subscribe(func(s domain.Session) {
		if s.State == last {
			return
		}
		a.Logger.Info("session state changed",
			"from", last,
			"to", s.State,
			"actor", s.Actor,
			"revision", s.Revision,
		)
		last = s.State
	})
}

// Serve runs the HTTP server on ln and drains it once ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening", "addr", ln.Addr().String())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.Logger.InfoContext(shutdownCtx, "http server stopped")
		return nil
	})
	return g.Wait()
}

// Shutdown flushes telemetry. The HTTP server is drained by Serve.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()
	return a.Observability.Shutdown(ctx)
}
