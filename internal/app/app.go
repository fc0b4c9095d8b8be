// Package app wires the engine's dependencies and runs its goroutines until
// shutdown or a fatal cycle failure.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	path    string
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from a validated configuration loaded from path.
func New(path string, cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		path:   path,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and runs the feeds, the engine and the API
// server until ctx is cancelled or the engine stops on a fatal error. A fatal
// error is reported through the notifier and returned; a clean shutdown
// returns context.Canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Bool("demo_mode", a.cfg.Engine.DemoMode),
		slog.Int("brokers", len(a.cfg.Brokers)),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.path, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	err = a.run(ctx, deps)
	if err != nil && !errors.Is(err, context.Canceled) {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if nerr := deps.Notifier.Fatal(notifyCtx, err); nerr != nil {
			a.logger.Warn("fatal notification failed", slog.String("error", nerr.Error()))
		}
	}
	return err
}

func (a *App) run(ctx context.Context, deps *Dependencies) error {
	if err := deps.Engine.Start(); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range deps.Streams {
		g.Go(func() error { return s.Run(gctx) })
	}
	g.Go(func() error { return deps.Aggregator.Run(gctx) })
	g.Go(func() error { return deps.Positions.Run(gctx) })

	if deps.Server != nil {
		g.Go(func() error { return deps.Server.Start(gctx) })
	}
	g.Go(func() error { return a.reloadOnHangup(gctx, deps.Config) })
	g.Go(func() error {
		defer func() {
			if err := deps.Engine.Stop(); err != nil {
				a.logger.Warn("engine stop", slog.String("error", err.Error()))
			}
		}()
		return deps.Engine.Run(gctx)
	})

	return g.Wait()
}

// reloadOnHangup re-reads the configuration on SIGHUP. A failed reload keeps
// the previous configuration.
func (a *App) reloadOnHangup(ctx context.Context, store *config.Store) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			if err := store.Reload(ctx); err != nil {
				a.logger.ErrorContext(ctx, "configuration reload failed, previous configuration kept",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
