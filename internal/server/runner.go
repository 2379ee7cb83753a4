// Package server wires the configuration, trigger store, policy engine and
// management API into a running daemon.
package server

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

	"github.com/jroosing/hydrarpz/internal/api"
	"github.com/jroosing/hydrarpz/internal/config"
	"github.com/jroosing/hydrarpz/internal/database"
	"github.com/jroosing/hydrarpz/internal/policy"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

const shutdownTimeout = 5 * time.Second

// Runner orchestrates daemon startup, reloads and shutdown.
type Runner struct {
	logger *slog.Logger
	engine *policy.Engine
}

// NewRunner creates a new runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Engine returns the policy engine once RunWithContext has built it.
func (r *Runner) Engine() *policy.Engine {
	return r.engine
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the daemon and blocks until ctx is canceled or a
// component fails.
//
// Lifecycle:
//  1. Open the trigger store (if a database path is configured)
//  2. Register the configured zones and load them
//  3. Start the management API (if enabled)
//  4. Reload every zone on SIGHUP and every reload interval
//  5. Shut the API down gracefully when ctx ends
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	var db *database.DB
	if cfg.Database.Path != "" {
		var err error
		db, err = database.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open trigger store: %w", err)
		}
		defer db.Close()
		r.logger.Info("trigger store opened", "path", cfg.Database.Path)
	}

	engine, err := BuildEngine(cfg, db, r.logger)
	if err != nil {
		return err
	}
	defer engine.Close()
	r.engine = engine

	// A zone that fails to load keeps its error in the zone metadata and is
	// retried on the next reload.
	if err := engine.LoadAll(ctx); err != nil {
		r.logger.Warn("some policy zones failed to load", "err", err)
	}
	r.logger.Info("policy engine ready", "engine", engine.String())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		srv := api.New(cfg, engine, db, r.logger)
		ln, err := srv.Listen(gctx)
		if err != nil {
			return fmt.Errorf("api listen on %s: %w", srv.Addr(), err)
		}
		r.logger.Info("api rate limits", "effective", api.RateLimitSettings(cfg.API.RateLimit).String())
		g.Go(func() error { return srv.Serve(ln) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		r.reloadLoop(gctx, engine, cfg.RPZ.ReloadInterval.Duration())
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadLoop reloads every zone on SIGHUP and, when interval is positive,
// on a timer. It returns when ctx ends.
func (r *Runner) reloadLoop(ctx context.Context, engine *policy.Engine, interval time.Duration) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			r.logger.Info("reloading policy zones", "reason", "SIGHUP")
		case <-tick:
			r.logger.Debug("reloading policy zones", "reason", "interval")
		}
		if err := engine.LoadAll(ctx); err != nil {
			r.logger.Warn("policy zone reload incomplete", "err", err)
		}
	}
}

// BuildEngine creates a policy engine with every configured zone
// registered. Zone IDs follow the configuration order. db may be nil.
func BuildEngine(cfg *config.Config, db *database.DB, logger *slog.Logger) (*policy.Engine, error) {
	pcfg := policy.Config{
		Logger: logger,
		Options: rpz.Options{
			MaxNodes:         cfg.RPZ.MaxNodes,
			QNameWaitRecurse: cfg.RPZ.QNameWaitRecurse,
		},
	}
	if db != nil {
		pcfg.Store = db
	}
	engine := policy.NewEngine(pcfg)

	for i, zc := range cfg.Zones {
		format, err := policy.ParseFormat(zc.Format)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("zone %q: %w", zc.Name, err)
		}
		_, err = engine.AddZone(policy.ZoneSource{
			Spec: rpz.ZoneSpec{
				ID:       rpz.ZoneID(i),
				Name:     zc.Name,
				Origin:   zc.Origin,
				IP:       zc.IP,
				ClientIP: zc.ClientIP,
				NSIP:     zc.NSIP,
				NSDName:  zc.NSDName,
			},
			File:   zc.File,
			Format: format,
		})
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
	}
	return engine, nil
}
