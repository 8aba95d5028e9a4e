package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnwards/hsevents/internal/api"
	"github.com/johnwards/hsevents/internal/api/admin"
	"github.com/johnwards/hsevents/internal/config"
	"github.com/johnwards/hsevents/internal/database"
	"github.com/johnwards/hsevents/internal/hubspot"
	"github.com/johnwards/hsevents/internal/images"
	"github.com/johnwards/hsevents/internal/logging"
	"github.com/johnwards/hsevents/internal/notify"
	"github.com/johnwards/hsevents/internal/scheduler"
	"github.com/johnwards/hsevents/internal/seed"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/store"
	"github.com/johnwards/hsevents/internal/supervisor"
	"github.com/johnwards/hsevents/internal/syncer"
	"github.com/johnwards/hsevents/internal/taxonomy"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.NewSlogLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenMigrated(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	st, err := state.Open(cfg.State.Dir)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	s := store.New(db)
	disc := taxonomy.New(s.Taxonomies, st, logger)

	if err := seed.Seed(ctx, st, disc); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	tokens := state.TokenSource{Store: st, Fallback: cfg.HubSpot.Token}
	client := hubspot.NewClient(hubspot.Config{
		BaseURL:         cfg.HubSpot.BaseURL,
		Timeout:         cfg.HubSpot.Timeout,
		PageDelay:       cfg.HubSpot.PageDelay,
		BreakerFailures: cfg.HubSpot.BreakerFailures,
		BreakerTimeout:  cfg.HubSpot.BreakerTimeout,
		Logger:          logger,
	}, tokens)

	attacher := images.NewAttacher(images.Config{
		Dir:      cfg.Images.Dir,
		Timeout:  cfg.Images.Timeout,
		MaxBytes: cfg.Images.MaxBytes,
		Logger:   logger,
	}, s.Events)

	notifier := notify.New(logger)
	defer func() { _ = notifier.Close() }()

	manager := syncer.New(syncer.Config{
		Upstream:   client,
		Tokens:     tokens,
		Store:      s,
		State:      st,
		Images:     attacher,
		Taxonomies: disc,
		Publisher:  notifier,
		Logger:     logger,
	})

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddWorker(notify.NewLogSubscriber(notifier, logger))

	deps := admin.Deps{
		Syncer:     manager,
		Client:     client,
		Store:      s,
		State:      st,
		Images:     attacher,
		Taxonomies: disc,
		Nonces:     api.NewNonces(cfg.NonceKey(), nil),
	}

	if cfg.Scheduler.Enabled {
		settings, err := state.LoadSettings(ctx, st)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		sched := scheduler.New(manager, scheduler.Config{Interval: settings.SyncInterval, Logger: logger})
		tree.AddWorker(sched)
		deps.Scheduler = sched
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: admin.NewRouter(admin.RouterConfig{
			AuthToken: cfg.Server.AuthToken,
			RateLimit: cfg.Server.RateLimit,
		}, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPI(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))

	logger.Info("starting hsevents", "addr", cfg.Server.Addr, "hubspot", cfg.HubSpot.BaseURL)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info("shut down")
	return nil
}
