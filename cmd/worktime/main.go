// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkhieu/worktime/internal/activity"
	"github.com/tkhieu/worktime/internal/api"
	"github.com/tkhieu/worktime/internal/auth"
	"github.com/tkhieu/worktime/internal/backend"
	"github.com/tkhieu/worktime/internal/cache"
	"github.com/tkhieu/worktime/internal/config"
	"github.com/tkhieu/worktime/internal/events"
	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/retry"
	"github.com/tkhieu/worktime/internal/scheduler"
	"github.com/tkhieu/worktime/internal/session"
	"github.com/tkhieu/worktime/internal/store"
	"github.com/tkhieu/worktime/internal/supervisor"
	"github.com/tkhieu/worktime/internal/supervisor/services"
	intsync "github.com/tkhieu/worktime/internal/sync"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Str("backend_url", cfg.Backend.BaseURL).
		Str("listen_addr", cfg.Server.ListenAddr()).
		Msg("Starting WorkTime agent")

	db, err := store.Open(storeConfig(cfg))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	// Fatal exits without running defers, so the store is closed explicitly.
	if err := run(cfg, db); err != nil {
		logging.Error().Err(err).Msg("Agent stopped with error")
		closeStore(db)
		os.Exit(1)
	}
	closeStore(db)
	logging.Info().Msg("Agent stopped gracefully")
}

func storeConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig(cfg.Store.Path)
	sc.SyncWrites = cfg.Store.SyncWrites
	sc.Compression = cfg.Store.Compression
	if cfg.Store.MemTableSize > 0 {
		sc.MemTableSize = cfg.Store.MemTableSize
	}
	if cfg.Store.ValueLogFileSize > 0 {
		sc.ValueLogFileSize = cfg.Store.ValueLogFileSize
	}
	if cfg.Store.NumMemtables > 0 {
		sc.NumMemtables = cfg.Store.NumMemtables
	}
	if cfg.Store.CloseTimeout > 0 {
		sc.CloseTimeout = cfg.Store.CloseTimeout
	}
	if cfg.Retention.GCDiscardRatio > 0 {
		sc.GCRatio = cfg.Retention.GCDiscardRatio
	}
	return sc
}

func closeStore(db *store.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing store")
	}
}

//nolint:gocyclo // Sequential wiring of every component
func run(cfg *config.Config, db *store.DB) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Caches load in dependency order: the queue needs the dead letters,
	// the tracker and outbox rebuild their indexes from the queue.
	dead := queue.NewDeadLetters(store.NewCache[models.DeadLetterRecord](db, store.NamespaceDeadLetters),
		cfg.Sync.DeadLetterCapacity)
	if err := dead.Initialize(ctx); err != nil {
		return err
	}
	ops := queue.New(store.NewCache[models.PendingOperation](db, store.NamespaceOperations), dead)
	if err := ops.Initialize(ctx); err != nil {
		return err
	}

	tracker := session.NewTracker(store.NewCache[models.TrackedInterval](db, store.NamespaceIntervals), ops)
	if err := tracker.Initialize(ctx); err != nil {
		return err
	}

	window := cache.NewLRUCache(cfg.Activity.DedupCapacity, cfg.Activity.DedupWindow)
	outbox := activity.NewOutbox(store.NewCache[models.ActivityEvent](db, store.NamespaceOutbox), ops, window)
	if err := outbox.Initialize(ctx); err != nil {
		return err
	}

	stats := ops.Stats()
	logging.Info().
		Int("pending", stats.Pending).
		Int("dead_letters", stats.DeadLetters).
		Msg("Local state restored")

	tokens, err := auth.NewTokenStore(db.Meta, cfg.Auth.EncryptionSecret)
	if err != nil {
		return err
	}
	if err := tokens.Load(ctx); err != nil {
		logging.Warn().Err(err).Msg("Stored token could not be restored; sign in again")
	}
	if cfg.Auth.Token != "" {
		if err := tokens.Set(ctx, cfg.Auth.Token); err != nil {
			return err
		}
	}

	client := backend.NewClient(&cfg.Backend, tokens)

	orch := intsync.NewOrchestrator(intsync.Deps{
		Queue:      ops,
		Intervals:  tracker,
		Activities: outbox,
		Backend:    client,
		Auth:       tokens,
		Policy:     retry.NewPolicy(&cfg.Sync),
		Meta:       db.Meta,
	}, &cfg.Sync)

	// End and Record return after one bounded delivery attempt.
	tracker.SetSyncHook(orch.IntervalHook(cfg.Sync.HookTimeout))
	outbox.SetSyncHook(orch.ActivityHook(cfg.Sync.HookTimeout))

	// Recovery pass for whatever the previous run left queued.
	if stats.Pending > 0 {
		if _, err := orch.TrySync(ctx); err != nil {
			logging.Warn().Err(err).Msg("Recovery sync did not complete; the scheduler will retry")
		}
	}

	sched := scheduler.New(orch, cfg.Scheduler.Interval)
	watcher := scheduler.NewConnectivityWatcher(client, sched, cfg.Scheduler.ProbeInterval, cfg.Scheduler.ProbeTimeout)
	maintainer := store.NewMaintainer(db, store.MaintainerConfig{
		Interval: cfg.Retention.Interval,
		TTL:      cfg.Retention.EndedIntervalTTL,
	}, tracker, outbox)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		return err
	}

	tree.AddDataService(services.NewMaintainerService(maintainer))
	tree.AddSyncService(services.NewSchedulerService(sched))
	tree.AddSyncService(services.NewConnectivityService(watcher))

	router := api.NewRouter(api.Deps{
		Messages:     events.NewRouter(tracker, outbox),
		Sync:         orch,
		Reconnect:    sched,
		Tokens:       tokens,
		DeadLetters:  dead,
		Connectivity: watcher,
	}, api.ChiMiddlewareConfigFrom(&cfg.Server))

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Intervals still open stay Active in the store and are resumed or
	// ended by the next run.
	return serveErr
}
