// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package main is the entry point for the mapsync agent.
//
// The agent keeps a device's view of a community map server in sync:
// it holds the points and admin WebSocket channels open, reconciles
// notifications and broadcasts by polling, and queues mutations made
// while offline for replay once the server is reachable again.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml (or CONFIG_PATH), environment
//  2. Device store: BadgerDB, or memory when store.in_memory is set
//  3. Agent: REST client, sockets, queue and sync components
//  4. Supervisor tree: storage, sync and api layers
//  5. Status server (optional): status.listen_addr
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. Services get
// supervisor.shutdown_timeout to stop, then the bus and store close.
//
// # Example Usage
//
//	export MAPSYNC_SERVER_URL=https://map.example.org/api
//	export MAPSYNC_USER_ID=42
//	export STORE_PATH=/var/lib/mapsync
//	export STATUS_LISTEN_ADDR=127.0.0.1:8088
//	./mapsync
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/mapsync/internal/agent"
	"github.com/tomtom215/mapsync/internal/config"
	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/statusapi"
	"github.com/tomtom215/mapsync/internal/store"
	"github.com/tomtom215/mapsync/internal/supervisor"
	"github.com/tomtom215/mapsync/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Agent exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	logging.Info().
		Str("server", cfg.Server.BaseURL).
		Str("user_id", cfg.Server.UserID).
		Bool("admin_channel", cfg.Server.AdminWSPath != "").
		Msg("Starting mapsync agent")

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	bus := events.NewBus(logging.NewComponentSlogLogger("events"))
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	a, err := agent.New(cfg, st, bus)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return err
	}
	a.Attach(tree)

	if cfg.Status.ListenAddr != "" {
		srv := statusapi.NewServer(statusapi.Config{
			ListenAddr:        cfg.Status.ListenAddr,
			CORSOrigins:       cfg.Status.CORSOrigins,
			RateLimitRequests: cfg.Status.RateLimitRequests,
			RateLimitWindow:   cfg.Status.RateLimitWindow,
		}, statusapi.Deps{
			Status:        a,
			Points:        a.Points,
			Notifications: a.Notifications,
			Broadcasts:    a.Broadcasts,
			Settings:      a.Settings,
		})
		tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Status.ListenAddr).Msg("Status server enabled")
	}

	logging.Info().Msg("Starting supervisor tree...")
	err = <-tree.ServeBackground(ctx)

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Some services did not stop within the shutdown timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Agent stopped")
	return nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.InMemory {
		logging.Info().Msg("Using in-memory store; queued actions will not survive a restart")
		return store.NewMemoryStore(), nil
	}
	s, err := store.OpenBadger(store.BadgerConfig{
		Path:       cfg.Path,
		SyncWrites: cfg.SyncWrites,
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Str("path", cfg.Path).Msg("Device store opened")
	return s, nil
}
