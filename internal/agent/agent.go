// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/broadcast"
	"github.com/tomtom215/mapsync/internal/config"
	"github.com/tomtom215/mapsync/internal/conn"
	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/notify"
	"github.com/tomtom215/mapsync/internal/points"
	"github.com/tomtom215/mapsync/internal/queue"
	"github.com/tomtom215/mapsync/internal/settings"
	"github.com/tomtom215/mapsync/internal/store"
	"github.com/tomtom215/mapsync/internal/supervisor"
	"github.com/tomtom215/mapsync/internal/supervisor/services"
)

// Agent wires the sync components together: socket frames are routed to
// their owners, reachability reports feed the connectivity monitor, and
// regaining connectivity replays the offline queue and reloads state.
type Agent struct {
	Bus           *events.Bus
	Store         store.Store
	API           *api.Client
	Settings      *settings.Service
	Queue         *queue.Queue
	Monitor       *queue.Monitor
	Banner        *queue.Banner
	Notifications *notify.Reconciler
	Broadcasts    *broadcast.Sequencer
	Points        *points.Channel
	PointsSocket  *conn.Manager
	AdminSocket   *conn.Manager // nil unless an admin path is configured

	refresh        chan struct{}
	replayInterval time.Duration
}

// New builds every component from cfg. Nothing runs until the agent is
// attached to a supervisor tree.
func New(cfg *config.Config, st store.Store, bus *events.Bus) (*Agent, error) {
	a := &Agent{
		Bus:     bus,
		Store:   st,
		refresh:        make(chan struct{}, 1),
		replayInterval: cfg.Sync.ReplayInterval,
	}
	if a.replayInterval <= 0 {
		a.replayInterval = 30 * time.Second
	}

	a.Monitor = queue.NewMonitor(bus)

	client, err := api.NewClient(api.Config{
		BaseURL:        cfg.Server.BaseURL,
		UserID:         cfg.Server.UserID,
		Timeout:        cfg.Server.RequestTimeout,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Events:         bus,
		OnReachability: a.Monitor.Report,
	})
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}
	a.API = client

	a.Settings = settings.New(st, cfg.Server.UserID, cfg.Sync.SettingsPollInterval)

	a.Queue = queue.New(st)
	a.Banner = queue.NewBanner(a.Queue, a.Monitor.Online, bus, cfg.Sync.BannerInterval)
	a.Queue.SetReplayObserver(a.Banner)

	a.Notifications = notify.New(notify.Config{
		Source:       client,
		Preferences:  a.Settings,
		Events:       bus,
		PollInterval: cfg.Sync.NotificationPollInterval,
	})

	a.Broadcasts = broadcast.New(broadcast.Config{
		Source:       client,
		Store:        st,
		Preferences:  a.Settings,
		Events:       bus,
		PollInterval: cfg.Sync.BroadcastPollInterval,
		InitialDelay: cfg.Sync.BroadcastInitialDelay,
		SettleDelay:  cfg.Sync.BroadcastSettleDelay,
	})

	a.Points = points.New(client, a.Queue, cfg.Sync.PointStatuses...)

	a.PointsSocket, err = a.newSocket(cfg, "points", cfg.Server.WSPath)
	if err != nil {
		return nil, err
	}
	a.PointsSocket.SetHandler(a.Route)
	a.PointsSocket.SetStateObserver(a.onPointsState)

	if cfg.Server.AdminWSPath != "" {
		a.AdminSocket, err = a.newSocket(cfg, "admin", cfg.Server.AdminWSPath)
		if err != nil {
			return nil, err
		}
		a.AdminSocket.SetHandler(a.Route)
	}

	a.Monitor.OnRegained(a.onRegained)
	return a, nil
}

func (a *Agent) newSocket(cfg *config.Config, channel, path string) (*conn.Manager, error) {
	url, err := conn.DeriveWebSocketURL(cfg.Server.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("%s socket url: %w", channel, err)
	}
	return conn.NewManager(conn.Options{
		Channel:      channel,
		URL:          url,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		Multiplier:   cfg.Reconnect.Multiplier,
	}), nil
}

// Attach adds the agent's services to tree.
func (a *Agent) Attach(tree *supervisor.SupervisorTree) {
	tree.AddStorageService(a.Settings)

	tree.AddSyncService(a.Monitor)
	tree.AddSyncService(a.Banner)
	tree.AddSyncService(a.Notifications)
	tree.AddSyncService(a.Broadcasts)
	tree.AddSyncService(a)
	tree.AddSyncService(services.NewSocketService("points", a.PointsSocket))
	if a.AdminSocket != nil {
		tree.AddSyncService(services.NewSocketService("admin", a.AdminSocket))
	}
}

// Start loads persisted state that the services read on their first tick.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.Settings.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := a.Broadcasts.LoadSeen(ctx); err != nil {
		return fmt.Errorf("load seen broadcasts: %w", err)
	}
	if n, err := a.Queue.Len(ctx); err == nil && n > 0 {
		logging.Info().Int("pending", n).Msg("[agent] Offline queue has pending actions")
	}
	return nil
}

// Route dispatches one inbound frame to its owner.
func (a *Agent) Route(f models.Frame) {
	switch f.Type {
	case models.MessageTypePointAdded, models.MessageTypePointUpdated:
		a.Points.HandleFrame(f)
	case models.MessageTypeFeedbackUpdate:
		u, err := f.FeedbackUpdate()
		if err != nil {
			logging.Warn().Err(err).Msg("[agent] Dropping malformed feedback_update")
			return
		}
		a.Notifications.ApplyFeedbackUpdate(u)
	case models.MessageTypeCommitUpdate, models.MessageTypeClientsUpdate, models.MessageTypeSystemStatus:
		if err := a.Bus.Publish(events.TopicDebugUpdate, events.DebugUpdate{Kind: f.Type, Fields: f.Fields()}); err != nil {
			logging.Debug().Err(err).Str("type", f.Type).Msg("[agent] Could not publish debug update")
		}
	default:
		logging.Debug().Str("type", f.Type).Msg("[agent] Ignoring unknown frame type")
	}
}

func (a *Agent) onPointsState(st conn.State) {
	switch st.Status {
	case conn.StatusConnected:
		a.Monitor.Report(true)
		if st.Reconnected {
			a.kickRefresh()
		}
	case conn.StatusDisconnected:
		if st.LastError != "" {
			a.Monitor.Report(false)
		}
	}
}

// onRegained runs once per offline-to-online transition.
func (a *Agent) onRegained(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	a.replay(ctx)

	if err := a.Points.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("[agent] Point refresh after reconnect failed")
	}
	if err := a.Notifications.Poll(ctx); err != nil {
		logging.Debug().Err(err).Msg("[agent] Notification poll after reconnect failed")
	}
	a.Banner.Refresh(ctx)
	if err := a.PointsSocket.Connect(ctx); err != nil {
		logging.Debug().Err(err).Msg("[agent] Socket kick skipped")
	}
}

// replay sends queued actions through the points channel so replayed
// submissions resolve their temporary entries.
func (a *Agent) replay(ctx context.Context) {
	res, err := a.Queue.Replay(ctx, a.Points.Dispatcher())
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("[agent] Replay failed")
	} else if res.Synced+res.Failed > 0 {
		logging.Ctx(ctx).Info().Int("synced", res.Synced).Int("failed", res.Failed).Msg("[agent] Offline actions replayed")
	}
}

// replayPending replays when the server is believed reachable and the
// queue holds anything. Offline, the regained hook takes over.
func (a *Agent) replayPending(ctx context.Context) {
	if !a.Monitor.Online() || a.Queue.Replaying() {
		return
	}
	n, err := a.Queue.Len(ctx)
	if err != nil || n == 0 {
		return
	}
	a.replay(logging.ContextWithNewCorrelationID(ctx))
	a.Banner.Refresh(ctx)
}

func (a *Agent) kickRefresh() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// Serve replays actions left by an earlier run, loads the point list,
// then reloads it whenever the points socket comes back after a drop.
// While online, queued actions are retried every replay interval.
func (a *Agent) Serve(ctx context.Context) error {
	a.replayPending(ctx)
	if err := a.Points.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("[agent] Initial point load failed")
	}

	ticker := time.NewTicker(a.replayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.refresh:
			if err := a.Points.Refresh(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("[agent] Point refresh after socket reconnect failed")
			}
		case <-ticker.C:
			a.replayPending(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (a *Agent) String() string {
	return "agent"
}
