// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mapsync/internal/agent"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/settings"
)

// StatusReporter produces the /status body. *agent.Agent satisfies it.
type StatusReporter interface {
	Status(ctx context.Context) agent.Status
}

// Notifications is the notification surface the routes drive.
type Notifications interface {
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	DismissPopup()
}

// Points is the point surface the routes drive. *points.Channel
// satisfies it.
type Points interface {
	Submit(ctx context.Context, np models.NewPoint) (models.Point, error)
	Confirm(ctx context.Context, id int64) (models.Point, error)
	Deactivate(ctx context.Context, id int64) (models.Point, error)
	Reactivate(ctx context.Context, id int64) (models.Point, error)
}

// Broadcasts is the broadcast surface the routes drive.
type Broadcasts interface {
	Dismiss(ctx context.Context) error
	Delete(ctx context.Context, id int64) error
	ClearSeen(ctx context.Context) error
	SetVisible(visible bool)
}

// Settings is the preference surface the routes drive.
type Settings interface {
	SetNotificationSettings(ctx context.Context, n settings.NotificationSettings) error
	SetRetention(ctx context.Context, r settings.MessageRetention) error
	SetSwipePreferences(ctx context.Context, p settings.SwipePreferences) error
}

// Deps are the components behind the routes.
type Deps struct {
	Status        StatusReporter
	Points        Points
	Notifications Notifications
	Broadcasts    Broadcasts
	Settings      Settings

	// Metrics serves /metrics. Defaults to promhttp.Handler().
	Metrics http.Handler
}

// Config configures the status server.
type Config struct {
	ListenAddr        string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the status API.
func NewRouter(cfg Config, deps Deps) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(correlation)
	r.Use(instrument)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", deps.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/status", h.status)

		r.Post("/points", h.submitPoint)
		r.Post("/points/{id}/confirm", h.pointAction(Points.Confirm))
		r.Post("/points/{id}/deactivate", h.pointAction(Points.Deactivate))
		r.Post("/points/{id}/reactivate", h.pointAction(Points.Reactivate))

		r.Post("/notifications/{id}/read", h.markRead)
		r.Post("/notifications/read-all", h.markAllRead)
		r.Post("/notifications/popup/dismiss", h.dismissPopup)

		r.Post("/broadcast/dismiss", h.dismissBroadcast)
		r.Post("/broadcast/seen/clear", h.clearSeenBroadcasts)
		r.Delete("/broadcast/{id}", h.deleteBroadcast)
		r.Put("/visibility", h.setVisibility)

		r.Put("/settings/notifications", h.setNotificationSettings)
		r.Put("/settings/retention", h.setRetention)
		r.Put("/settings/swipe", h.setSwipePreferences)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})
	return r
}

// NewServer returns an *http.Server for the status API.
func NewServer(cfg Config, deps Deps) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
