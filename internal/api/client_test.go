// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/models"
)

// ========================================
// Test helpers
// ========================================

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, handler http.Handler, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL + "/api", UserID: "device-1", Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ========================================
// Endpoints
// ========================================

func TestListPoints_StatusFilter(t *testing.T) {
	var gotStatus string
	r := chi.NewRouter()
	r.Get("/api/points", func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		writeJSON(w, http.StatusOK, models.PointsResponse{Points: []models.Point{
			{ID: 2, Status: models.PointStatusPending},
			{ID: 1, Status: models.PointStatusConfirmed},
		}})
	})
	c := newTestClient(t, r, nil)

	points, err := c.ListPoints(context.Background(), "pending", "confirmed")
	if err != nil {
		t.Fatalf("ListPoints() error = %v", err)
	}
	if gotStatus != "pending,confirmed" {
		t.Errorf("status query = %q", gotStatus)
	}
	if len(points) != 2 || points[0].ID != 2 {
		t.Errorf("points = %+v", points)
	}
}

func TestSubmitPoint_WrappedAndBare(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"wrapped", map[string]any{"point": map[string]any{"id": 77, "status": "pending"}}},
		{"bare", map[string]any{"id": 77, "status": "pending"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent models.NewPoint
			r := chi.NewRouter()
			r.Post("/api/points", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&sent)
				writeJSON(w, http.StatusCreated, tt.body)
			})
			c := newTestClient(t, r, nil)

			p, err := c.SubmitPoint(context.Background(), models.NewPoint{Latitude: 1, Longitude: 2})
			if err != nil {
				t.Fatalf("SubmitPoint() error = %v", err)
			}
			if p == nil || p.ID != 77 {
				t.Fatalf("point = %+v, want id 77", p)
			}
			if sent.UserID != "device-1" {
				t.Errorf("userId not filled in: %+v", sent)
			}
		})
	}
}

func TestPointActions_Paths(t *testing.T) {
	var paths []string
	r := chi.NewRouter()
	r.Post("/api/points/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, chi.URLParam(r, "id")+"/"+chi.URLParam(r, "action"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, nil)
	ctx := context.Background()

	if _, err := c.ConfirmPoint(ctx, 42); err != nil {
		t.Fatalf("ConfirmPoint() error = %v", err)
	}
	if _, err := c.DeactivatePoint(ctx, 42); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}
	if _, err := c.ReactivatePoint(ctx, 42); err != nil {
		t.Fatalf("ReactivatePoint() error = %v", err)
	}
	want := []string{"42/confirm", "42/deactivate", "42/reactivate"}
	for i, w := range want {
		if i >= len(paths) || paths[i] != w {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
}

func TestNotificationsAndBroadcasts(t *testing.T) {
	var readAllBody []byte
	r := chi.NewRouter()
	r.Get("/api/push/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userId") != "device-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, models.NotificationsResponse{Notifications: []models.Notification{{ID: 9}, {ID: 3, Read: 1}}})
	})
	r.Post("/api/push/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		readAllBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/messages/broadcast/active", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"broadcast": nil})
	})
	r.Delete("/api/push/broadcasts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, nil)
	ctx := context.Background()

	list, err := c.ListNotifications(ctx)
	if err != nil || len(list) != 2 || list[0].ID != 9 {
		t.Fatalf("ListNotifications() = %+v, %v", list, err)
	}
	if err := c.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatalf("MarkAllNotificationsRead() error = %v", err)
	}
	if string(readAllBody) != `{"userId":"device-1"}` {
		t.Errorf("read-all body = %s", readAllBody)
	}
	b, err := c.ActiveBroadcast(ctx)
	if err != nil || b != nil {
		t.Errorf("ActiveBroadcast() = %+v, %v; want nil, nil", b, err)
	}
	if err := c.DeleteBroadcast(ctx, 5); err != nil {
		t.Errorf("DeleteBroadcast() error = %v", err)
	}
}

// ========================================
// Error classification
// ========================================

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status       int
		connectivity bool
		notFound     bool
		rejected     bool
	}{
		{http.StatusNotFound, false, true, true},
		{http.StatusConflict, false, false, true},
		{http.StatusUnprocessableEntity, false, false, true},
		{http.StatusTooManyRequests, true, false, false},
		{http.StatusInternalServerError, true, false, false},
		{http.StatusBadGateway, true, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/api/push/notifications/{id}/read", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			})
			c := newTestClient(t, r, nil)

			err := c.MarkNotificationRead(context.Background(), 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsConnectivity(err); got != tt.connectivity {
				t.Errorf("IsConnectivity = %v, want %v (%v)", got, tt.connectivity, err)
			}
			if got := IsNotFound(err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsRejected(err); got != tt.rejected {
				t.Errorf("IsRejected = %v, want %v", got, tt.rejected)
			}
			var he *HTTPError
			if !errors.As(err, &he) || he.Message != "nope" {
				t.Errorf("HTTPError message not extracted: %v", err)
			}
		})
	}
}

func TestUnreachableServerIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	var reach []bool
	c, err := NewClient(Config{
		BaseURL:        base,
		UserID:         "u",
		Timeout:        time.Second,
		OnReachability: func(ok bool) { reach = append(reach, ok) },
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.ListPoints(context.Background())
	if !errors.Is(err, ErrOffline) || !IsConnectivity(err) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
	if len(reach) != 1 || reach[0] {
		t.Errorf("reachability = %v, want [false]", reach)
	}
}

func TestCanceledContextIsNotConnectivity(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/points", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.PointsResponse{})
	})
	c := newTestClient(t, r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListPoints(ctx)
	if err == nil || IsConnectivity(err) {
		t.Errorf("err = %v, want non-connectivity error", err)
	}
}

// ========================================
// Circuit breaker
// ========================================

func TestBreakerOpensOnServerErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/points", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	pub := &recordingPublisher{}
	c := newTestClient(t, r, func(cfg *Config) {
		cfg.Events = pub
		cfg.Breaker = BreakerSettings{MinRequests: 3, FailureRatio: 0.5, OpenTimeout: time.Minute}
	})

	for i := 0; i < 3; i++ {
		_, _ = c.ListPoints(context.Background())
	}
	if c.BreakerState() != "open" {
		t.Fatalf("breaker state = %s, want open", c.BreakerState())
	}
	if pub.count(events.TopicServerUnavailable) != 1 {
		t.Errorf("server.unavailable published %d times, want 1", pub.count(events.TopicServerUnavailable))
	}

	_, err := c.ListPoints(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Errorf("rejected call err = %v, want ErrOffline", err)
	}
}

func TestBreakerIgnoresRejections(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/points", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, r, func(cfg *Config) {
		cfg.Breaker = BreakerSettings{MinRequests: 2, FailureRatio: 0.5}
	})
	for i := 0; i < 5; i++ {
		_, _ = c.ListPoints(context.Background())
	}
	if c.BreakerState() != "closed" {
		t.Errorf("breaker state = %s, want closed", c.BreakerState())
	}
}

func TestNewClient_BadURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "ftp://example.org"}); err == nil {
		t.Error("expected error for non-http base url")
	}
}
