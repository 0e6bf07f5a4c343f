// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/store"
)

// NotificationSettings is the per-user delivery preference.
type NotificationSettings struct {
	// RealTime gates new-message popups and broadcast delivery.
	RealTime bool `json:"realTime"`
}

// MessageRetention hides notifications older than Days from the list.
// Zero keeps everything.
type MessageRetention struct {
	Days int `json:"days" validate:"gte=0,lte=3650"`
}

// Window returns the retention period, or 0 for "keep all".
func (r MessageRetention) Window() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

// SwipePreferences configures list swipe gestures for a UI shell.
type SwipePreferences struct {
	Enabled     bool   `json:"enabled"`
	LeftAction  string `json:"leftAction" validate:"omitempty,oneof=read delete none"`
	RightAction string `json:"rightAction" validate:"omitempty,oneof=read delete none"`
}

// Snapshot is every preference at one point in time.
type Snapshot struct {
	Notifications NotificationSettings `json:"notifications"`
	Retention     MessageRetention     `json:"retention"`
	Swipe         SwipePreferences     `json:"swipe"`
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Snapshot {
	return Snapshot{
		Notifications: NotificationSettings{RealTime: true},
		Swipe:         SwipePreferences{Enabled: true, LeftAction: "delete", RightAction: "read"},
	}
}

var validate = validator.New()

// Service caches device preferences and keeps them in step with the
// store. Writes from other processes sharing the store arrive through the
// store's change feed; a fallback poll catches anything the feed misses.
type Service struct {
	store        store.Store
	userID       string
	pollInterval time.Duration

	mu        sync.RWMutex
	current   Snapshot
	observers []func(Snapshot)
}

// New creates a Service for userID. Call Load before use.
func New(s store.Store, userID string, pollInterval time.Duration) *Service {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Service{
		store:        s,
		userID:       userID,
		pollInterval: pollInterval,
		current:      Defaults(),
	}
}

func (s *Service) notificationKey() string {
	return store.NotificationSettingsKey(s.userID)
}

// Load reads every preference from the store. Missing keys keep their
// defaults; an undecodable value is logged and ignored.
func (s *Service) Load(ctx context.Context) error {
	next := Defaults()
	if err := load(ctx, s.store, s.notificationKey(), &next.Notifications); err != nil {
		return err
	}
	if err := load(ctx, s.store, store.KeyMessageRetention, &next.Retention); err != nil {
		return err
	}
	if err := load(ctx, s.store, store.KeySwipePreferences, &next.Swipe); err != nil {
		return err
	}
	s.apply(next)
	return nil
}

func load(ctx context.Context, st store.Store, key string, v any) error {
	err := store.GetJSON(ctx, st, key, v)
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, store.ErrClosed):
		return err
	default:
		logging.Warn().Err(err).Str("key", key).Msg("[settings] Ignoring unreadable preference")
		return nil
	}
}

// apply swaps in next and notifies observers when anything changed.
func (s *Service) apply(next Snapshot) {
	s.mu.Lock()
	if next == s.current {
		s.mu.Unlock()
		return
	}
	s.current = next
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}

// Snapshot returns the cached preferences.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// RealTimeEnabled reports the notification realTime flag.
func (s *Service) RealTimeEnabled() bool {
	return s.Snapshot().Notifications.RealTime
}

// Retention returns the message retention preference.
func (s *Service) Retention() MessageRetention {
	return s.Snapshot().Retention
}

// OnChange registers fn for every preference change.
func (s *Service) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SetNotificationSettings persists and applies n.
func (s *Service) SetNotificationSettings(ctx context.Context, n NotificationSettings) error {
	if err := store.SetJSON(ctx, s.store, s.notificationKey(), n); err != nil {
		return fmt.Errorf("save notification settings: %w", err)
	}
	next := s.Snapshot()
	next.Notifications = n
	s.apply(next)
	return nil
}

// SetRetention validates, persists and applies r.
func (s *Service) SetRetention(ctx context.Context, r MessageRetention) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}
	if err := store.SetJSON(ctx, s.store, store.KeyMessageRetention, r); err != nil {
		return fmt.Errorf("save retention: %w", err)
	}
	next := s.Snapshot()
	next.Retention = r
	s.apply(next)
	return nil
}

// SetSwipePreferences validates, persists and applies p.
func (s *Service) SetSwipePreferences(ctx context.Context, p SwipePreferences) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid swipe preferences: %w", err)
	}
	if err := store.SetJSON(ctx, s.store, store.KeySwipePreferences, p); err != nil {
		return fmt.Errorf("save swipe preferences: %w", err)
	}
	next := s.Snapshot()
	next.Swipe = p
	s.apply(next)
	return nil
}

// Serve keeps the cache current until ctx is done: it reloads on every
// store change notification and on each poll tick.
func (s *Service) Serve(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	notify := func(store.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	for _, key := range []string{s.notificationKey(), store.KeyMessageRetention, store.KeySwipePreferences} {
		cancel := s.store.Subscribe(key, notify)
		defer cancel()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
		if err := s.Load(ctx); err != nil {
			if errors.Is(err, store.ErrClosed) {
				return err
			}
			logging.Warn().Err(err).Msg("[settings] Reload failed")
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (s *Service) String() string {
	return "settings-watcher"
}
