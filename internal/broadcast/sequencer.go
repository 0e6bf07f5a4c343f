// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/store"
)

// State is the sequencer lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateDisplaying State = "displaying"
	StateDismissing State = "dismissing"
)

// Source is the server side of broadcasts. *api.Client satisfies it.
type Source interface {
	ActiveBroadcast(ctx context.Context) (*models.Broadcast, error)
	MarkBroadcastRead(ctx context.Context, id int64) error
	DeleteBroadcast(ctx context.Context, id int64) error
}

// Preferences gates fetching. *settings.Service satisfies it.
type Preferences interface {
	RealTimeEnabled() bool
}

// Publisher is the slice of the event bus the sequencer needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Config configures a Sequencer.
type Config struct {
	Source       Source
	Store        store.Store
	Preferences  Preferences // optional; nil means always enabled
	Events       Publisher   // optional
	PollInterval time.Duration
	InitialDelay time.Duration
	SettleDelay  time.Duration
}

// Sequencer shows at most one broadcast at a time and never shows a
// broadcast this device has dismissed.
type Sequencer struct {
	source       Source
	store        store.Store
	prefs        Preferences
	bus          Publisher
	pollInterval time.Duration
	initialDelay time.Duration
	settleDelay  time.Duration

	mu      sync.Mutex
	state   State
	current *models.Broadcast
	seen    map[int64]struct{}
	loaded  bool
	visible bool

	wake      chan struct{} // fetch now
	dismissed chan struct{} // fetch after settleDelay
}

// New creates a Sequencer. The sequencer starts visible.
func New(cfg Config) *Sequencer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	return &Sequencer{
		source:       cfg.Source,
		store:        cfg.Store,
		prefs:        cfg.Preferences,
		bus:          cfg.Events,
		pollInterval: cfg.PollInterval,
		initialDelay: cfg.InitialDelay,
		settleDelay:  cfg.SettleDelay,
		state:        StateIdle,
		seen:         make(map[int64]struct{}),
		visible:      true,
		wake:         make(chan struct{}, 1),
		dismissed:    make(chan struct{}, 1),
	}
}

// LoadSeen reads the persisted seen-set. Corrupt data is treated as empty.
func (s *Sequencer) LoadSeen(ctx context.Context) error {
	var ids []int64
	err := store.GetJSON(ctx, s.store, store.KeySeenBroadcasts, &ids)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		if errors.Is(err, store.ErrClosed) {
			return err
		}
		logging.Warn().Err(err).Msg("[broadcast] Seen-set unreadable, starting empty")
		ids = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	s.loaded = true
	return nil
}

// State returns the lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the displayed broadcast, or nil.
func (s *Sequencer) Current() *models.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Seen returns the dismissed ids in ascending order.
func (s *Sequencer) Seen() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenListLocked()
}

// SetVisible records host visibility. Becoming visible triggers a fetch.
func (s *Sequencer) SetVisible(visible bool) {
	s.mu.Lock()
	was := s.visible
	s.visible = visible
	s.mu.Unlock()

	if visible && !was {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Fetch asks the server for the active broadcast and displays it unless
// it was seen. It does nothing while hidden, while real-time delivery is
// off, or while a broadcast is already displayed or being fetched or
// dismissed.
func (s *Sequencer) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if !s.visible || (s.prefs != nil && !s.prefs.RealTimeEnabled()) || s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFetching
	s.mu.Unlock()

	candidate, err := s.source.ActiveBroadcast(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		metrics.BroadcastFetches.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch active broadcast: %w", err)
	}
	metrics.BroadcastFetches.WithLabelValues("ok").Inc()

	if s.state != StateFetching {
		// Deleted or otherwise reset while the request was in flight.
		s.mu.Unlock()
		return nil
	}
	if candidate == nil {
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.seen[candidate.ID]; ok {
		s.state = StateIdle
		s.mu.Unlock()
		logging.Debug().Int64("id", candidate.ID).Msg("[broadcast] Active broadcast already seen")
		return nil
	}
	s.current = candidate
	s.state = StateDisplaying
	s.mu.Unlock()

	logging.Info().Int64("id", candidate.ID).Str("title", candidate.Title).Msg("[broadcast] Displaying broadcast")
	s.publish(candidate)
	return nil
}

// Dismiss hides the displayed broadcast, records it as seen and
// acknowledges it. Calls while a dismissal is in flight, or with nothing
// displayed, are ignored. A re-fetch follows after the settle delay.
func (s *Sequencer) Dismiss(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisplaying || s.current == nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDismissing
	id := s.current.ID
	s.seen[id] = struct{}{}
	ids := s.seenListLocked()
	s.mu.Unlock()

	if err := store.SetJSON(ctx, s.store, store.KeySeenBroadcasts, ids); err != nil {
		logging.Warn().Err(err).Int64("id", id).Msg("[broadcast] Could not persist seen-set")
	}

	ackErr := s.source.MarkBroadcastRead(ctx, id)
	if ackErr != nil {
		logging.Warn().Err(ackErr).Int64("id", id).Msg("[broadcast] Dismissal not acknowledged")
	}

	s.mu.Lock()
	s.current = nil
	s.state = StateIdle
	s.mu.Unlock()

	metrics.BroadcastDismissals.Inc()
	s.publish(nil)

	select {
	case s.dismissed <- struct{}{}:
	default:
	}
	return ackErr
}

// ClearSeen forgets every dismissal on this device.
func (s *Sequencer) ClearSeen(ctx context.Context) error {
	s.mu.Lock()
	s.seen = make(map[int64]struct{})
	s.mu.Unlock()
	return store.SetJSON(ctx, s.store, store.KeySeenBroadcasts, []int64{})
}

// Delete removes a broadcast server-side and clears it if displayed.
func (s *Sequencer) Delete(ctx context.Context, id int64) error {
	if err := s.source.DeleteBroadcast(ctx, id); err != nil {
		return fmt.Errorf("delete broadcast %d: %w", id, err)
	}

	s.mu.Lock()
	cleared := s.current != nil && s.current.ID == id
	if cleared {
		s.current = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	if cleared {
		s.publish(nil)
	}
	return nil
}

// Serve loads the seen-set and runs the fetch schedule until ctx is done.
func (s *Sequencer) Serve(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		if err := s.LoadSeen(ctx); err != nil {
			return err
		}
	}

	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-initial.C:
			s.fetchLogged(ctx)
		case <-ticker.C:
			s.fetchLogged(ctx)
		case <-s.wake:
			s.fetchLogged(ctx)
		case <-s.dismissed:
			settle.Reset(s.settleDelay)
		case <-settle.C:
			s.fetchLogged(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (s *Sequencer) String() string {
	return "broadcast-sequencer"
}

func (s *Sequencer) fetchLogged(ctx context.Context) {
	if err := s.Fetch(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("[broadcast] Fetch failed")
	}
}

func (s *Sequencer) seenListLocked() []int64 {
	ids := make([]int64, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Sequencer) publish(b *models.Broadcast) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(events.TopicBroadcast, events.BroadcastChanged{Broadcast: b}); err != nil {
		logging.Debug().Err(err).Msg("[broadcast] Could not publish")
	}
}
