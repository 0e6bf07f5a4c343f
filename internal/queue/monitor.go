// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// Publisher is the slice of the event bus this package needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Hook runs once per offline-to-online transition.
type Hook func(ctx context.Context)

// Monitor tracks whether the server is reachable. Reports come from the
// REST client and the socket managers; each offline-to-online transition
// runs the registered hooks exactly once, sequentially, on Serve's
// goroutine.
type Monitor struct {
	bus Publisher

	mu     sync.Mutex
	online bool
	hooks  []Hook
	since  time.Time

	regained chan struct{}
}

// NewMonitor starts in the online state; the first failed request flips it.
func NewMonitor(bus Publisher) *Monitor {
	metrics.SetOnline(true)
	return &Monitor{
		bus:      bus,
		online:   true,
		since:    time.Now(),
		regained: make(chan struct{}, 1),
	}
}

// OnRegained registers h for offline-to-online transitions.
func (m *Monitor) OnRegained(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Since returns when the current state began.
func (m *Monitor) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// Report records one observation. Repeated reports of the same state are
// no-ops.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.since = time.Now()
	at := m.since
	m.mu.Unlock()

	metrics.SetOnline(online)
	if online {
		logging.Info().Msg("[connectivity] Back online")
		select {
		case m.regained <- struct{}{}:
		default:
		}
	} else {
		logging.Warn().Msg("[connectivity] Offline")
	}

	if m.bus != nil {
		if err := m.bus.Publish(events.TopicConnectivity, events.Connectivity{Online: online, At: at.UTC()}); err != nil {
			logging.Debug().Err(err).Msg("[connectivity] Could not publish transition")
		}
	}
}

// Serve runs the regained hooks until ctx is done.
func (m *Monitor) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.regained:
			m.mu.Lock()
			hooks := append([]Hook(nil), m.hooks...)
			m.mu.Unlock()
			for _, h := range hooks {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				h(ctx)
			}
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (m *Monitor) String() string {
	return "connectivity-monitor"
}
