// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
)

// Banner derives the connectivity banner: "Offline Mode" with the live
// pending count while offline, "Syncing N pending..." during replay,
// hidden otherwise. Changes are published on events.TopicBanner.
type Banner struct {
	queue    *Queue
	online   func() bool
	bus      Publisher
	interval time.Duration

	mu      sync.Mutex
	current events.Banner
	syncing int // pending count at replay start, 0 when idle
}

// NewBanner creates a Banner. online reports connectivity, usually
// Monitor.Online.
func NewBanner(q *Queue, online func() bool, bus Publisher, interval time.Duration) *Banner {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Banner{
		queue:    q,
		online:   online,
		bus:      bus,
		interval: interval,
		current:  events.Banner{Mode: events.BannerHidden},
	}
}

// Current returns the last computed banner.
func (b *Banner) Current() events.Banner {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// ReplayStarted implements ReplayObserver.
func (b *Banner) ReplayStarted(pending int) {
	b.mu.Lock()
	b.syncing = pending
	b.mu.Unlock()
	b.Refresh(context.Background())
}

// ReplayFinished implements ReplayObserver.
func (b *Banner) ReplayFinished(ReplayResult) {
	b.mu.Lock()
	b.syncing = 0
	b.mu.Unlock()
	b.Refresh(context.Background())
}

// Refresh recomputes the banner and publishes it if it changed.
func (b *Banner) Refresh(ctx context.Context) {
	b.mu.Lock()
	syncing := b.syncing
	b.mu.Unlock()

	var next events.Banner
	switch {
	case syncing > 0:
		next = events.Banner{Mode: events.BannerSyncing, Pending: syncing, Text: fmt.Sprintf("Syncing %d pending...", syncing)}
	case !b.online():
		pending, err := b.queue.Len(ctx)
		if err != nil {
			logging.Debug().Err(err).Msg("[banner] Could not read queue length")
		}
		next = events.Banner{Mode: events.BannerOffline, Pending: pending, Text: "Offline Mode"}
		if pending > 0 {
			next.Text = fmt.Sprintf("Offline Mode (%d pending)", pending)
		}
	default:
		next = events.Banner{Mode: events.BannerHidden}
	}

	b.mu.Lock()
	changed := next != b.current
	b.current = next
	b.mu.Unlock()

	if changed && b.bus != nil {
		if err := b.bus.Publish(events.TopicBanner, next); err != nil {
			logging.Debug().Err(err).Msg("[banner] Could not publish banner")
		}
	}
}

// Serve recomputes the banner every interval until ctx is done.
func (b *Banner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.Refresh(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (b *Banner) String() string {
	return "offline-banner"
}
