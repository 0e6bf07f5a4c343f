// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/store"
)

// ========================================
// Test doubles
// ========================================

type fakeDispatcher struct {
	mu        sync.Mutex
	calls     []string
	failIDs   map[int64]bool
	block     chan struct{}
	confirmed []int64
}

func (d *fakeDispatcher) record(kind string, id int64) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, kind)
	if d.failIDs[id] {
		return errors.New("server unreachable")
	}
	if kind == "confirm" {
		d.confirmed = append(d.confirmed, id)
	}
	return nil
}

func (d *fakeDispatcher) SubmitPoint(_ context.Context, p models.NewPoint) (*models.Point, error) {
	return nil, d.record("submit", int64(p.Latitude))
}

func (d *fakeDispatcher) ConfirmPoint(_ context.Context, id int64) (*models.Point, error) {
	return nil, d.record("confirm", id)
}

func (d *fakeDispatcher) DeactivatePoint(_ context.Context, id int64) (*models.Point, error) {
	return nil, d.record("deactivate", id)
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

type recordingBus struct {
	mu      sync.Mutex
	banners []events.Banner
	online  []bool
}

func (b *recordingBus) Publish(topic string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch v := payload.(type) {
	case events.Banner:
		b.banners = append(b.banners, v)
	case events.Connectivity:
		b.online = append(b.online, v.Online)
	}
	_ = topic
	return nil
}

// ========================================
// Enqueue / Dequeue
// ========================================

func TestEnqueue_SameMillisecondIDsAreDistinct(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.UnixMilli(1_760_000_000_000)}
	q := New(store.NewMemoryStore(), WithClock(clock.now))

	var ids []int64
	for i := int64(1); i <= 5; i++ {
		a, err := q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: i})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "ids must be strictly increasing: %v", ids)
	}
	assert.Equal(t, int64(1_760_000_000_000), ids[0])
}

func TestEnqueue_IDsContinueAfterRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	clock := &fixedClock{t: time.UnixMilli(5000)}

	first := New(st, WithClock(clock.now))
	a, err := first.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 1})
	require.NoError(t, err)

	// A fresh Queue over the same store, with the clock gone backwards.
	clock.t = time.UnixMilli(4000)
	second := New(st, WithClock(clock.now))
	b, err := second.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 2})
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
}

func TestEnqueue_Validation(t *testing.T) {
	q := New(store.NewMemoryStore())
	_, err := q.Enqueue(context.Background(), "explode_point", models.PointRef{ID: 1})
	assert.Error(t, err)

	_, err = q.Enqueue(context.Background(), models.ActionConfirmPoint, models.PointRef{ID: 0})
	assert.Error(t, err, "a zero point id is never valid")

	_, err = q.Enqueue(context.Background(), models.ActionSubmitPoint, models.NewPoint{Latitude: 120})
	assert.Error(t, err, "latitude out of range")
}

func TestDequeue_RemovesExactlyOne(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStore())
	a, _ := q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 1})
	b, _ := q.Enqueue(ctx, models.ActionDeactivatePoint, models.PointRef{ID: 2})

	removed, err := q.Dequeue(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Dequeue(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)
}

// ========================================
// Replay
// ========================================

func TestReplay_MiddleFailureKeepsOnlyThatItem(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStore())
	_, _ = q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 1})
	failing, _ := q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 2})
	_, _ = q.Enqueue(ctx, models.ActionDeactivatePoint, models.PointRef{ID: 3})

	d := &fakeDispatcher{failIDs: map[int64]bool{2: true}}
	res, err := q.Replay(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Synced: 2, Failed: 1}, res)
	assert.Equal(t, []string{"confirm", "confirm", "deactivate"}, d.calls, "enqueue order")

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, failing.ID, items[0].ID)
}

func TestReplay_PersistedConfirmScenario(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(ctx, store.KeyOfflineQueue,
		[]byte(`[{"id":1,"type":"confirm_point","data":{"id":42},"timestamp":"2026-01-01T00:00:00Z"}]`)))

	d := &fakeDispatcher{}
	res, err := New(st).Replay(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, []int64{42}, d.confirmed)

	raw, err := st.Get(ctx, store.KeyOfflineQueue)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestReplay_UnknownTypeSkippedAndKept(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(ctx, store.KeyOfflineQueue, []byte(`[
		{"id":1,"type":"rename_point","data":{"id":1},"timestamp":"t"},
		{"id":2,"type":"confirm_point","data":{"id":9},"timestamp":"t"}
	]`)))

	q := New(st)
	res, err := q.Replay(ctx, &fakeDispatcher{})
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Synced: 1, Failed: 0}, res)

	items, _ := q.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionType("rename_point"), items[0].Type)
}

func TestReplay_ConcurrentCallReturnsZero(t *testing.T) {
	ctx := context.Background()
	q := New(store.NewMemoryStore())
	_, _ = q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 1})

	d := &fakeDispatcher{block: make(chan struct{})}
	done := make(chan ReplayResult, 1)
	go func() {
		res, _ := q.Replay(ctx, d)
		done <- res
	}()
	require.Eventually(t, q.Replaying, time.Second, 5*time.Millisecond)

	res, err := q.Replay(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{}, res)

	close(d.block)
	assert.Equal(t, ReplayResult{Synced: 1}, <-done)
}

func TestReplay_Empty(t *testing.T) {
	res, err := New(store.NewMemoryStore()).Replay(context.Background(), &fakeDispatcher{})
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{}, res)
}

// ========================================
// Monitor and Banner
// ========================================

func TestMonitor_HooksRunOncePerTransition(t *testing.T) {
	bus := &recordingBus{}
	m := NewMonitor(bus)

	var runs atomic.Int32
	m.OnRegained(func(context.Context) { runs.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Serve(ctx) }()

	m.Report(true) // already online: nothing
	m.Report(false)
	m.Report(false)
	m.Report(true)
	m.Report(true)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, []bool{false, true}, bus.online)
}

func TestBanner_Modes(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	q := New(store.NewMemoryStore())
	online := atomic.Bool{}
	online.Store(true)
	b := NewBanner(q, online.Load, bus, time.Second)

	b.Refresh(ctx)
	assert.Equal(t, events.BannerHidden, b.Current().Mode)

	online.Store(false)
	b.Refresh(ctx)
	assert.Equal(t, events.Banner{Mode: events.BannerOffline, Text: "Offline Mode"}, b.Current())

	_, _ = q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 1})
	_, _ = q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 2})
	b.Refresh(ctx)
	assert.Equal(t, 2, b.Current().Pending)
	assert.Equal(t, "Offline Mode (2 pending)", b.Current().Text)

	b.ReplayStarted(2)
	assert.Equal(t, "Syncing 2 pending...", b.Current().Text)

	online.Store(true)
	b.ReplayFinished(ReplayResult{Synced: 2})
	assert.Equal(t, events.BannerHidden, b.Current().Mode)

	// Unchanged refreshes do not republish.
	n := len(bus.banners)
	b.Refresh(ctx)
	assert.Len(t, bus.banners, n)
}

func TestReplay_NotifiesObserver(t *testing.T) {
	ctx := context.Background()
	online := atomic.Bool{}
	bus := &recordingBus{}
	var q *Queue
	b := NewBanner(nil, online.Load, bus, time.Second)
	q = New(store.NewMemoryStore(), WithReplayObserver(b))
	b.queue = q
	_, _ = q.Enqueue(ctx, models.ActionConfirmPoint, models.PointRef{ID: 7})

	online.Store(true)
	_, err := q.Replay(ctx, &fakeDispatcher{})
	require.NoError(t, err)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.NotEmpty(t, bus.banners)
	assert.Equal(t, events.BannerSyncing, bus.banners[0].Mode)
	assert.Equal(t, events.BannerHidden, bus.banners[len(bus.banners)-1].Mode)
}
