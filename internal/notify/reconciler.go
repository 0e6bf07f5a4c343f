// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/settings"
)

// Source is the server side of notifications. *api.Client satisfies it.
type Source interface {
	ListNotifications(ctx context.Context) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Preferences gates popups and trims the visible list.
// *settings.Service satisfies it.
type Preferences interface {
	RealTimeEnabled() bool
	Retention() settings.MessageRetention
}

// Publisher is the slice of the event bus the reconciler needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Snapshot is the reconciled view. UnreadCount always equals the number
// of unread entries in Notifications.
type Snapshot struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	Popup         *models.Notification  `json:"popup,omitempty"`
	MaxKnownID    int64                 `json:"max_known_id"`
	Initialized   bool                  `json:"initialized"`
}

// Reconciler merges the initial fetch, the periodic poll and pushed
// feedback updates into one list. Only the poll's high-water mark can
// raise a popup; pushes patch in place. Each successful poll replaces the
// list wholesale, so the server's read flags always win.
type Reconciler struct {
	source   Source
	prefs    Preferences
	bus      Publisher
	interval time.Duration
	now      func() time.Time

	// pollMu serializes fetches so an older list never lands after a
	// newer one.
	pollMu sync.Mutex

	mu          sync.Mutex
	items       []models.Notification
	maxKnownID  int64
	popup       *models.Notification
	initialized bool
	observers   []func(Snapshot)
}

// Config configures a Reconciler.
type Config struct {
	Source       Source
	Preferences  Preferences
	Events       Publisher     // optional
	PollInterval time.Duration // default 60s
	Now          func() time.Time
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		source:   cfg.Source,
		prefs:    cfg.Preferences,
		bus:      cfg.Events,
		interval: cfg.PollInterval,
		now:      cfg.Now,
	}
}

// OnChange registers fn to receive a snapshot after every settled change.
func (r *Reconciler) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Init seeds the list and the high-water mark. It never raises a popup.
func (r *Reconciler) Init(ctx context.Context) error {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	list, err := r.source.ListNotifications(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items = list
	r.maxKnownID = newestID(list)
	r.initialized = true
	r.mu.Unlock()

	logging.Info().Int("count", len(list)).Int64("max_known_id", r.maxKnownID).Msg("[notify] Seeded notifications")
	r.changed()
	return nil
}

// Poll re-fetches the list. A failed poll leaves state untouched.
func (r *Reconciler) Poll(ctx context.Context) error {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	list, err := r.source.ListNotifications(ctx)
	if err != nil {
		metrics.NotificationPolls.WithLabelValues("error").Inc()
		return err
	}
	metrics.NotificationPolls.WithLabelValues("ok").Inc()

	var newest *models.Notification
	for i := range list {
		if newest == nil || list[i].ID > newest.ID {
			newest = &list[i]
		}
	}

	r.mu.Lock()
	if !r.initialized {
		// No baseline yet: this poll is the seed.
		r.initialized = true
		r.maxKnownID = newestID(list)
		r.items = list
		r.mu.Unlock()
		r.changed()
		return nil
	}

	received := r.receivedTimes()
	var surfaced *models.Notification
	if newest != nil && newest.ID > r.maxKnownID && !newest.IsRead() && r.realTime() {
		at := r.now().UTC()
		newest.ClientReceivedAt = &at
		cp := *newest
		r.popup = &cp
		surfaced = &cp
	}
	if newest != nil && newest.ID > r.maxKnownID {
		r.maxKnownID = newest.ID
	}

	for i := range list {
		if at, ok := received[list[i].ID]; ok && list[i].ClientReceivedAt == nil {
			list[i].ClientReceivedAt = at
		}
	}
	r.items = list

	if r.popup != nil {
		if cur := r.findLocked(r.popup.ID); cur == nil || cur.IsRead() {
			r.popup = nil
		}
	}
	r.mu.Unlock()

	if surfaced != nil {
		metrics.NotificationPopups.Inc()
		logging.Info().Int64("id", surfaced.ID).Msg("[notify] New notification")
		r.publish(events.TopicPopup, *surfaced)
	}
	r.changed()
	return nil
}

// ApplyFeedbackUpdate patches one item's status or read flag. Unknown ids
// are ignored; it never raises a popup. It reports whether an item changed.
func (r *Reconciler) ApplyFeedbackUpdate(u models.FeedbackUpdate) bool {
	r.mu.Lock()
	item := r.findLocked(u.ID)
	if item == nil {
		r.mu.Unlock()
		logging.Debug().Int64("id", u.ID).Msg("[notify] Feedback update for unknown notification")
		return false
	}
	if u.Status != "" {
		item.Status = u.Status
	}
	if u.Read != nil {
		item.Read = *u.Read
	}
	if r.popup != nil && r.popup.ID == u.ID {
		if item.IsRead() {
			r.popup = nil
		} else {
			r.popup.Status = item.Status
		}
	}
	r.mu.Unlock()

	r.changed()
	return true
}

// MarkAsRead marks id read locally, dismisses it if it is the popup, then
// acknowledges it to the server. Missing or already-read items are a
// no-op. Server errors are returned after the local change; the next
// poll converges.
func (r *Reconciler) MarkAsRead(ctx context.Context, id int64) error {
	r.mu.Lock()
	item := r.findLocked(id)
	if item == nil || item.IsRead() {
		r.mu.Unlock()
		return nil
	}
	item.Read = 1
	if r.popup != nil && r.popup.ID == id {
		r.popup = nil
	}
	r.mu.Unlock()
	r.changed()

	if err := r.source.MarkNotificationRead(ctx, id); err != nil {
		if api.IsNotFound(err) {
			return nil
		}
		logging.Warn().Err(err).Int64("id", id).Msg("[notify] Mark-as-read not acknowledged")
		return err
	}
	return nil
}

// MarkAllAsRead marks everything read locally, then makes one server call.
func (r *Reconciler) MarkAllAsRead(ctx context.Context) error {
	r.mu.Lock()
	for i := range r.items {
		r.items[i].Read = 1
	}
	r.popup = nil
	r.mu.Unlock()
	r.changed()

	if err := r.source.MarkAllNotificationsRead(ctx); err != nil {
		logging.Warn().Err(err).Msg("[notify] Mark-all-as-read not acknowledged")
		return err
	}
	return nil
}

// DismissPopup hides the popup without marking it read.
func (r *Reconciler) DismissPopup() {
	r.mu.Lock()
	had := r.popup != nil
	r.popup = nil
	r.mu.Unlock()
	if had {
		r.changed()
	}
}

// Snapshot returns the visible list. Items older than the retention
// window are hidden (never deleted) and excluded from the unread count.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	var cutoff time.Time
	if r.prefs != nil {
		if w := r.prefs.Retention().Window(); w > 0 {
			cutoff = r.now().Add(-w)
		}
	}

	visible := make([]models.Notification, 0, len(r.items))
	unread := 0
	for _, n := range r.items {
		if !cutoff.IsZero() {
			if created, ok := n.CreatedTime(); ok && created.Before(cutoff) {
				continue
			}
		}
		visible = append(visible, n)
		if !n.IsRead() {
			unread++
		}
	}

	var popup *models.Notification
	if r.popup != nil {
		cp := *r.popup
		popup = &cp
	}
	return Snapshot{
		Notifications: visible,
		UnreadCount:   unread,
		Popup:         popup,
		MaxKnownID:    r.maxKnownID,
		Initialized:   r.initialized,
	}
}

// Serve seeds the list, then polls every interval until ctx is done.
// A failed seed is retried on each tick.
func (r *Reconciler) Serve(ctx context.Context) error {
	if err := r.Init(ctx); err != nil {
		logging.Warn().Err(err).Msg("[notify] Initial fetch failed, will retry on poll")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("[notify] Poll failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (r *Reconciler) String() string {
	return "notification-reconciler"
}

func (r *Reconciler) realTime() bool {
	return r.prefs == nil || r.prefs.RealTimeEnabled()
}

func (r *Reconciler) findLocked(id int64) *models.Notification {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i]
		}
	}
	return nil
}

func (r *Reconciler) receivedTimes() map[int64]*time.Time {
	out := make(map[int64]*time.Time)
	for _, n := range r.items {
		if n.ClientReceivedAt != nil {
			out[n.ID] = n.ClientReceivedAt
		}
	}
	return out
}

// changed updates metrics and notifies observers with a fresh snapshot.
func (r *Reconciler) changed() {
	r.mu.Lock()
	snap := r.snapshotLocked()
	observers := append([]func(Snapshot){}, r.observers...)
	r.mu.Unlock()

	metrics.NotificationsUnread.Set(float64(snap.UnreadCount))
	for _, fn := range observers {
		fn(snap)
	}
}

func (r *Reconciler) publish(topic string, payload any) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(topic, payload); err != nil {
		logging.Debug().Err(err).Str("topic", topic).Msg("[notify] Could not publish")
	}
}

func newestID(list []models.Notification) int64 {
	var maxID int64
	for _, n := range list {
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	return maxID
}
