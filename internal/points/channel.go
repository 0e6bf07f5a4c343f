// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package points

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/queue"
)

// ErrQueued is returned by a mutation that could not reach the server and
// was stored for replay. The optimistic change stays applied.
var ErrQueued = errors.New("points: action queued for replay")

// Source is the points REST surface. *api.Client satisfies it.
type Source interface {
	ListPoints(ctx context.Context, statuses ...string) ([]models.Point, error)
	SubmitPoint(ctx context.Context, p models.NewPoint) (*models.Point, error)
	ConfirmPoint(ctx context.Context, id int64) (*models.Point, error)
	DeactivatePoint(ctx context.Context, id int64) (*models.Point, error)
	ReactivatePoint(ctx context.Context, id int64) (*models.Point, error)
}

// Enqueuer stores an action for later replay. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ models.ActionType, data any) (models.QueuedAction, error)
}

// Channel holds the live point list. Pushed frames, REST refreshes and
// local optimistic mutations all converge on it.
type Channel struct {
	source   Source
	queue    Enqueuer
	statuses []string
	now      func() time.Time

	mu       sync.Mutex
	points   []models.Point
	nextTemp int64
	pending  map[int64]models.NewPoint // temp id -> queued or in-flight submission

	// Changes applied while a Refresh is in flight. They are newer than
	// the fetched list and are merged over it.
	refreshing int
	gen        uint64
	touched    map[int64]touch
}

type touch struct {
	p     models.Point
	gen   uint64
	added bool
}

// New creates a Channel. statuses is the default Refresh filter.
func New(source Source, q Enqueuer, statuses ...string) *Channel {
	return &Channel{
		source:   source,
		queue:    q,
		statuses: statuses,
		now:      time.Now,
		pending:  make(map[int64]models.NewPoint),
		touched:  make(map[int64]touch),
	}
}

// Points returns a copy of the list, newest first.
func (c *Channel) Points() []models.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Point(nil), c.points...)
}

// Len returns the number of points held.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.points)
}

// Get returns the point with id.
func (c *Channel) Get(id int64) (models.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.points[i], true
	}
	return models.Point{}, false
}

// HandleFrame applies a point_added or point_updated frame. Malformed
// frames are dropped.
func (c *Channel) HandleFrame(f models.Frame) {
	p, err := f.Point()
	if err != nil {
		logging.Warn().Err(err).Str("type", f.Type).Msg("[points] Dropping malformed frame")
		return
	}
	switch f.Type {
	case models.MessageTypePointAdded:
		c.ApplyAdded(p)
	case models.MessageTypePointUpdated:
		c.ApplyUpdated(p)
	}
}

// ApplyAdded inserts p at the head unless its id is already present.
func (c *Channel) ApplyAdded(p models.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexLocked(p.ID) >= 0 {
		metrics.PointEvents.WithLabelValues("added", "ignored").Inc()
		return false
	}
	c.points = append([]models.Point{p}, c.points...)
	c.touchLocked(p, true)
	metrics.PointEvents.WithLabelValues("added", "applied").Inc()
	metrics.PointsCached.Set(float64(len(c.points)))
	return true
}

// ApplyUpdated replaces the point with p's id. Unknown ids are dropped.
func (c *Channel) ApplyUpdated(p models.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(p.ID)
	if i < 0 {
		metrics.PointEvents.WithLabelValues("updated", "ignored").Inc()
		return false
	}
	c.points[i] = p
	c.touchLocked(p, false)
	metrics.PointEvents.WithLabelValues("updated", "applied").Inc()
	return true
}

// Refresh replaces the list with the server's. With no statuses the
// default filter applies. Pending optimistic submissions are kept at the
// head, and pushes or local changes applied while the request was in
// flight win over the fetched copy.
func (c *Channel) Refresh(ctx context.Context, statuses ...string) error {
	if len(statuses) == 0 {
		statuses = c.statuses
	}
	c.mu.Lock()
	c.refreshing++
	startGen := c.gen
	c.mu.Unlock()

	list, err := c.source.ListPoints(ctx, statuses...)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endRefreshLocked()
	if err != nil {
		return fmt.Errorf("refresh points: %w", err)
	}

	var added []touch
	byID := make(map[int64]int, len(list))
	for i, p := range list {
		byID[p.ID] = i
	}
	for id, t := range c.touched {
		if t.gen <= startGen {
			continue
		}
		if i, ok := byID[id]; ok {
			list[i] = t.p
		} else if t.added {
			added = append(added, t)
		}
	}
	slices.SortFunc(added, func(a, b touch) int { return cmp.Compare(b.gen, a.gen) })

	next := make([]models.Point, 0, len(list)+len(added)+len(c.pending))
	for _, p := range c.points {
		if _, ok := c.pending[p.ID]; ok {
			next = append(next, p)
		}
	}
	for _, t := range added {
		next = append(next, t.p)
	}
	c.points = append(next, list...)

	metrics.PointsCached.Set(float64(len(c.points)))
	logging.Debug().Int("count", len(list)).Int("merged", len(added)).Strs("statuses", statuses).Msg("[points] Refreshed")
	return nil
}

func (c *Channel) touchLocked(p models.Point, added bool) {
	if c.refreshing == 0 {
		return
	}
	c.gen++
	if prev, ok := c.touched[p.ID]; ok && prev.added {
		added = true
	}
	c.touched[p.ID] = touch{p: p, gen: c.gen, added: added}
}

func (c *Channel) endRefreshLocked() {
	c.refreshing--
	if c.refreshing == 0 {
		clear(c.touched)
	}
}

// Submit shows np immediately under a negative temporary id and posts it.
// On success the temporary entry becomes the server's point. When the
// server is unreachable the submission is queued and ErrQueued returned
// with the optimistic point; any other failure removes it.
func (c *Channel) Submit(ctx context.Context, np models.NewPoint) (models.Point, error) {
	c.mu.Lock()
	c.nextTemp--
	tempID := c.nextTemp
	optimistic := np.Optimistic(tempID, c.now())
	c.points = append([]models.Point{optimistic}, c.points...)
	c.pending[tempID] = np
	c.mu.Unlock()

	created, err := c.source.SubmitPoint(ctx, np)
	if err == nil {
		if created == nil {
			return optimistic, nil
		}
		c.resolveTemp(tempID, *created)
		return *created, nil
	}

	if api.IsConnectivity(err) {
		if _, qerr := c.queue.Enqueue(ctx, models.ActionSubmitPoint, np); qerr != nil {
			c.dropTemp(tempID)
			return models.Point{}, errors.Join(err, qerr)
		}
		logging.Info().Int64("temp_id", tempID).Msg("[points] Offline, submission queued")
		return optimistic, ErrQueued
	}

	c.dropTemp(tempID)
	return models.Point{}, err
}

// Confirm marks id confirmed locally and on the server.
func (c *Channel) Confirm(ctx context.Context, id int64) (models.Point, error) {
	return c.mutate(ctx, id, models.ActionConfirmPoint, c.source.ConfirmPoint, func(p *models.Point) {
		p.Status = models.PointStatusConfirmed
		p.Confirmations++
	})
}

// Deactivate marks id deactivated locally and on the server.
func (c *Channel) Deactivate(ctx context.Context, id int64) (models.Point, error) {
	return c.mutate(ctx, id, models.ActionDeactivatePoint, c.source.DeactivatePoint, func(p *models.Point) {
		p.Status = models.PointStatusDeactivated
	})
}

// Reactivate returns a deactivated point to pending. It is never queued;
// an unreachable server rolls it back like any other failure.
func (c *Channel) Reactivate(ctx context.Context, id int64) (models.Point, error) {
	return c.mutate(ctx, id, "", c.source.ReactivatePoint, func(p *models.Point) {
		p.Status = models.PointStatusPending
	})
}

type remoteAction func(ctx context.Context, id int64) (*models.Point, error)

func (c *Channel) mutate(ctx context.Context, id int64, queued models.ActionType, call remoteAction, apply func(*models.Point)) (models.Point, error) {
	c.mu.Lock()
	var (
		prev  models.Point
		found bool
		local models.Point
	)
	if i := c.indexLocked(id); i >= 0 {
		prev, found = c.points[i], true
		apply(&c.points[i])
		local = c.points[i]
		c.touchLocked(local, false)
	}
	c.mu.Unlock()

	updated, err := call(ctx, id)
	if err == nil {
		if updated != nil {
			c.ApplyUpdated(*updated)
			return *updated, nil
		}
		return local, nil
	}

	if queued != "" && api.IsConnectivity(err) {
		_, qerr := c.queue.Enqueue(ctx, queued, models.PointRef{ID: id})
		if qerr == nil {
			logging.Info().Int64("id", id).Str("action", string(queued)).Msg("[points] Offline, action queued")
			return local, ErrQueued
		}
		err = errors.Join(err, qerr)
	}

	if found {
		c.mu.Lock()
		if i := c.indexLocked(id); i >= 0 {
			c.points[i] = prev
			c.touchLocked(prev, false)
		}
		c.mu.Unlock()
	}
	return models.Point{}, err
}

// Dispatcher returns a queue.Dispatcher that replays through the server
// and folds results back into the list, replacing temporary entries.
func (c *Channel) Dispatcher() queue.Dispatcher {
	return replayDispatcher{c: c}
}

type replayDispatcher struct{ c *Channel }

func (d replayDispatcher) SubmitPoint(ctx context.Context, np models.NewPoint) (*models.Point, error) {
	created, err := d.c.source.SubmitPoint(ctx, np)
	if err != nil || created == nil {
		return created, err
	}
	d.c.mu.Lock()
	tempID := int64(0)
	for id, pending := range d.c.pending {
		if pending == np && (tempID == 0 || id > tempID) {
			tempID = id
		}
	}
	d.c.mu.Unlock()
	if tempID != 0 {
		d.c.resolveTemp(tempID, *created)
	} else {
		d.c.ApplyAdded(*created)
	}
	return created, nil
}

func (d replayDispatcher) ConfirmPoint(ctx context.Context, id int64) (*models.Point, error) {
	return d.apply(d.c.source.ConfirmPoint(ctx, id))
}

func (d replayDispatcher) DeactivatePoint(ctx context.Context, id int64) (*models.Point, error) {
	return d.apply(d.c.source.DeactivatePoint(ctx, id))
}

func (d replayDispatcher) apply(p *models.Point, err error) (*models.Point, error) {
	if err == nil && p != nil {
		d.c.ApplyUpdated(*p)
	}
	return p, err
}

// resolveTemp swaps a temporary entry for the server's point. If a push
// already delivered the real point, the temporary entry is just removed.
func (c *Channel) resolveTemp(tempID int64, real models.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tempID)
	ti := c.indexLocked(tempID)
	if c.indexLocked(real.ID) >= 0 {
		if ti >= 0 {
			c.points = append(c.points[:ti], c.points[ti+1:]...)
		}
	} else if ti >= 0 {
		c.points[ti] = real
		c.touchLocked(real, true)
	} else {
		c.points = append([]models.Point{real}, c.points...)
		c.touchLocked(real, true)
	}
	metrics.PointsCached.Set(float64(len(c.points)))
}

func (c *Channel) dropTemp(tempID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tempID)
	if i := c.indexLocked(tempID); i >= 0 {
		c.points = append(c.points[:i], c.points[i+1:]...)
	}
}

func (c *Channel) indexLocked(id int64) int {
	for i := range c.points {
		if c.points[i].ID == id {
			return i
		}
	}
	return -1
}
