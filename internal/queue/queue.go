// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/store"
)

// Dispatcher performs queued actions against the server. *api.Client
// satisfies it.
type Dispatcher interface {
	SubmitPoint(ctx context.Context, p models.NewPoint) (*models.Point, error)
	ConfirmPoint(ctx context.Context, id int64) (*models.Point, error)
	DeactivatePoint(ctx context.Context, id int64) (*models.Point, error)
}

// ReplayResult counts replay outcomes. Unknown action types count as
// neither.
type ReplayResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// ReplayObserver is told when a replay starts and finishes.
type ReplayObserver interface {
	ReplayStarted(pending int)
	ReplayFinished(result ReplayResult)
}

// Queue is the persisted list of mutations waiting for the server. It is
// the only record of work the server has not acknowledged.
type Queue struct {
	store store.Store
	now   func() time.Time

	// mu serializes read-modify-write cycles on the persisted array.
	mu     sync.Mutex
	lastID int64

	replaying atomic.Bool
	observer  ReplayObserver
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithReplayObserver registers o for replay start/finish.
func WithReplayObserver(o ReplayObserver) Option {
	return func(q *Queue) { q.observer = o }
}

// New creates a Queue over st.
func New(st store.Store, opts ...Option) *Queue {
	q := &Queue{store: st, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetReplayObserver replaces the observer. Call it before the first Replay.
func (q *Queue) SetReplayObserver(o ReplayObserver) {
	q.observer = o
}

var validate = validator.New()

// Enqueue appends an action. Ids come from the wall clock in
// milliseconds but never repeat: id = max(nowMillis, lastID+1).
func (q *Queue) Enqueue(ctx context.Context, typ models.ActionType, data any) (models.QueuedAction, error) {
	if !knownType(typ) {
		return models.QueuedAction{}, fmt.Errorf("enqueue: unknown action type %q", typ)
	}
	if err := validate.Struct(data); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return models.QueuedAction{}, fmt.Errorf("enqueue %s: %w", typ, err)
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return models.QueuedAction{}, fmt.Errorf("enqueue %s: encode data: %w", typ, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadLocked(ctx)
	if err != nil {
		return models.QueuedAction{}, err
	}

	now := q.now()
	id := now.UnixMilli()
	last := q.lastID
	for _, it := range items {
		if it.ID > last {
			last = it.ID
		}
	}
	if id <= last {
		id = last + 1
	}
	q.lastID = id

	action := models.QueuedAction{
		ID:        id,
		Type:      typ,
		Data:      raw,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	items = append(items, action)
	if err := q.saveLocked(ctx, items); err != nil {
		return models.QueuedAction{}, err
	}

	metrics.QueueEnqueued.WithLabelValues(string(typ)).Inc()
	logging.Info().Int64("id", id).Str("type", string(typ)).Int("pending", len(items)).Msg("[queue] Action queued for replay")
	return action, nil
}

// Dequeue removes the entry with id. It reports whether one was removed.
func (q *Queue) Dequeue(ctx context.Context, id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	for i, it := range items {
		if it.ID == id {
			items = append(items[:i], items[i+1:]...)
			return true, q.saveLocked(ctx, items)
		}
	}
	return false, nil
}

// List returns the queued actions in enqueue order.
func (q *Queue) List(ctx context.Context) ([]models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

// Len returns the number of queued actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	return len(items), err
}

// Replaying reports whether a replay is in progress.
func (q *Queue) Replaying() bool {
	return q.replaying.Load()
}

// Replay dispatches every queued action in order. Successes are removed,
// failures stay for the next replay, and one failure never stops the
// rest. A Replay already running makes this call return a zero result.
func (q *Queue) Replay(ctx context.Context, d Dispatcher) (ReplayResult, error) {
	if !q.replaying.CompareAndSwap(false, true) {
		logging.Debug().Msg("[queue] Replay already in progress")
		return ReplayResult{}, nil
	}
	defer q.replaying.Store(false)

	items, err := q.List(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	if len(items) == 0 {
		return ReplayResult{}, nil
	}

	start := time.Now()
	if q.observer != nil {
		q.observer.ReplayStarted(len(items))
	}

	var result ReplayResult
	for _, action := range items {
		if ctx.Err() != nil {
			break
		}
		log := logging.Ctx(ctx).With().Int64("id", action.ID).Str("type", string(action.Type)).Logger()

		if !knownType(action.Type) {
			log.Warn().Msg("[queue] Skipping unknown action type")
			metrics.QueueReplayed.WithLabelValues(string(action.Type), "skipped").Inc()
			continue
		}

		if err := dispatch(ctx, d, action); err != nil {
			result.Failed++
			metrics.QueueReplayed.WithLabelValues(string(action.Type), "failed").Inc()
			log.Warn().Err(err).Msg("[queue] Replay failed, keeping action")
			continue
		}

		if _, err := q.Dequeue(ctx, action.ID); err != nil {
			// The server accepted it; it may be sent again next replay.
			log.Error().Err(err).Msg("[queue] Could not remove replayed action")
		}
		result.Synced++
		metrics.QueueReplayed.WithLabelValues(string(action.Type), "synced").Inc()
	}

	metrics.RecordReplay(time.Since(start))
	logging.Info().Int("synced", result.Synced).Int("failed", result.Failed).Msg("[queue] Replay finished")
	if q.observer != nil {
		q.observer.ReplayFinished(result)
	}
	return result, nil
}

func dispatch(ctx context.Context, d Dispatcher, action models.QueuedAction) error {
	switch action.Type {
	case models.ActionSubmitPoint:
		var p models.NewPoint
		if err := action.DecodeData(&p); err != nil {
			return fmt.Errorf("decode submit_point: %w", err)
		}
		_, err := d.SubmitPoint(ctx, p)
		return err
	case models.ActionConfirmPoint:
		var ref models.PointRef
		if err := action.DecodeData(&ref); err != nil {
			return fmt.Errorf("decode confirm_point: %w", err)
		}
		_, err := d.ConfirmPoint(ctx, ref.ID)
		return err
	case models.ActionDeactivatePoint:
		var ref models.PointRef
		if err := action.DecodeData(&ref); err != nil {
			return fmt.Errorf("decode deactivate_point: %w", err)
		}
		_, err := d.DeactivatePoint(ctx, ref.ID)
		return err
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func knownType(t models.ActionType) bool {
	switch t {
	case models.ActionSubmitPoint, models.ActionConfirmPoint, models.ActionDeactivatePoint:
		return true
	}
	return false
}

// loadLocked reads the persisted array. A corrupt value is logged and
// treated as empty rather than wedging every future enqueue.
func (q *Queue) loadLocked(ctx context.Context) ([]models.QueuedAction, error) {
	var items []models.QueuedAction
	err := store.GetJSON(ctx, q.store, store.KeyOfflineQueue, &items)
	switch {
	case err == nil:
		return items, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case errors.Is(err, store.ErrClosed):
		return nil, err
	default:
		logging.Error().Err(err).Msg("[queue] Persisted queue unreadable, starting empty")
		return nil, nil
	}
}

func (q *Queue) saveLocked(ctx context.Context, items []models.QueuedAction) error {
	if items == nil {
		items = []models.QueuedAction{}
	}
	if err := store.SetJSON(ctx, q.store, store.KeyOfflineQueue, items); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}
	metrics.QueueDepth.Set(float64(len(items)))
	return nil
}
