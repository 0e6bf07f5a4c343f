// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package points

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/queue"
	"github.com/tomtom215/mapsync/internal/store"
)

type fakeSource struct {
	mu       sync.Mutex
	list     []models.Point
	err      error
	nextID   int64
	statuses []string
	calls    []string
	onList   func() // runs while the list request is in flight
}

func (f *fakeSource) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSource) ListPoints(_ context.Context, statuses ...string) ([]models.Point, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
	return append([]models.Point(nil), f.list...), nil
}

func (f *fakeSource) SubmitPoint(_ context.Context, np models.NewPoint) (*models.Point, error) {
	if err := f.record("submit"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &models.Point{ID: 1000 + f.nextID, Latitude: np.Latitude, Longitude: np.Longitude, Status: models.PointStatusPending}, nil
}

func (f *fakeSource) action(name string, id int64, status models.PointStatus) (*models.Point, error) {
	if err := f.record(fmt.Sprintf("%s:%d", name, id)); err != nil {
		return nil, err
	}
	return &models.Point{ID: id, Status: status, Confirmations: 9}, nil
}

func (f *fakeSource) ConfirmPoint(_ context.Context, id int64) (*models.Point, error) {
	return f.action("confirm", id, models.PointStatusConfirmed)
}

func (f *fakeSource) DeactivatePoint(_ context.Context, id int64) (*models.Point, error) {
	return f.action("deactivate", id, models.PointStatusDeactivated)
}

func (f *fakeSource) ReactivatePoint(_ context.Context, id int64) (*models.Point, error) {
	return f.action("reactivate", id, models.PointStatusPending)
}

func ids(ps []models.Point) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func checkIDs(t *testing.T, got []models.Point, want ...int64) {
	t.Helper()
	g := ids(got)
	if fmt.Sprint(g) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", g, want)
	}
}

func newChannel(src *fakeSource) (*Channel, *queue.Queue) {
	q := queue.New(store.NewMemoryStore())
	return New(src, q, "pending", "confirmed"), q
}

func TestApplyAdded_Idempotent(t *testing.T) {
	c, _ := newChannel(&fakeSource{})

	p := models.Point{ID: 1, Latitude: 1, Longitude: 2, Status: models.PointStatusPending}
	if !c.ApplyAdded(p) {
		t.Fatal("first ApplyAdded() = false")
	}
	if c.ApplyAdded(p) {
		t.Error("duplicate ApplyAdded() = true")
	}
	c.ApplyAdded(models.Point{ID: 2})
	checkIDs(t, c.Points(), 2, 1)
}

func TestApplyUpdated_UnknownDropped(t *testing.T) {
	c, _ := newChannel(&fakeSource{})
	c.ApplyAdded(models.Point{ID: 1, Status: models.PointStatusPending})

	if c.ApplyUpdated(models.Point{ID: 2, Status: models.PointStatusConfirmed}) {
		t.Error("update for unknown id applied")
	}
	if !c.ApplyUpdated(models.Point{ID: 1, Status: models.PointStatusConfirmed, Description: "x"}) {
		t.Fatal("update for known id not applied")
	}
	got, _ := c.Get(1)
	if got.Status != models.PointStatusConfirmed || got.Description != "x" {
		t.Errorf("point = %+v, want full replace", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestHandleFrame(t *testing.T) {
	c, _ := newChannel(&fakeSource{})

	for _, raw := range []string{
		`{"type":"point_added","point":{"id":5,"latitude":1,"longitude":1,"status":"pending"}}`,
		`{"type":"point_added","point":{"id":5,"latitude":1,"longitude":1,"status":"pending"}}`,
		`{"type":"point_added","point":"nope"}`,
		`{"type":"point_updated","point":{"id":5,"latitude":1,"longitude":1,"status":"confirmed"}}`,
	} {
		f, err := models.ParseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("ParseFrame(%s) error = %v", raw, err)
		}
		c.HandleFrame(f)
	}

	got, ok := c.Get(5)
	if !ok || got.Status != models.PointStatusConfirmed {
		t.Errorf("Get(5) = %+v, %v", got, ok)
	}
	checkIDs(t, c.Points(), 5)
}

func TestRefresh(t *testing.T) {
	src := &fakeSource{list: []models.Point{{ID: 3}, {ID: 2}}}
	c, _ := newChannel(src)
	c.ApplyAdded(models.Point{ID: 99})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	checkIDs(t, c.Points(), 3, 2)
	if fmt.Sprint(src.statuses) != "[pending confirmed]" {
		t.Errorf("statuses = %v, want default filter", src.statuses)
	}

	src.err = api.ErrOffline
	if err := c.Refresh(context.Background(), "deactivated"); !errors.Is(err, api.ErrOffline) {
		t.Errorf("Refresh() error = %v, want ErrOffline", err)
	}
	checkIDs(t, c.Points(), 3, 2)
}

func TestRefresh_KeepsChangesAppliedInFlight(t *testing.T) {
	src := &fakeSource{list: []models.Point{
		{ID: 1, Status: models.PointStatusPending},
		{ID: 2, Status: models.PointStatusPending},
	}}
	c, _ := newChannel(src)
	c.ApplyAdded(models.Point{ID: 2, Status: models.PointStatusPending})

	src.onList = func() {
		c.ApplyAdded(models.Point{ID: 9, Status: models.PointStatusPending})
		c.ApplyUpdated(models.Point{ID: 2, Status: models.PointStatusConfirmed, Confirmations: 4})
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	checkIDs(t, c.Points(), 9, 1, 2)
	if got, _ := c.Get(2); got.Status != models.PointStatusConfirmed || got.Confirmations != 4 {
		t.Errorf("Get(2) = %+v, want pushed update over fetched copy", got)
	}

	// Changes from an earlier refresh do not leak into the next one.
	src.onList = nil
	src.list = []models.Point{{ID: 1}}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	checkIDs(t, c.Points(), 1)
}

func TestRefresh_FailureKeepsList(t *testing.T) {
	src := &fakeSource{err: api.ErrOffline}
	c, _ := newChannel(src)
	c.ApplyAdded(models.Point{ID: 4})

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil")
	}
	src.err = nil
	src.list = []models.Point{{ID: 5}}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	checkIDs(t, c.Points(), 5)
}

func TestSubmit_Online(t *testing.T) {
	src := &fakeSource{}
	c, _ := newChannel(src)

	p, err := c.Submit(context.Background(), models.NewPoint{Latitude: 10, Longitude: 20})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if p.ID != 1001 {
		t.Errorf("Submit() id = %d, want server id 1001", p.ID)
	}
	checkIDs(t, c.Points(), 1001)
}

func TestSubmit_OfflineQueuesAndReplayResolvesTemp(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: api.ErrOffline}
	c, q := newChannel(src)
	np := models.NewPoint{Latitude: 10, Longitude: 20, Description: "pothole"}

	p, err := c.Submit(ctx, np)
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("Submit() error = %v, want ErrQueued", err)
	}
	if p.ID >= 0 || p.Status != models.PointStatusPending {
		t.Errorf("optimistic point = %+v, want negative pending", p)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("queue len = %d, want 1", n)
	}

	// A refresh while still offline-queued keeps the temporary entry.
	src.err = nil
	src.list = []models.Point{{ID: 7}}
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	checkIDs(t, c.Points(), p.ID, 7)

	res, err := q.Replay(ctx, c.Dispatcher())
	if err != nil || res.Synced != 1 {
		t.Fatalf("Replay() = %+v, %v", res, err)
	}
	checkIDs(t, c.Points(), 1001, 7)
}

func TestSubmit_RejectedRollsBack(t *testing.T) {
	src := &fakeSource{err: &api.HTTPError{Method: http.MethodPost, Path: "/points", StatusCode: http.StatusBadRequest}}
	c, q := newChannel(src)

	_, err := c.Submit(context.Background(), models.NewPoint{Latitude: 1})
	if !api.IsRejected(err) {
		t.Fatalf("Submit() error = %v, want rejection", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after rollback, want 0", c.Len())
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("queue len = %d, want 0", n)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErr    error
		wantStatus models.PointStatus
		wantQueued int
	}{
		{"online", nil, nil, models.PointStatusConfirmed, 0},
		{"offline", api.ErrOffline, ErrQueued, models.PointStatusConfirmed, 1},
		{"rejected", &api.HTTPError{StatusCode: http.StatusForbidden}, nil, models.PointStatusPending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			src := &fakeSource{err: tt.err}
			c, q := newChannel(src)
			c.ApplyAdded(models.Point{ID: 4, Status: models.PointStatusPending})

			_, err := c.Confirm(ctx, 4)
			switch {
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("Confirm() error = %v, want %v", err, tt.wantErr)
			case tt.wantErr == nil && tt.err == nil && err != nil:
				t.Errorf("Confirm() error = %v", err)
			case tt.name == "rejected" && err == nil:
				t.Error("Confirm() error = nil, want rejection")
			}

			got, _ := c.Get(4)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if n, _ := q.Len(ctx); n != tt.wantQueued {
				t.Errorf("queue len = %d, want %d", n, tt.wantQueued)
			}
		})
	}
}

func TestReactivate_OfflineRollsBack(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: api.ErrOffline}
	c, q := newChannel(src)
	c.ApplyAdded(models.Point{ID: 4, Status: models.PointStatusDeactivated})

	if _, err := c.Reactivate(ctx, 4); !errors.Is(err, api.ErrOffline) {
		t.Errorf("Reactivate() error = %v, want ErrOffline", err)
	}
	got, _ := c.Get(4)
	if got.Status != models.PointStatusDeactivated {
		t.Errorf("status = %q, want rollback to deactivated", got.Status)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue len = %d, want 0", n)
	}
}

func TestDeactivate_Online(t *testing.T) {
	src := &fakeSource{}
	c, _ := newChannel(src)
	c.ApplyAdded(models.Point{ID: 8, Status: models.PointStatusConfirmed})

	p, err := c.Deactivate(context.Background(), 8)
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if p.Status != models.PointStatusDeactivated || p.Confirmations != 9 {
		t.Errorf("Deactivate() = %+v, want server copy", p)
	}
}
