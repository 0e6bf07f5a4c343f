// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"ok", 200, "200"},
		{"rejected", 404, "404"},
		{"no response", 0, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := APIRequestsTotal.WithLabelValues("GET", "/points", tt.wantCode)
			before := testutil.ToFloat64(c)
			RecordAPIRequest("GET", "/points", tt.status, 20*time.Millisecond)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("counter delta = %v, want 1", got)
			}
		})
	}
}

func TestSetChannelConnected(t *testing.T) {
	SetChannelConnected("points", true)
	if v := testutil.ToFloat64(WSConnected.WithLabelValues("points")); v != 1 {
		t.Errorf("connected = %v, want 1", v)
	}
	SetChannelConnected("points", false)
	if v := testutil.ToFloat64(WSConnected.WithLabelValues("points")); v != 0 {
		t.Errorf("connected = %v, want 0", v)
	}
}

func TestSetOnline(t *testing.T) {
	SetOnline(true)
	if v := testutil.ToFloat64(Online); v != 1 {
		t.Errorf("online = %v", v)
	}
	SetOnline(false)
	if v := testutil.ToFloat64(Online); v != 0 {
		t.Errorf("online = %v", v)
	}
}

func TestRecordStatusRequest(t *testing.T) {
	c := StatusRequestsTotal.WithLabelValues("GET", "/status", "200")
	before := testutil.ToFloat64(c)
	RecordStatusRequest("GET", "/status", 200, time.Millisecond)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}
