// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumentation for the sync agent:
// - REST client latency, outcomes and circuit breaker state
// - WebSocket channel state, reconnects and dropped frames
// - Offline queue depth and replay outcomes
// - Notification and broadcast reconciliation
// - Local status API requests

var (
	// REST client
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_api_requests_total",
			Help: "Total REST requests issued to the map server",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapsync_api_request_duration_seconds",
			Help:    "REST request latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// WebSocket channels
	WSConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapsync_websocket_connected",
			Help: "1 when the channel socket is open",
		},
		[]string{"channel"},
	)

	WSRetryDelay = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapsync_websocket_retry_delay_seconds",
			Help: "Delay before the next reconnect attempt",
		},
		[]string{"channel"},
	)

	WSReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_websocket_reconnects_total",
			Help: "Reconnect attempts scheduled after an unclean close",
		},
		[]string{"channel"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_websocket_messages_received_total",
			Help: "Frames received, by frame type",
		},
		[]string{"channel", "type"},
	)

	WSMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_websocket_messages_dropped_total",
			Help: "Frames dropped because they could not be decoded",
		},
		[]string{"channel"},
	)

	// Offline queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_offline_queue_depth",
			Help: "Actions waiting in the offline queue",
		},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_offline_queue_enqueued_total",
			Help: "Actions added to the offline queue",
		},
		[]string{"type"},
	)

	QueueReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_offline_queue_replayed_total",
			Help: "Replayed actions by outcome",
		},
		[]string{"type", "result"}, // synced, failed, skipped
	)

	QueueReplayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mapsync_offline_queue_replay_duration_seconds",
			Help:    "Duration of a full queue replay",
			Buckets: prometheus.DefBuckets,
		},
	)

	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_online",
			Help: "1 when the agent considers the server reachable",
		},
	)

	// Notifications
	NotificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_notifications_unread",
			Help: "Unread notifications in the local list",
		},
	)

	NotificationPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_notification_polls_total",
			Help: "Notification polls by outcome",
		},
		[]string{"result"},
	)

	NotificationPopups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapsync_notification_popups_total",
			Help: "New-message popups surfaced",
		},
	)

	// Broadcasts
	BroadcastFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_broadcast_fetches_total",
			Help: "Active-broadcast fetches by outcome",
		},
		[]string{"result"}, // displayed, seen, empty, skipped, error
	)

	BroadcastDismissals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mapsync_broadcast_dismissals_total",
			Help: "Broadcasts dismissed on this device",
		},
	)

	// Points
	PointsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_points_cached",
			Help: "Points in the local list",
		},
	)

	PointEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_point_events_total",
			Help: "Pushed point events by kind and outcome",
		},
		[]string{"kind", "result"}, // kind: added, updated; result: applied, ignored
	)

	// Local status API
	StatusRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_status_http_requests_total",
			Help: "Requests served by the local status API",
		},
		[]string{"method", "route", "status"},
	)

	StatusRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapsync_status_http_request_duration_seconds",
			Help:    "Status API latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records one REST call. status is the HTTP code, or 0
// when no response arrived.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetChannelConnected flips the per-channel connected gauge.
func SetChannelConnected(channel string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	WSConnected.WithLabelValues(channel).Set(v)
}

// SetOnline flips the connectivity gauge.
func SetOnline(online bool) {
	if online {
		Online.Set(1)
	} else {
		Online.Set(0)
	}
}

// RecordReplay records the outcome of a full queue replay.
func RecordReplay(duration time.Duration) {
	QueueReplayDuration.Observe(duration.Seconds())
}

// RecordStatusRequest records one local status API request.
func RecordStatusRequest(method, route string, status int, duration time.Duration) {
	StatusRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	StatusRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
