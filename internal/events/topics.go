// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package events

import (
	"time"

	"github.com/tomtom215/mapsync/internal/models"
)

// Topics.
const (
	// TopicServerUnavailable fires when the REST circuit breaker opens or
	// a request fails for connectivity reasons.
	TopicServerUnavailable = "server.unavailable"

	// TopicDebugUpdate carries admin-channel diagnostics
	// (commit-update, clients-update, system-status).
	TopicDebugUpdate = "debug.update"

	// TopicConnectivity fires on every online/offline transition.
	TopicConnectivity = "connectivity.changed"

	// TopicBanner carries the offline/syncing banner state.
	TopicBanner = "banner.changed"

	// TopicPopup fires when the notification reconciler surfaces a popup.
	TopicPopup = "notification.popup"

	// TopicBroadcast fires when the sequencer displays or clears a broadcast.
	TopicBroadcast = "broadcast.changed"
)

// ServerUnavailable is the TopicServerUnavailable payload.
type ServerUnavailable struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// DebugUpdate is the TopicDebugUpdate payload.
type DebugUpdate struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Connectivity is the TopicConnectivity payload.
type Connectivity struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// BannerMode is the visible connectivity banner.
type BannerMode string

const (
	BannerHidden  BannerMode = "hidden"
	BannerOffline BannerMode = "offline"
	BannerSyncing BannerMode = "syncing"
)

// Banner is the TopicBanner payload.
type Banner struct {
	Mode    BannerMode `json:"mode"`
	Pending int        `json:"pending"`
	Text    string     `json:"text"`
}

// BroadcastChanged is the TopicBroadcast payload. Broadcast is nil when
// the displayed broadcast was cleared.
type BroadcastChanged struct {
	Broadcast *models.Broadcast `json:"broadcast"`
}
