// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package conn

import "time"

// Status is the channel's connection status.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// State is a snapshot of one channel.
type State struct {
	Channel    string        `json:"channel"`
	Status     Status        `json:"status"`
	RetryDelay time.Duration `json:"retry_delay"`
	LastError  string        `json:"last_error,omitempty"`

	// Reconnected is true on a connected transition that follows an
	// unclean close, i.e. events may have been missed.
	Reconnected bool `json:"reconnected,omitempty"`
}
