// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

// Broadcast is a system-wide message. The server returns at most one
// active candidate per fetch, chosen by priority.
type Broadcast struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Priority  int    `json:"priority"`
}

// ActiveBroadcastResponse is the body of GET /messages/broadcast/active.
type ActiveBroadcastResponse struct {
	Broadcast *Broadcast `json:"broadcast"`
}
