// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

import "github.com/goccy/go-json"

// ActionType names a mutation that can wait in the offline queue.
type ActionType string

const (
	ActionSubmitPoint     ActionType = "submit_point"
	ActionConfirmPoint    ActionType = "confirm_point"
	ActionDeactivatePoint ActionType = "deactivate_point"
)

// QueuedAction is one pending mutation persisted while offline.
type QueuedAction struct {
	ID        int64           `json:"id"`
	Type      ActionType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// DecodeData unmarshals the action payload into v.
func (a *QueuedAction) DecodeData(v any) error {
	return json.Unmarshal(a.Data, v)
}
