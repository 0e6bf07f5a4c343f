// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package agent

import (
	"context"
	"time"

	"github.com/tomtom215/mapsync/internal/broadcast"
	"github.com/tomtom215/mapsync/internal/conn"
	"github.com/tomtom215/mapsync/internal/events"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/settings"
)

// Status is a point-in-time view of the whole agent.
type Status struct {
	Online      bool         `json:"online"`
	OnlineSince time.Time    `json:"online_since"`
	Breaker     string       `json:"breaker"`
	Channels    []conn.State `json:"channels"`

	Queue         QueueStatus        `json:"queue"`
	Banner        events.Banner      `json:"banner"`
	Notifications NotificationStatus `json:"notifications"`
	Broadcast     BroadcastStatus    `json:"broadcast"`
	Points        int                `json:"points"`
	Settings      settings.Snapshot  `json:"settings"`
}

// QueueStatus summarizes the offline queue.
type QueueStatus struct {
	Length    int  `json:"length"`
	Replaying bool `json:"replaying"`
}

// NotificationStatus summarizes the reconciled notification list.
type NotificationStatus struct {
	Total  int                  `json:"total"`
	Unread int                  `json:"unread"`
	Popup  *models.Notification `json:"popup,omitempty"`
}

// BroadcastStatus is the sequencer's state and displayed broadcast.
type BroadcastStatus struct {
	State   broadcast.State   `json:"state"`
	Current *models.Broadcast `json:"current,omitempty"`
}

// Status collects the current state of every component.
func (a *Agent) Status(ctx context.Context) Status {
	channels := []conn.State{a.PointsSocket.State()}
	if a.AdminSocket != nil {
		channels = append(channels, a.AdminSocket.State())
	}

	qlen, err := a.Queue.Len(ctx)
	if err != nil {
		logging.Debug().Err(err).Msg("[agent] Could not read queue length")
	}

	snap := a.Notifications.Snapshot()
	return Status{
		Online:      a.Monitor.Online(),
		OnlineSince: a.Monitor.Since().UTC(),
		Breaker:     a.API.BreakerState(),
		Channels:    channels,
		Queue:       QueueStatus{Length: qlen, Replaying: a.Queue.Replaying()},
		Banner:      a.Banner.Current(),
		Notifications: NotificationStatus{
			Total:  len(snap.Notifications),
			Unread: snap.UnreadCount,
			Popup:  snap.Popup,
		},
		Broadcast: BroadcastStatus{
			State:   a.Broadcasts.State(),
			Current: a.Broadcasts.Current(),
		},
		Points:   a.Points.Len(),
		Settings: a.Settings.Snapshot(),
	}
}
