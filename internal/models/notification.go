// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

import "time"

// Notification is a per-user message. The server owns ID and Read; the
// client keeps a shadow copy that the next poll overwrites.
type Notification struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	ImageURL *string `json:"image_url,omitempty"`

	// Read is 0 or 1.
	Read      int    `json:"read"`
	CreatedAt string `json:"created_at"`

	// Status is set by feedback_update pushes for feedback-reply notifications.
	Status string `json:"status,omitempty"`

	// ClientReceivedAt is local-only: when this device surfaced the item.
	ClientReceivedAt *time.Time `json:"client_received_at,omitempty"`
}

// IsRead reports whether the notification is marked read.
func (n *Notification) IsRead() bool {
	return n.Read != 0
}

// CreatedTime parses CreatedAt. Both RFC3339 and the server's
// "2006-01-02 15:04:05" form are accepted.
func (n *Notification) CreatedTime() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, n.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NotificationsResponse is the body of GET /push/notifications.
// Items are ordered newest first.
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

// FeedbackUpdate is the payload of a feedback_update push.
type FeedbackUpdate struct {
	ID     int64  `json:"id"`
	Status string `json:"status,omitempty"`
	Read   *int   `json:"read,omitempty"`
}
