// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

import "time"

// PointStatus is the lifecycle state of a map point.
type PointStatus string

const (
	PointStatusPending     PointStatus = "pending"
	PointStatusConfirmed   PointStatus = "confirmed"
	PointStatusDeactivated PointStatus = "deactivated"
)

// Valid reports whether s is a known point status.
func (s PointStatus) Valid() bool {
	switch s {
	case PointStatusPending, PointStatusConfirmed, PointStatusDeactivated:
		return true
	}
	return false
}

// Point is a community-reported map marker as held in the local list.
// Fields beyond id/coordinates/status are carried through untouched so a
// pushed update can fully replace the cached entry.
type Point struct {
	ID            int64       `json:"id"`
	Latitude      float64     `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64     `json:"longitude" validate:"gte=-180,lte=180"`
	Status        PointStatus `json:"status"`
	Type          string      `json:"type,omitempty"`
	Description   string      `json:"description,omitempty"`
	Confirmations int         `json:"confirmations,omitempty"`
	CreatedAt     string      `json:"created_at,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}

// NewPoint is the payload for POST /points.
type NewPoint struct {
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description,omitempty" validate:"max=2000"`
	UserID      string  `json:"userId,omitempty"`
}

// PointRef identifies a point for confirm/deactivate actions.
type PointRef struct {
	ID     int64  `json:"id" validate:"required,gt=0"`
	UserID string `json:"userId,omitempty"`
}

// PointsResponse is the body of GET /points.
type PointsResponse struct {
	Points []Point `json:"points"`
}

// PointResponse is the body returned by the point mutation endpoints.
type PointResponse struct {
	Point *Point `json:"point,omitempty"`
}

// Optimistic builds the locally displayed pending point for a submission
// before the server has assigned an id. Temporary ids are negative so they
// can never collide with server ids.
func (n NewPoint) Optimistic(tempID int64, now time.Time) Point {
	return Point{
		ID:          tempID,
		Latitude:    n.Latitude,
		Longitude:   n.Longitude,
		Status:      PointStatusPending,
		Type:        n.Type,
		Description: n.Description,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}
}
