// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/models"
)

type userBody struct {
	UserID string `json:"userId,omitempty"`
}

// ListPoints fetches GET /points, filtered by status when any are given.
func (c *Client) ListPoints(ctx context.Context, statuses ...string) ([]models.Point, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	var out models.PointsResponse
	err := c.do(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/points",
		route:  "/points",
		query:  query,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Points, nil
}

// SubmitPoint creates a point. The returned point carries the server id.
func (c *Client) SubmitPoint(ctx context.Context, p models.NewPoint) (*models.Point, error) {
	if p.UserID == "" {
		p.UserID = c.userID
	}
	var raw json.RawMessage
	err := c.do(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/points",
		route:  "/points",
		body:   p,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodePoint(raw)
}

// ConfirmPoint calls POST /points/:id/confirm.
func (c *Client) ConfirmPoint(ctx context.Context, id int64) (*models.Point, error) {
	return c.pointAction(ctx, id, "confirm")
}

// DeactivatePoint calls POST /points/:id/deactivate.
func (c *Client) DeactivatePoint(ctx context.Context, id int64) (*models.Point, error) {
	return c.pointAction(ctx, id, "deactivate")
}

// ReactivatePoint calls POST /points/:id/reactivate.
func (c *Client) ReactivatePoint(ctx context.Context, id int64) (*models.Point, error) {
	return c.pointAction(ctx, id, "reactivate")
}

func (c *Client) pointAction(ctx context.Context, id int64, action string) (*models.Point, error) {
	var raw json.RawMessage
	err := c.do(ctx, requestConfig{
		method: http.MethodPost,
		path:   fmt.Sprintf("/points/%d/%s", id, action),
		route:  "/points/:id/" + action,
		body:   userBody{UserID: c.userID},
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodePoint(raw)
}

// decodePoint accepts {point: {...}} or a bare point. An empty or
// point-less body yields nil without error.
func decodePoint(raw json.RawMessage) (*models.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wrapped models.PointResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode point: %w", err)
	}
	if wrapped.Point != nil {
		return wrapped.Point, nil
	}
	var p models.Point
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode point: %w", err)
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

// ListNotifications fetches the user's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	var out models.NotificationsResponse
	err := c.do(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/push/notifications",
		route:  "/push/notifications",
		query:  url.Values{"userId": {c.userID}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// MarkNotificationRead acknowledges one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/push/notifications/" + strconv.FormatInt(id, 10) + "/read",
		route:  "/push/notifications/:id/read",
		body:   userBody{UserID: c.userID},
	}, nil)
}

// MarkAllNotificationsRead acknowledges every notification for the user.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/push/notifications/read-all",
		route:  "/push/notifications/read-all",
		body:   userBody{UserID: c.userID},
	}, nil)
}

// ActiveBroadcast returns the server's current candidate, or nil.
func (c *Client) ActiveBroadcast(ctx context.Context) (*models.Broadcast, error) {
	var out models.ActiveBroadcastResponse
	err := c.do(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/messages/broadcast/active",
		route:  "/messages/broadcast/active",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Broadcast, nil
}

// MarkBroadcastRead tells the server this device is done with id, so the
// next active fetch rotates to the next candidate.
func (c *Client) MarkBroadcastRead(ctx context.Context, id int64) error {
	return c.do(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/push/broadcasts/" + strconv.FormatInt(id, 10) + "/read",
		route:  "/push/broadcasts/:id/read",
		body:   userBody{UserID: c.userID},
	}, nil)
}

// DeleteBroadcast removes a broadcast (admin).
func (c *Client) DeleteBroadcast(ctx context.Context, id int64) error {
	return c.do(ctx, requestConfig{
		method: http.MethodDelete,
		path:   "/push/broadcasts/" + strconv.FormatInt(id, 10),
		route:  "/push/broadcasts/:id",
	}, nil)
}
