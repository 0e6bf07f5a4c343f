// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

import (
	"errors"

	"github.com/goccy/go-json"
)

// Inbound WebSocket frame types.
const (
	MessageTypePointAdded     = "point_added"
	MessageTypePointUpdated   = "point_updated"
	MessageTypeFeedbackUpdate = "feedback_update"
	MessageTypeCommitUpdate   = "commit-update"
	MessageTypeClientsUpdate  = "clients-update"
	MessageTypeSystemStatus   = "system-status"
)

// ErrMissingPayload is returned when a frame carries no usable body.
var ErrMissingPayload = errors.New("frame has no payload")

// Frame is a decoded inbound WebSocket message: {type, ...payload}.
// Raw keeps the whole frame so typed payloads can be pulled out lazily.
type Frame struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// ParseFrame decodes a JSON frame. The type field is required.
func ParseFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, err
	}
	if head.Type == "" {
		return Frame{}, errors.New("frame has no type")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Frame{Type: head.Type, Raw: raw}, nil
}

// payload returns the nested object under one of keys, or the frame
// itself when the payload is flattened into the top level.
func (f Frame) payload(keys ...string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f.Raw, &fields); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if v, ok := fields[k]; ok && len(v) > 0 && string(v) != "null" {
			return v, nil
		}
	}
	if _, ok := fields["id"]; ok {
		return f.Raw, nil
	}
	return nil, ErrMissingPayload
}

// Point extracts the point carried by point_added / point_updated.
func (f Frame) Point() (Point, error) {
	raw, err := f.payload("point", "data")
	if err != nil {
		return Point{}, err
	}
	var p Point
	if err := json.Unmarshal(raw, &p); err != nil {
		return Point{}, err
	}
	if p.ID == 0 {
		return Point{}, ErrMissingPayload
	}
	// Flattened frames share the "type" key with the point's own type.
	if p.Type == f.Type {
		p.Type = ""
	}
	return p, nil
}

// FeedbackUpdate extracts the feedback_update payload.
func (f Frame) FeedbackUpdate() (FeedbackUpdate, error) {
	raw, err := f.payload("feedback", "notification", "data")
	if err != nil {
		return FeedbackUpdate{}, err
	}
	var u FeedbackUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return FeedbackUpdate{}, err
	}
	if u.ID == 0 {
		return FeedbackUpdate{}, ErrMissingPayload
	}
	return u, nil
}

// Fields returns the frame as a generic map, used for diagnostic frames
// (commit-update, clients-update, system-status) that are forwarded as-is.
func (f Frame) Fields() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(f.Raw, &m); err != nil {
		return nil
	}
	delete(m, "type")
	return m
}
