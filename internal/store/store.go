// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrNotFound is returned by Get when the key has never been written
	// or was deleted.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
)

// Well-known keys for device-local state.
const (
	KeyOfflineQueue         = "offlineQueue"
	KeySeenBroadcasts       = "seenBroadcastIds"
	KeyMessageRetention     = "messageRetention"
	KeySwipePreferences     = "swipePreferences"
	keyNotificationSettings = "notificationSettings:"
)

// NotificationSettingsKey returns the per-user settings key.
func NotificationSettingsKey(userID string) string {
	return keyNotificationSettings + userID
}

// Change describes a write observed by a subscriber. Deleted is true when
// the key was removed; Value is then nil.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store is the device-local key-value store. It replaces browser
// localStorage: values are opaque bytes (JSON by convention), writes are
// last-write-wins, and Subscribe delivers changes made by any writer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Subscribe registers fn for changes to key. The returned func
	// unregisters it and is safe to call more than once.
	Subscribe(key string, fn func(Change)) (cancel func())

	Close() error
}

// GetJSON loads key into v. A missing key leaves v untouched and returns
// ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
