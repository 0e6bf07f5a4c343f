// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package settings holds device preferences (notification realTime flag,
// message retention, swipe gestures) backed by the device store.
package settings
