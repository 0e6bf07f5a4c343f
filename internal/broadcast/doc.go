// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package broadcast fetches the server's active system-wide broadcast and
// displays it once per device. Dismissed ids persist under the
// seenBroadcastIds store key, so a broadcast stays dismissed across
// restarts.
package broadcast
