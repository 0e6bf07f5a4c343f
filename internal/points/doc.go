// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package points keeps the live map point list in step with the server.
//
// point_added frames insert at the head and are idempotent by id;
// point_updated frames replace the matching entry and are dropped for ids
// not held locally. Refresh reloads the list from REST after a reconnect.
// Local mutations apply optimistically and fall back to the offline queue
// when the server cannot be reached.
package points
