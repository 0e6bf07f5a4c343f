// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package models defines the wire and local-state types shared by the sync
components: points, notifications, broadcasts, offline queue actions and
inbound WebSocket frames.

JSON field names follow the community-map server's REST contract
(snake_case, "userId" for request bodies). Types here carry no behavior
beyond decoding helpers; reconciliation rules live in the owning
component packages.
*/
package models
