// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package services adapts components that do not speak suture's
// Serve(ctx) error contract: the status HTTP server (ListenAndServe and
// Shutdown) and the socket managers (Connect and Close).
//
// Components that already implement Serve, such as the notification
// reconciler or the connectivity monitor, are added to the tree directly.
package services
