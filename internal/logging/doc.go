// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package logging provides the process-wide zerolog logger for Mapsync.
//
// Every component logs through the package-level helpers so output lands
// in one structured stream:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("channel", "points").Msg("[points-ws] Connected")
//	logging.Warn().Err(err).Msg("[queue] Replay item failed")
//
// Log chains must end with Msg or Send, otherwise nothing is written.
//
// Background loops attach a correlation ID to their context so a single
// poll or replay run can be followed across components:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Msg("Replay started")
//
// SlogHandler bridges log/slog consumers (suture's event hook, the
// watermill bus) into the same zerolog output.
package logging
