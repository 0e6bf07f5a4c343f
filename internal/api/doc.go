// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package api is the REST client for the community-map server.

Every call goes through the same pipeline:

	rate limiter (x/time/rate) -> circuit breaker (gobreaker) -> net/http

Errors are classified so callers can decide between queueing and
surfacing:

	err := client.ConfirmPoint(ctx, 42)
	switch {
	case api.IsConnectivity(err): // no answer, 5xx, 429, open breaker: queue it
	case api.IsNotFound(err):     // already gone: no-op
	case api.IsRejected(err):     // server said no: show it, do not retry
	}

When the breaker opens the client publishes server.unavailable on the
injected event publisher.
*/
package api
