// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package metrics holds the agent's Prometheus instrumentation.

All collectors are registered on the default registry through promauto
and served by the status API at /metrics:

	curl http://127.0.0.1:3858/metrics

Families:
  - mapsync_api_*: REST calls to the map server
  - mapsync_circuit_breaker_*: breaker state around the REST client
  - mapsync_websocket_*: channel state, reconnects, dropped frames
  - mapsync_offline_queue_*, mapsync_online: offline queue and connectivity
  - mapsync_notification*, mapsync_broadcast_*, mapsync_point*: reconcilers
  - mapsync_status_http_*: the local status API itself
*/
package metrics
