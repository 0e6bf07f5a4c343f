// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package statusapi is the agent's local HTTP surface. A UI shell or an
operator uses it to read state and to drive the user actions the sync
components expose.

	GET    /healthz                      liveness
	GET    /status                       agent.Status
	GET    /metrics                      Prometheus
	POST   /points                       submit a point
	POST   /points/{id}/confirm          confirm
	POST   /points/{id}/deactivate       deactivate
	POST   /points/{id}/reactivate       reactivate
	POST   /notifications/{id}/read      mark one read
	POST   /notifications/read-all       mark all read
	POST   /notifications/popup/dismiss  hide the popup
	POST   /broadcast/dismiss            dismiss the displayed broadcast
	POST   /broadcast/seen/clear         forget dismissals
	DELETE /broadcast/{id}               delete a broadcast
	PUT    /visibility                   {"visible": bool}
	PUT    /settings/notifications       {"realTime": bool}
	PUT    /settings/retention           {"days": int}
	PUT    /settings/swipe               swipe preferences

Every JSON reply uses the Response envelope. Notification mutations
apply locally first; the reply's acknowledged field says whether the
map server confirmed them. Point mutations answer 200 with the server's
point, or 202 with the optimistic point when the action was queued for
replay. A 4xx from the map server is passed through as REJECTED, and a
transient failure that could not be queued is a 503.
*/
package statusapi
