// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package agent assembles the sync components into one running client.

Frames from the points socket (and the admin socket, when configured) are
routed by type:

	point_added, point_updated      -> points.Channel
	feedback_update                 -> notify.Reconciler
	commit-update, clients-update,
	system-status                   -> events.TopicDebugUpdate

Both the REST client and the points socket report reachability to the
queue.Monitor. Each offline-to-online transition replays the offline
queue, reloads the point list, polls notifications and refreshes the
banner, in that order. A points socket that reconnects after a drop also
reloads the point list, since pushes sent while it was down are lost.
*/
package agent
