// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package queue keeps mutating actions that could not reach the server and
replays them once connectivity returns.

The queue lives in the device store under the offlineQueue key as a JSON
array of models.QueuedAction, in enqueue order:

	[{"id":1760000000000,"type":"confirm_point","data":{"id":42},"timestamp":"..."}]

Only connectivity failures are queued; the caller decides with
api.IsConnectivity. Monitor turns reachability reports into transitions
and runs replay hooks; Banner renders the offline/syncing indicator.
*/
package queue
