// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package notify reconciles the per-user notification list from three
sources: the initial fetch, the periodic poll and feedback_update pushes
on the user channel.

The high-water mark (largest id ever seen) decides popups. Only a poll
can raise one, and only for an unread item above the mark while the
realTime preference is on. Pushes patch items in place and never pop up,
so a notification is never surfaced twice.

Read state is optimistic: MarkAsRead and MarkAllAsRead update the local
list first and acknowledge to the server afterwards. The next poll
replaces the list, so server state wins on convergence.
*/
package notify
