// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package supervisor runs the agent's long-lived services under suture v4.

	RootSupervisor ("mapsync")
	├── "storage-layer"
	│   └── settings-watcher
	├── "sync-layer"
	│   ├── socket:points, socket:admin (if configured)
	│   ├── connectivity-monitor, offline-banner
	│   ├── notification-reconciler, broadcast-sequencer
	│   └── agent (reconnect refreshes)
	└── "api-layer"
	    └── status-http

Each layer counts failures independently, so a poller that keeps
panicking backs off without stopping the status server. Supervisor
events are logged through sutureslog and the zerolog slog adapter:

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfig{})
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err = tree.Serve(ctx)

Service wrappers for types that do not implement suture.Service
themselves live in the services subpackage.
*/
package supervisor
