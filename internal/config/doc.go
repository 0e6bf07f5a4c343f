// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package config loads agent configuration with Koanf v2.

Sources, lowest priority first:

 1. Built-in defaults (defaultConfig)
 2. YAML file: CONFIG_PATH, else config.yaml / /etc/mapsync/config.yaml
 3. Environment variables (explicit mapping, see envMappings)

Minimal environment:

	export MAPSYNC_SERVER_URL=https://map.example.org/api
	export MAPSYNC_USER_ID=device-42
	export STORE_PATH=/var/lib/mapsync

Equivalent YAML:

	server:
	  base_url: https://map.example.org/api
	  user_id: device-42
	  admin_ws_path: /ws/admin
	sync:
	  notification_poll_interval: 60s
	store:
	  path: /var/lib/mapsync

Validation uses go-playground/validator struct tags plus a few
cross-field checks in Validate.
*/
package config
