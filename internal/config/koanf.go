// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mapsync/config.yaml",
	"/etc/mapsync/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "",
			UserID:         "",
			WSPath:         "/ws",
			AdminWSPath:    "",
			RequestTimeout: 15 * time.Second,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Sync: SyncConfig{
			NotificationPollInterval: 60 * time.Second,
			BroadcastPollInterval:    60 * time.Second,
			BroadcastInitialDelay:    2 * time.Second,
			BroadcastSettleDelay:     500 * time.Millisecond,
			BannerInterval:           3 * time.Second,
			SettingsPollInterval:     time.Second,
			ReplayInterval:           30 * time.Second,
			PointStatuses:            []string{"pending", "confirmed"},
		},
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			Multiplier:   1.5,
			MaxDelay:     30 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/mapsync",
			InMemory:   false,
			SyncWrites: true, // Offline queue must survive a crash
		},
		Status: StatusConfig{
			ListenAddr:        "127.0.0.1:3858",
			CORSOrigins:       []string{},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file
// and environment variables, in increasing priority, then validates it.
func LoadWithKoanf() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is LoadWithKoanf with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as env strings.
var sliceConfigPaths = []string{
	"sync.point_statuses",
	"status.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored so unrelated env never leaks into config.
var envMappings = map[string]string{
	"mapsync_server_url":       "server.base_url",
	"mapsync_user_id":          "server.user_id",
	"mapsync_ws_path":          "server.ws_path",
	"mapsync_admin_ws_path":    "server.admin_ws_path",
	"mapsync_request_timeout":  "server.request_timeout",
	"mapsync_rate_limit_rps":   "server.rate_limit_rps",
	"mapsync_rate_limit_burst": "server.rate_limit_burst",

	"notification_poll_interval": "sync.notification_poll_interval",
	"broadcast_poll_interval":    "sync.broadcast_poll_interval",
	"broadcast_initial_delay":    "sync.broadcast_initial_delay",
	"broadcast_settle_delay":     "sync.broadcast_settle_delay",
	"banner_interval":            "sync.banner_interval",
	"settings_poll_interval":     "sync.settings_poll_interval",
	"replay_interval":            "sync.replay_interval",
	"point_statuses":             "sync.point_statuses",

	"reconnect_initial_delay": "reconnect.initial_delay",
	"reconnect_multiplier":    "reconnect.multiplier",
	"reconnect_max_delay":     "reconnect.max_delay",

	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_sync_writes": "store.sync_writes",

	"status_listen_addr":         "status.listen_addr",
	"status_cors_origins":        "status.cors_origins",
	"status_rate_limit_requests": "status.rate_limit_requests",
	"status_rate_limit_window":   "status.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps e.g. MAPSYNC_SERVER_URL to server.base_url.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
