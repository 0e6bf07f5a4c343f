// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all agent configuration.
//
// Loading order (LoadWithKoanf):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment variables
//
// Config is immutable after loading and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Sync       SyncConfig       `koanf:"sync"`
	Reconnect  ReconnectConfig  `koanf:"reconnect"`
	Store      StoreConfig      `koanf:"store"`
	Status     StatusConfig     `koanf:"status"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig describes the community-map server this device talks to.
type ServerConfig struct {
	// BaseURL is the REST root, e.g. https://map.example.org/api.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// UserID identifies this device's user for notification endpoints.
	UserID string `koanf:"user_id" validate:"required"`

	// WSPath is the points-channel socket path on the same host.
	WSPath string `koanf:"ws_path" validate:"required,startswith=/"`

	// AdminWSPath enables the admin channel when non-empty.
	AdminWSPath string `koanf:"admin_ws_path"`

	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	// RateLimitRPS caps outgoing REST requests per second (0 disables).
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

// SyncConfig holds poll and timer intervals for the sync components.
type SyncConfig struct {
	NotificationPollInterval time.Duration `koanf:"notification_poll_interval" validate:"gt=0"`
	BroadcastPollInterval    time.Duration `koanf:"broadcast_poll_interval" validate:"gt=0"`
	BroadcastInitialDelay    time.Duration `koanf:"broadcast_initial_delay" validate:"gte=0"`
	BroadcastSettleDelay     time.Duration `koanf:"broadcast_settle_delay" validate:"gte=0"`
	BannerInterval           time.Duration `koanf:"banner_interval" validate:"gt=0"`
	SettingsPollInterval     time.Duration `koanf:"settings_poll_interval" validate:"gt=0"`

	// ReplayInterval retries queued actions while the server looks
	// reachable. Transient 5xx answers queue actions without ever
	// flipping connectivity, so the regained hook alone would miss them.
	ReplayInterval time.Duration `koanf:"replay_interval" validate:"gt=0"`

	// PointStatuses is the status filter used for full point refreshes.
	PointStatuses []string `koanf:"point_statuses" validate:"dive,oneof=pending confirmed deactivated"`
}

// ReconnectConfig is the WebSocket backoff policy.
type ReconnectConfig struct {
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gt=0"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
	MaxDelay     time.Duration `koanf:"max_delay" validate:"gtefield=InitialDelay"`
}

// StoreConfig selects the device-local store.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// StatusConfig configures the local status HTTP surface.
type StatusConfig struct {
	// ListenAddr is empty to disable the status server.
	ListenAddr        string        `koanf:"listen_addr"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig mirrors suture's failure policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got %q", u.Scheme)
	}

	if c.Server.AdminWSPath != "" && !strings.HasPrefix(c.Server.AdminWSPath, "/") {
		return fmt.Errorf("server.admin_ws_path must start with /")
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}

	if c.Status.ListenAddr != "" && c.Status.RateLimitRequests > 0 && c.Status.RateLimitWindow <= 0 {
		return fmt.Errorf("status.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}
