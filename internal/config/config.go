// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package config loads and validates Watchvault configuration.
//
// Configuration is merged from three layers in increasing priority:
// built-in defaults, an optional YAML config file, and WATCHVAULT_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Watchvault service.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Enrich    EnrichConfig    `koanf:"enrich"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Takeout   TakeoutConfig   `koanf:"takeout"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `koanf:"path" validate:"required"`
}

// EnrichConfig configures the YouTube Data API client.
type EnrichConfig struct {
	// APIKey authenticates requests to the video platform API.
	// Empty disables enrichment at startup (ingestion still runs and
	// marks unreachable videos inactive).
	APIKey string `koanf:"api_key"`

	// BaseURL is the API root. Overridable for tests.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Parts is the projection string sent with video lookups.
	Parts string `koanf:"parts" validate:"required"`

	// RetryAttempts bounds the enrichment retry loop per video.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=1,max=10"`

	// RequestsPerSecond caps the API request rate. 0 means unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`
}

// ReconcileConfig configures cross-archive timestamp deduplication.
type ReconcileConfig struct {
	// MaxTimeDifference is the zone-drift window within which two
	// timestamps may describe the same watch event.
	MaxTimeDifference time.Duration `koanf:"max_time_difference" validate:"required"`
}

// TakeoutConfig configures archive parsing.
type TakeoutConfig struct {
	// PruneInPlace writes the pruned form of a raw archive back to its
	// original path, speeding up subsequent scans.
	PruneInPlace bool `koanf:"prune_in_place"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`

	// File enables the rotating file sink when non-empty.
	File           string `koanf:"file"`
	FileMaxSizeMB  int    `koanf:"file_max_size_mb"`
	FileMaxBackups int    `koanf:"file_max_backups"`
}

// defaultConfig returns a Config with all default values applied.
// Defaults are merged first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "yt.sqlite",
		},
		Enrich: EnrichConfig{
			APIKey:            "",
			BaseURL:           "https://www.googleapis.com/youtube/v3",
			Parts:             "snippet,contentDetails,statistics,topicDetails,liveStreamingDetails",
			RetryAttempts:     5,
			RequestsPerSecond: 8,
			Timeout:           30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			// One day plus one hour absorbs exports taken in any pair
			// of local time zones.
			MaxTimeDifference: 25 * time.Hour,
		},
		Takeout: TakeoutConfig{
			PruneInPlace: false,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    5000,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			File:           "",
			FileMaxSizeMB:  10,
			FileMaxBackups: 3,
		},
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Reconcile.MaxTimeDifference <= 0 {
		return fmt.Errorf("invalid configuration: reconcile.max_time_difference must be positive")
	}
	return nil
}
