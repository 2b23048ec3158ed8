// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package config provides centralized configuration management.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Raven    RavenConfig    `koanf:"raven"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Fleet    FleetConfig    `koanf:"fleet"`
	Audit    AuditConfig    `koanf:"audit"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RavenConfig holds vendor telematics API settings.
type RavenConfig struct {
	// BaseURL is the vendor API base URL.
	BaseURL string `koanf:"base_url"`

	// APIKey identifies this integration to the vendor.
	APIKey string `koanf:"api_key"`

	// APISecret authenticates the integration. Never logged.
	APISecret string `koanf:"api_secret"`

	// Timeout for individual vendor HTTP requests.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the outbound request rate in requests per second.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the outbound burst allowance.
	RateBurst int `koanf:"rate_burst"`

	// MaxRetries bounds retries on vendor 429 responses.
	MaxRetries int `koanf:"max_retries"`

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// Environment is "development" or "production".
	Environment string `koanf:"environment"`
}

// APIConfig holds local API behavior settings.
type APIConfig struct {
	// DefaultPageSize for list endpoints.
	DefaultPageSize int `koanf:"default_page_size"`

	// MaxPageSize caps requested page sizes.
	MaxPageSize int `koanf:"max_page_size"`

	// RateLimit is requests per minute per client IP.
	RateLimit int `koanf:"rate_limit"`
}

// SecurityConfig holds authentication and access control settings.
type SecurityConfig struct {
	// JWTSecret signs operator session tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL is the operator token lifetime.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// AdminUsername is the dashboard operator account name.
	AdminUsername string `koanf:"admin_username"`

	// AdminPasswordHash is the bcrypt hash of the operator password.
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// CORSOrigins lists allowed cross-origin hosts.
	CORSOrigins []string `koanf:"cors_origins"`
}

// FleetConfig holds fleet polling and batch operation settings.
type FleetConfig struct {
	// PollInterval between fleet snapshot refreshes.
	PollInterval time.Duration `koanf:"poll_interval"`

	// SnapshotConcurrency bounds per-vehicle fan-out during snapshots.
	SnapshotConcurrency int `koanf:"snapshot_concurrency"`

	// MediaConcurrency bounds concurrent event media fetches.
	MediaConcurrency int `koanf:"media_concurrency"`

	// GeofenceConcurrency bounds concurrent geofence uploads.
	GeofenceConcurrency int `koanf:"geofence_concurrency"`

	// EventLookback is how far back event listings reach by default.
	EventLookback time.Duration `koanf:"event_lookback"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// StorePath is the BadgerDB directory. Empty selects the in-memory
	// store.
	StorePath string `koanf:"store_path"`

	RetentionDays   int           `koanf:"retention_days"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BufferSize      int           `koanf:"buffer_size"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// LoggingConfig holds application log settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateRaven,
		c.validateServer,
		c.validateAPI,
		c.validateSecurity,
		c.validateFleet,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRaven() error {
	if c.Raven.BaseURL == "" {
		return fmt.Errorf("raven.base_url is required")
	}
	u, err := url.Parse(c.Raven.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("raven.base_url must be an http(s) URL: %q", c.Raven.BaseURL)
	}
	if c.Raven.APIKey == "" {
		return fmt.Errorf("raven.api_key is required")
	}
	if c.Raven.APISecret == "" {
		return fmt.Errorf("raven.api_secret is required")
	}
	if c.Raven.RateLimit <= 0 {
		return fmt.Errorf("raven.rate_limit must be positive, got %v", c.Raven.RateLimit)
	}
	if c.Raven.MaxRetries < 0 {
		return fmt.Errorf("raven.max_retries must not be negative, got %d", c.Raven.MaxRetries)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be positive, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.IsProduction() {
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
		}
		if c.Security.AdminPasswordHash == "" {
			return fmt.Errorf("security.admin_password_hash is required in production")
		}
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("security.cors_origins must not contain wildcard in production")
			}
		}
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("security.token_ttl must be positive, got %v", c.Security.TokenTTL)
	}
	return nil
}

func (c *Config) validateFleet() error {
	if c.Fleet.PollInterval < time.Second {
		return fmt.Errorf("fleet.poll_interval must be at least 1s, got %v", c.Fleet.PollInterval)
	}
	for name, v := range map[string]int{
		"fleet.snapshot_concurrency": c.Fleet.SnapshotConcurrency,
		"fleet.media_concurrency":    c.Fleet.MediaConcurrency,
		"fleet.geofence_concurrency": c.Fleet.GeofenceConcurrency,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}
