// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

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

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ravenbridge/config.yaml",
	"/etc/ravenbridge/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Raven: RavenConfig{
			BaseURL:    "",
			APIKey:     "",
			APISecret:  "",
			Timeout:    30 * time.Second,
			RateLimit:  10,
			RateBurst:  20,
			MaxRetries: 5,
			RetryDelay: time.Second,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8787,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     200,
			RateLimit:       120,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			TokenTTL:          12 * time.Hour,
			AdminUsername:     "admin",
			AdminPasswordHash: "",
			CORSOrigins:       nil,
		},
		Fleet: FleetConfig{
			PollInterval:        30 * time.Second,
			SnapshotConcurrency: 8,
			MediaConcurrency:    4,
			GeofenceConcurrency: 4,
			EventLookback:       24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:         true,
			StorePath:       "/data/ravenbridge/audit",
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
			LogToStdout:     false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// RAVEN_BASE_URL -> raven.base_url, HTTP_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
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

// findConfigFile searches for a config file in the default paths.
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

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when they arrive via environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields. Env vars come in as strings, but the config
// expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config
// paths.
//
// Examples:
//   - RAVEN_BASE_URL -> raven.base_url
//   - RAVEN_API_SECRET -> raven.api_secret
//   - HTTP_PORT -> server.port
//   - FLEET_POLL_INTERVAL -> fleet.poll_interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Vendor API
		"raven_base_url":    "raven.base_url",
		"raven_api_key":     "raven.api_key",
		"raven_api_secret":  "raven.api_secret",
		"raven_timeout":     "raven.timeout",
		"raven_rate_limit":  "raven.rate_limit",
		"raven_rate_burst":  "raven.rate_burst",
		"raven_max_retries": "raven.max_retries",
		"raven_retry_delay": "raven.retry_delay",

		// Server
		"http_host":   "server.host",
		"http_port":   "server.port",
		"environment": "server.environment",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"api_rate_limit":        "api.rate_limit",

		// Security
		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"cors_origins":        "security.cors_origins",

		// Fleet
		"fleet_poll_interval":        "fleet.poll_interval",
		"fleet_snapshot_concurrency": "fleet.snapshot_concurrency",
		"fleet_media_concurrency":    "fleet.media_concurrency",
		"fleet_geofence_concurrency": "fleet.geofence_concurrency",
		"fleet_event_lookback":       "fleet.event_lookback",

		// Audit
		"audit_enabled":          "audit.enabled",
		"audit_store_path":       "audit.store_path",
		"audit_retention_days":   "audit.retention_days",
		"audit_cleanup_interval": "audit.cleanup_interval",
		"audit_buffer_size":      "audit.buffer_size",
		"audit_log_to_stdout":    "audit.log_to_stdout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored so unrelated environment noise
	// cannot override config values.
	return ""
}
