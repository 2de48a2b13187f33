// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package config loads and validates the Stratus configuration via Koanf v2
// with layered sources: struct defaults, then an optional YAML file, then
// environment variables (highest priority).
package config

import (
	"time"
)

// Version is the Stratus build version, overridden at link time with
// -ldflags "-X github.com/tomtom215/stratus/internal/config.Version=...".
var Version = "0.1.0-dev"

// Config is the root configuration structure.
type Config struct {
	AWS       AWSConfig       `koanf:"aws"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// AWSConfig controls credential discovery and session handling.
type AWSConfig struct {
	// SharedConfigDir overrides the directory holding the credentials and
	// config files. Empty means ~/.aws.
	SharedConfigDir string `koanf:"shared_config_dir"`

	// DefaultRegion applies when neither the request nor the profile chain
	// names a region.
	DefaultRegion string `koanf:"default_region" validate:"required"`

	// Regions restricts which regions may be queried. Empty means any.
	Regions []string `koanf:"regions"`

	// SessionDuration is the requested lifetime for assumed-role sessions.
	SessionDuration time.Duration `koanf:"session_duration"`

	// SessionSweepInterval controls how often expired sessions are evicted.
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval"`

	// ProfileCacheTTL bounds how long the parsed profile files are reused
	// before being re-read from disk.
	ProfileCacheTTL time.Duration `koanf:"profile_cache_ttl"`

	// ValidateTimeout bounds the STS identity check during validation.
	ValidateTimeout time.Duration `koanf:"validate_timeout"`
}

// SchedulerConfig controls the fan-out scheduler.
type SchedulerConfig struct {
	// WorkersPerAccount bounds concurrent fetches per account so one slow
	// account cannot starve others. The bound is per-account, not global.
	WorkersPerAccount int `koanf:"workers_per_account" validate:"min=1,max=64"`

	// DefaultDeadline applies when a request carries no deadline.
	DefaultDeadline time.Duration `koanf:"default_deadline"`

	// RetryDelay is the base delay before a scheduler-level requeue of a
	// throttled or unreachable unit. Jitter is added on top.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// PageRetryAttempts bounds per-page retries inside the fetcher.
	PageRetryAttempts int `koanf:"page_retry_attempts" validate:"min=1,max=10"`

	// PageRetryDelay is the base delay of the fetcher's exponential backoff.
	PageRetryDelay time.Duration `koanf:"page_retry_delay"`
}

// CacheConfig controls the inventory cache.
type CacheConfig struct {
	// DefaultTTL applies to resource types without an explicit override.
	// Short by default: cloud inventories are volatile.
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// TTLOverrides maps resource type strings to longer or shorter TTLs,
	// e.g. "ec2:vpc": 30m for slow-changing network topology.
	TTLOverrides map[string]time.Duration `koanf:"ttl_overrides"`

	// JanitorInterval controls how often expired entries are swept.
	JanitorInterval time.Duration `koanf:"janitor_interval"`

	// PersistPath is the Badger directory for the optional persistent
	// backing store (requires the persist build tag). Empty disables it.
	PersistPath string `koanf:"persist_path"`
}

// RateLimitConfig controls the per-(account, resource type) token buckets.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate of one bucket.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	// Burst is the bucket capacity.
	Burst int `koanf:"burst" validate:"min=1"`

	// MaxWait bounds how long a fetch may queue for a token before it
	// fails as throttled.
	MaxWait time.Duration `koanf:"max_wait"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// HTTPRateLimitReqs and HTTPRateLimitWindow bound requests per client
	// IP on the data endpoints.
	HTTPRateLimitReqs   int           `koanf:"http_rate_limit_reqs"`
	HTTPRateLimitWindow time.Duration `koanf:"http_rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// SecurityConfig controls API authentication.
type SecurityConfig struct {
	// AuthMode is "jwt" or "none". "none" is for development only.
	AuthMode string `koanf:"auth_mode" validate:"oneof=jwt none"`

	// JWTSecret signs access tokens when AuthMode is "jwt". 32+ characters.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout bounds JWT validity.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		AWS: AWSConfig{
			SharedConfigDir:      "",
			DefaultRegion:        "us-east-1",
			Regions:              []string{},
			SessionDuration:      time.Hour,
			SessionSweepInterval: 5 * time.Minute,
			ProfileCacheTTL:      5 * time.Minute,
			ValidateTimeout:      10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			WorkersPerAccount: 4,
			DefaultDeadline:   30 * time.Second,
			RetryDelay:        500 * time.Millisecond,
			PageRetryAttempts: 3,
			PageRetryDelay:    time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			TTLOverrides:    map[string]time.Duration{},
			JanitorInterval: 5 * time.Minute,
			PersistPath:     "",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			MaxWait:           10 * time.Second,
		},
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                4326,
			Timeout:             60 * time.Second,
			HTTPRateLimitReqs:   100,
			HTTPRateLimitWindow: time.Minute,
			CORSOrigins:         []string{},
		},
		Security: SecurityConfig{
			AuthMode:       "jwt",
			JWTSecret:      "",
			SessionTimeout: 24 * time.Hour,
			AdminUsername:  "",
			AdminPassword:  "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// TTLFor returns the cache TTL for a resource type, falling back to the
// default TTL when no override exists.
func (c *CacheConfig) TTLFor(resourceType string) time.Duration {
	if ttl, ok := c.TTLOverrides[resourceType]; ok {
		return ttl
	}
	return c.DefaultTTL
}

// RegionAllowed reports whether a region may be queried under the
// configured region restriction. An empty restriction allows any region.
func (c *AWSConfig) RegionAllowed(region string) bool {
	if len(c.Regions) == 0 {
		return true
	}
	for _, r := range c.Regions {
		if r == region {
			return true
		}
	}
	return false
}
