// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/stratus/internal/models"
)

// validate runs the struct-tag constraints declared on Config fields.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the merged configuration is usable. Field-level
// constraints run through go-playground/validator; cross-field rules are
// checked explicitly.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateDurations()
}

// validateSecurity enforces the JWT prerequisites when auth is enabled.
func (c *Config) validateSecurity() error {
	if c.Security.AuthMode != "jwt" {
		return nil
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("STRATUS_SECURITY_JWT_SECRET must be at least 32 characters when auth_mode=jwt")
	}
	if c.Security.AdminUsername == "" {
		return fmt.Errorf("STRATUS_SECURITY_ADMIN_USERNAME is required when auth_mode=jwt")
	}
	if len(c.Security.AdminPassword) < 8 {
		return fmt.Errorf("STRATUS_SECURITY_ADMIN_PASSWORD must be at least 8 characters when auth_mode=jwt")
	}
	return nil
}

// validateCache rejects TTL overrides for resource types Stratus does not
// inventory; a typo here would otherwise silently fall back to the default.
func (c *Config) validateCache() error {
	for typeName, ttl := range c.Cache.TTLOverrides {
		if _, err := models.ParseResourceType(typeName); err != nil {
			return fmt.Errorf("cache.ttl_overrides: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl_overrides[%s]: TTL must be positive", typeName)
		}
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive")
	}
	return nil
}

// validateDurations sanity-checks the timing knobs.
func (c *Config) validateDurations() error {
	if c.Scheduler.DefaultDeadline < time.Second {
		return fmt.Errorf("scheduler.default_deadline must be at least 1s")
	}
	if c.RateLimit.MaxWait <= 0 {
		return fmt.Errorf("rate_limit.max_wait must be positive")
	}
	if c.AWS.SessionDuration < 15*time.Minute {
		return fmt.Errorf("aws.session_duration must be at least 15m (STS minimum)")
	}
	return nil
}
