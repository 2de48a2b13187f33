// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package auth implements API authentication: HS256 JWT access tokens
// issued against the configured admin credentials, and middleware that
// validates bearer tokens on protected routes. Mode "none" disables
// authentication entirely and is intended for development only.
package auth
