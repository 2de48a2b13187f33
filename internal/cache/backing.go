// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package cache

// Backing is an optional persistent store behind the in-memory cache.
// Implementations must tolerate concurrent calls. Errors are advisory: the
// cache degrades to memory-only rather than failing operations.
type Backing interface {
	Put(key string, entry Entry) error
	Delete(key string) error

	// Walk visits every persisted entry. Used once at startup to repair
	// the in-memory state after a restart.
	Walk(fn func(key string, entry Entry)) error

	Close() error
}
