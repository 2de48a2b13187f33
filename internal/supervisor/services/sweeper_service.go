// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package services

import (
	"context"
	"time"

	"github.com/tomtom215/stratus/internal/logging"
)

// SweeperService runs a sweep function on a fixed interval. It backs
// both periodic evictions in Stratus: the resource cache janitor
// (cache.Store.Sweep) and the session store sweeper
// (credentials.Store.SweepExpired).
//
// The sweep function returns how many entries it removed; removals are
// logged at debug, ticks that remove nothing are silent.
type SweeperService struct {
	name     string
	interval time.Duration
	sweep    func() int
}

// NewSweeperService creates a sweeper. A non-positive interval falls
// back to five minutes.
func NewSweeperService(name string, interval time.Duration, sweep func() int) *SweeperService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweeperService{name: name, interval: interval, sweep: sweep}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				logging.Debug().
					Str("service", s.name).
					Int("removed", removed).
					Msg("Sweep evicted expired entries")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (s *SweeperService) String() string {
	return s.name
}
