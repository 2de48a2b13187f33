// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package services

import (
	"context"
	"errors"
)

// Revalidator is the background refresh loop of the aggregation engine.
// Satisfied by aggregate.Aggregator.
type Revalidator interface {
	RunRevalidator(ctx context.Context) error
}

// RevalidatorService supervises the stale-entry refresh worker. The
// worker blocks on its queue and only returns when the context ends, so
// a non-context error means it crashed and suture should restart it.
type RevalidatorService struct {
	engine Revalidator
}

// NewRevalidatorService wraps the aggregation engine's revalidation
// loop as a supervised service.
func NewRevalidatorService(engine Revalidator) *RevalidatorService {
	return &RevalidatorService{engine: engine}
}

// Serve implements suture.Service.
func (r *RevalidatorService) Serve(ctx context.Context) error {
	err := r.engine.RunRevalidator(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

// String identifies the service in supervisor logs.
func (r *RevalidatorService) String() string {
	return "cache-revalidator"
}
