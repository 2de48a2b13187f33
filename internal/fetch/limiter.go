// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

// bucketKey identifies one token bucket. Buckets are per (account,
// resource type) so a burst against EC2 in one account cannot consume
// RDS headroom or another account's budget.
type bucketKey struct {
	accountID string
	resType   models.ResourceType
}

// Limiter hands out API call tokens from per-(account, type) buckets.
// Every page call consumes one token; callers that cannot be admitted
// within the configured wait fail as throttled rather than queue
// unboundedly.
type Limiter struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
}

// NewLimiter builds a Limiter. Buckets are created lazily on first use
// and start full, so an idle account gets its full burst immediately.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[bucketKey]*rate.Limiter),
	}
}

func (l *Limiter) bucket(key bucketKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
		l.buckets[key] = lim
	}
	return lim
}

// Wait blocks until the unit's bucket admits one call, the configured
// MaxWait elapses, or ctx is done. MaxWait expiry returns a throttled
// error; caller cancellation returns ctx's error unwrapped so deadline
// handling upstream can tell the two apart.
func (l *Limiter) Wait(ctx context.Context, unit models.FetchUnit) error {
	lim := l.bucket(bucketKey{accountID: unit.AccountID, resType: unit.Type})

	waitCtx := ctx
	if l.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.cfg.MaxWait)
		defer cancel()
	}

	service := unit.Type.Service()
	start := time.Now()
	err := lim.Wait(waitCtx)
	metrics.RecordThrottleWait(service, time.Since(start))

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// The caller's context ended, not our wait budget.
		return ctx.Err()
	}

	metrics.RateLimitRejections.WithLabelValues(service).Inc()
	return &Error{
		Kind: KindThrottled,
		Unit: unit,
		Err:  fmt.Errorf("no token within %s", l.cfg.MaxWait),
	}
}

// Buckets reports how many buckets have been created, for tests and
// debug endpoints.
func (l *Limiter) Buckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
