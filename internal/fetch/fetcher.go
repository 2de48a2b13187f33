// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

// Fetcher drains all pages of one fetch unit through the unit's token
// bucket and the account's circuit breaker. It owns per-page retries;
// unit-level retries (requeue, session refresh) belong to the scheduler.
type Fetcher struct {
	limiter  *Limiter
	breakers *breakerSet

	retryAttempts int
	retryDelay    time.Duration
}

// NewFetcher builds a Fetcher from the rate limit and scheduler config.
func NewFetcher(rateCfg config.RateLimitConfig, schedCfg config.SchedulerConfig) *Fetcher {
	return &Fetcher{
		limiter:       NewLimiter(rateCfg),
		breakers:      newBreakerSet(),
		retryAttempts: schedCfg.PageRetryAttempts,
		retryDelay:    schedCfg.PageRetryDelay,
	}
}

// Fetch drains every page of the unit and returns the full record list.
// Failures come back as *Error; a partial_page error carries the pages
// collected before the failing one. When the account's breaker is open
// the unit fails as unreachable without consuming a rate limit token.
func (f *Fetcher) Fetch(ctx context.Context, unit models.FetchUnit, lister clients.PageLister) ([]models.ResourceRecord, error) {
	start := time.Now()
	br := f.breakers.get(unit.AccountID)

	records, err := br.Execute(func() ([]models.ResourceRecord, error) {
		return f.drain(ctx, unit, lister)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRejections.WithLabelValues(unit.AccountID).Inc()
			err = &Error{Kind: KindUnreachable, Unit: unit, Err: err}
		}

		fe := asFetchError(unit, err)
		metrics.RecordFetch(string(unit.Type), time.Since(start), string(fe.Kind), len(fe.Records))
		return fe.Records, fe
	}

	metrics.RecordFetch(string(unit.Type), time.Since(start), "success", len(records))
	return records, nil
}

// drain walks the pages in order, one rate limit token per page call.
// Each page gets bounded retries with exponential backoff before the
// whole unit gives up.
func (f *Fetcher) drain(ctx context.Context, unit models.FetchUnit, lister clients.PageLister) ([]models.ResourceRecord, error) {
	var (
		records []models.ResourceRecord
		token   string
		pages   int
	)

	for {
		pageRecords, next, err := f.fetchPageWithRetry(ctx, unit, lister, token)
		if err != nil {
			if pages == 0 {
				return nil, err
			}
			return nil, &Error{
				Kind:    KindPartialPage,
				Unit:    unit,
				Pages:   pages,
				Records: records,
				Err:     err,
			}
		}

		records = append(records, pageRecords...)
		pages++
		metrics.FetchPages.Inc()

		if next == "" {
			return records, nil
		}
		token = next
	}
}

// fetchPageWithRetry fetches one page, retrying throttled and
// unreachable failures with doubling delay plus jitter. Permanent
// failures and context cancellation stop immediately.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, unit models.FetchUnit, lister clients.PageLister, token string) ([]models.ResourceRecord, string, error) {
	var lastErr *Error

	delay := f.retryDelay
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", classify(unit, err)
		}

		if err := f.limiter.Wait(ctx, unit); err != nil {
			var fe *Error
			if !errors.As(err, &fe) {
				return nil, "", classify(unit, err)
			}
			lastErr = fe
		} else {
			pageRecords, next, err := lister.FetchPage(ctx, token)
			if err == nil {
				return pageRecords, next, nil
			}
			lastErr = classify(unit, err)
		}

		if !lastErr.Kind.Retryable() {
			return nil, "", lastErr
		}

		if attempt < f.retryAttempts-1 {
			metrics.FetchPageRetries.WithLabelValues(string(unit.Type)).Inc()
			logging.Ctx(ctx).Debug().
				Str("unit", unit.Key()).
				Int("attempt", attempt+1).
				Str("kind", string(lastErr.Kind)).
				Dur("delay", delay).
				Msg("Retrying page fetch")

			select {
			case <-time.After(withJitter(delay)):
			case <-ctx.Done():
				return nil, "", classify(unit, ctx.Err())
			}
			delay *= 2
		}
	}

	return nil, "", lastErr
}

// asFetchError normalizes an error from the breaker path into *Error.
func asFetchError(unit models.FetchUnit, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return classify(unit, err)
}

// withJitter spreads a delay over [d/2, 3d/2) so concurrent retries
// against the same service do not synchronize.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d)))
}
