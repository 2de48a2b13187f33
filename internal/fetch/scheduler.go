// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/stratus/internal/cache"
	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

// UnitState is the lifecycle of one unit inside a scheduler run.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitInFlight  UnitState = "in_flight"
	UnitRetrying  UnitState = "retrying"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// SessionSource resolves and refreshes credential sessions.
// *credentials.Store satisfies it.
type SessionSource interface {
	Resolve(ctx context.Context, profile string) (*credentials.Session, error)
	Refresh(ctx context.Context, profile string) (*credentials.Session, error)
}

// ListerSource builds page listers for a session. *clients.Factory
// satisfies it.
type ListerSource interface {
	Client(sess *credentials.Session, region string, resType models.ResourceType) (clients.PageLister, error)
}

// Filler runs a fetch behind a per-key single flight and stores the
// result. *cache.Store satisfies it.
type Filler interface {
	Fill(ctx context.Context, unit models.FetchUnit, fetch func(ctx context.Context) ([]models.ResourceRecord, error)) (cache.Entry, error)
}

// Scheduler fans a set of fetch units out across accounts. Concurrency
// is bounded per account so one large or slow account cannot starve the
// others; units of different accounts never compete for workers.
type Scheduler struct {
	cfg      config.SchedulerConfig
	fetcher  *Fetcher
	sessions SessionSource
	listers  ListerSource

	// Cache, when wired, routes every unit fetch through the cache's
	// per-key single flight: concurrent runs of the same unit share one
	// underlying fetch, and results land in the cache even when the unit
	// was already reported as timed out.
	Cache Filler

	// OnComplete receives the records of every unit whose fetch finishes,
	// including units that finished after the run deadline and were
	// already reported as timed out.
	OnComplete func(unit models.FetchUnit, records []models.ResourceRecord, fetchedAt time.Time)

	// StateHook observes unit state transitions when set.
	StateHook func(unitKey string, state UnitState)
}

// NewScheduler builds a Scheduler over the given fetcher and sources.
func NewScheduler(cfg config.SchedulerConfig, fetcher *Fetcher, sessions SessionSource, listers ListerSource) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		sessions: sessions,
		listers:  listers,
	}
}

// Run executes the units and returns the per-unit outcomes. The run is
// bounded by the deadline (zero means the configured default): units
// still in flight when it passes are reported as timed out, but their
// fetches keep running on a detached context so OnComplete can still
// deliver their records.
func (s *Scheduler) Run(ctx context.Context, units []models.FetchUnit, deadline time.Duration) *models.AggregationResult {
	start := time.Now()
	if deadline <= 0 {
		deadline = s.cfg.DefaultDeadline
	}

	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Detached fetches get one extra deadline's worth of time to finish
	// and populate the cache before being cut off.
	fetchCtx, fetchCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*deadline)

	result := &models.AggregationResult{
		Units: make(map[string]models.UnitOutcome, len(units)),
	}
	var resultMu sync.Mutex
	record := func(unit models.FetchUnit, outcome models.UnitOutcome) {
		resultMu.Lock()
		defer resultMu.Unlock()
		result.Units[unit.Key()] = outcome
	}

	var inflight sync.WaitGroup
	var accounts sync.WaitGroup
	for _, accountUnits := range groupByAccount(units) {
		accounts.Add(1)
		go func(us []models.FetchUnit) {
			defer accounts.Done()
			s.runAccount(runCtx, fetchCtx, us, record, &inflight)
		}(accountUnits)
	}
	accounts.Wait()

	// Release the detached context once the stragglers drain.
	go func() {
		inflight.Wait()
		fetchCancel()
	}()

	result.Duration = time.Since(start)
	result.Summarize()

	logging.Ctx(ctx).Info().
		Int("units", len(units)).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Msg("Aggregation run finished")

	return result
}

func (s *Scheduler) runAccount(runCtx, fetchCtx context.Context, units []models.FetchUnit, record func(models.FetchUnit, models.UnitOutcome), inflight *sync.WaitGroup) {
	sem := semaphore.NewWeighted(int64(s.cfg.WorkersPerAccount))

	var wg sync.WaitGroup
	for _, unit := range units {
		s.setState(unit, UnitPending)
		wg.Add(1)
		go func(u models.FetchUnit) {
			defer wg.Done()
			record(u, s.runUnit(runCtx, fetchCtx, u, sem, inflight))
		}(unit)
	}
	wg.Wait()
}

// runUnit executes one unit end to end, applying the unit-level retry
// policy: throttled and unreachable failures are requeued once with a
// jittered delay, an expired session gets one refresh and retry, and
// everything else fails as classified.
func (s *Scheduler) runUnit(runCtx, fetchCtx context.Context, unit models.FetchUnit, sem *semaphore.Weighted, inflight *sync.WaitGroup) models.UnitOutcome {
	if err := sem.Acquire(runCtx, 1); err != nil {
		s.setState(unit, UnitFailed)
		return timeoutOutcome()
	}
	defer sem.Release(1)

	outcome, fe := s.attempt(runCtx, fetchCtx, unit, inflight)
	if fe == nil {
		return outcome
	}

	switch fe.Kind {
	case KindThrottled, KindUnreachable:
		s.setState(unit, UnitRetrying)
		metrics.AggregationUnitRequeues.WithLabelValues(string(fe.Kind)).Inc()

		select {
		case <-time.After(withJitter(s.cfg.RetryDelay)):
		case <-runCtx.Done():
			s.setState(unit, UnitFailed)
			return outcome
		}
		outcome, fe = s.attempt(runCtx, fetchCtx, unit, inflight)

	case KindAuthExpired:
		s.setState(unit, UnitRetrying)
		metrics.AggregationUnitRequeues.WithLabelValues(string(fe.Kind)).Inc()

		if _, err := s.sessions.Refresh(runCtx, unit.Profile); err != nil {
			logging.Ctx(runCtx).Warn().
				Str("unit", unit.Key()).
				Err(err).
				Msg("Session refresh after auth failure did not recover")
			s.setState(unit, UnitFailed)
			return outcome
		}
		outcome, fe = s.attempt(runCtx, fetchCtx, unit, inflight)
	}

	return outcome
}

type fetchResult struct {
	records   []models.ResourceRecord
	fetchedAt time.Time
	err       error
}

// attempt runs a single fetch of the unit. The fetch itself runs on the
// detached context; if the run deadline passes first the unit is
// reported as timed out here while the fetch keeps going.
func (s *Scheduler) attempt(runCtx, fetchCtx context.Context, unit models.FetchUnit, inflight *sync.WaitGroup) (models.UnitOutcome, *Error) {
	s.setState(unit, UnitInFlight)
	metrics.AggregationUnitsInFlight.Inc()

	done := make(chan fetchResult, 1)
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		defer metrics.AggregationUnitsInFlight.Dec()

		records, fetchedAt, err := s.fetchUnit(fetchCtx, unit)
		if err == nil && s.OnComplete != nil {
			s.OnComplete(unit, records, fetchedAt)
		}
		done <- fetchResult{records: records, fetchedAt: fetchedAt, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			fe := asFetchError(unit, res.err)
			s.setState(unit, UnitFailed)
			return failureOutcome(fe), fe
		}
		s.setState(unit, UnitSucceeded)
		return models.UnitOutcome{Records: res.records, FetchedAt: res.fetchedAt}, nil

	case <-runCtx.Done():
		s.setState(unit, UnitFailed)
		return timeoutOutcome(), &Error{Kind: KindTimeout, Unit: unit, Err: runCtx.Err()}
	}
}

// fetchUnit runs one fetch. With a cache wired it goes through the
// cache's single flight, so concurrent requests for the same unit
// coalesce into one underlying fetch and the result is stored on the
// way out.
func (s *Scheduler) fetchUnit(ctx context.Context, unit models.FetchUnit) ([]models.ResourceRecord, time.Time, error) {
	if s.Cache == nil {
		records, err := s.fetchOnce(ctx, unit)
		return records, time.Now(), err
	}

	entry, err := s.Cache.Fill(ctx, unit, func(ctx context.Context) ([]models.ResourceRecord, error) {
		return s.fetchOnce(ctx, unit)
	})
	if err != nil {
		return nil, time.Now(), err
	}
	return entry.Records, entry.FetchedAt, nil
}

func (s *Scheduler) fetchOnce(ctx context.Context, unit models.FetchUnit) ([]models.ResourceRecord, error) {
	sess, err := s.sessions.Resolve(ctx, unit.Profile)
	if err != nil {
		return nil, mapSessionError(unit, err)
	}

	lister, err := s.listers.Client(sess, unit.Region, unit.Type)
	if err != nil {
		return nil, classify(unit, err)
	}

	return s.fetcher.Fetch(ctx, unit, lister)
}

func (s *Scheduler) setState(unit models.FetchUnit, state UnitState) {
	if s.StateHook != nil {
		s.StateHook(unit.Key(), state)
	}
}

// mapSessionError converts a credential resolution failure into the
// fetch taxonomy. Denied and invalid credentials cannot succeed on
// retry; only network trouble stays retryable.
func mapSessionError(unit models.FetchUnit, err error) *Error {
	switch credentials.KindOf(err) {
	case credentials.KindUnreachable:
		return &Error{Kind: KindUnreachable, Unit: unit, Err: err}
	case credentials.KindInvalid, credentials.KindAssumeRoleDenied:
		return &Error{Kind: KindNotAuthorized, Unit: unit, Err: err}
	case credentials.KindCyclicProfile:
		return &Error{Kind: KindInternal, Unit: unit, Err: err}
	}
	return classify(unit, err)
}

func groupByAccount(units []models.FetchUnit) map[string][]models.FetchUnit {
	grouped := make(map[string][]models.FetchUnit)
	for _, u := range units {
		grouped[u.AccountID] = append(grouped[u.AccountID], u)
	}
	return grouped
}

// failureOutcome builds the outcome for a classified failure. A partial
// page failure keeps the pages collected before the failing one, so
// callers get what was drained alongside the error.
func failureOutcome(fe *Error) models.UnitOutcome {
	msg := string(fe.Kind)
	if fe.Err != nil {
		msg = fe.Err.Error()
	}
	return models.UnitOutcome{
		Records:   fe.Records,
		Error:     &models.UnitError{Kind: string(fe.Kind), Message: msg},
		FetchedAt: time.Now(),
	}
}

func timeoutOutcome() models.UnitOutcome {
	return models.UnitOutcome{
		Error:     &models.UnitError{Kind: string(KindTimeout), Message: "deadline elapsed before unit completed"},
		FetchedAt: time.Now(),
	}
}
