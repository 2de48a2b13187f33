// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/stratus/internal/cache"
	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/fetch"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

const (
	revalidateQueueSize = 256
	validateConcurrency = 4
)

// ProfileSource lists configured profiles. *credentials.Reader
// satisfies it.
type ProfileSource interface {
	ListProfiles() ([]models.Profile, error)
	Profile(name string) (models.Profile, error)
}

// SessionSource resolves and validates credential sessions.
// *credentials.Store satisfies it.
type SessionSource interface {
	Resolve(ctx context.Context, profile string) (*credentials.Session, error)
	Validate(ctx context.Context, profile string) models.CredentialStatus
}

// Scheduler executes fetch units. *fetch.Scheduler satisfies it.
type Scheduler interface {
	Run(ctx context.Context, units []models.FetchUnit, deadline time.Duration) *models.AggregationResult
}

// Request describes one aggregation request. Empty slices mean "all
// configured": every profile, every allowed region, every resource type.
type Request struct {
	Profiles []string            `json:"profiles,omitempty"`
	Regions  []string            `json:"regions,omitempty"`
	Types    []string            `json:"types,omitempty"`
	Options  models.FetchOptions `json:"options"`
}

// Aggregator is the orchestration layer between the API and the fetch
// machinery: it decomposes requests into units, consults the cache, fans
// the misses out through the scheduler and merges everything back into
// one result.
type Aggregator struct {
	cfg      *config.Config
	profiles ProfileSource
	sessions SessionSource
	store    *cache.Store
	sched    Scheduler

	revalidate   chan models.FetchUnit
	revalidating sync.Map
}

// New builds an Aggregator. The caller is expected to wire the
// scheduler's Cache to the same store so unit fetches coalesce behind
// the cache's single flight and fetched results land there.
func New(cfg *config.Config, profiles ProfileSource, sessions SessionSource, store *cache.Store, sched Scheduler) *Aggregator {
	return &Aggregator{
		cfg:        cfg,
		profiles:   profiles,
		sessions:   sessions,
		store:      store,
		sched:      sched,
		revalidate: make(chan models.FetchUnit, revalidateQueueSize),
	}
}

// ListAccounts returns every configured profile. With validate set, each
// profile's credentials are checked against STS concurrently; failures
// are reported in the summary, never as an error.
func (a *Aggregator) ListAccounts(ctx context.Context, validate bool) ([]models.AccountSummary, error) {
	profiles, err := a.profiles.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	summaries := make([]models.AccountSummary, len(profiles))
	for i, p := range profiles {
		summaries[i] = models.AccountSummary{Profile: p}
	}
	if !validate {
		return summaries, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateConcurrency)
	for i := range summaries {
		g.Go(func() error {
			status := a.sessions.Validate(gctx, summaries[i].Profile.Name)
			summaries[i].Status = &status
			return nil
		})
	}
	_ = g.Wait()

	return summaries, nil
}

// ValidateCredentials checks one profile's credentials against STS.
func (a *Aggregator) ValidateCredentials(ctx context.Context, profile string) models.CredentialStatus {
	return a.sessions.Validate(ctx, profile)
}

// ResourceTypes lists the supported resource types.
func (a *Aggregator) ResourceTypes() []models.ResourceType {
	return models.AllResourceTypes()
}

// FetchResources runs one aggregation request: cached units are answered
// from the cache (stale ones too when StaleOK is set, with a background
// revalidation scheduled), the rest fan out through the scheduler.
func (a *Aggregator) FetchResources(ctx context.Context, req Request) (*models.AggregationResult, error) {
	start := time.Now()

	types, err := a.resolveTypes(req.Types)
	if err != nil {
		return nil, err
	}
	regions, err := a.resolveRegions(req.Regions)
	if err != nil {
		return nil, err
	}
	profiles, err := a.resolveProfiles(req.Profiles)
	if err != nil {
		return nil, err
	}

	result := &models.AggregationResult{Units: make(map[string]models.UnitOutcome)}
	units := a.buildUnits(ctx, profiles, regions, types, result)

	var misses []models.FetchUnit
	if req.Options.ForceRefresh {
		// Drop the cached entries first so the scheduler's cache fill
		// cannot answer a forced refresh from them.
		for _, unit := range units {
			a.store.Invalidate(unit)
		}
		misses = units
	} else {
		misses = a.consultCache(units, req.Options.StaleOK, result)
	}

	if len(misses) > 0 {
		fetched := a.sched.Run(ctx, misses, req.Options.Deadline)
		for key, outcome := range fetched.Units {
			result.Units[key] = outcome
		}
	}

	result.Duration = time.Since(start)
	result.Summarize()
	metrics.RecordAggregation(string(result.Status), result.Duration)

	return result, nil
}

// InvalidateUnit drops one unit from the cache.
func (a *Aggregator) InvalidateUnit(unit models.FetchUnit) bool {
	return a.store.Invalidate(unit)
}

// InvalidateAccount drops every cached unit of one account.
func (a *Aggregator) InvalidateAccount(accountID string) int {
	return a.store.InvalidateAccount(accountID)
}

// resolveTypes validates the requested type strings, defaulting to all.
func (a *Aggregator) resolveTypes(requested []string) ([]models.ResourceType, error) {
	if len(requested) == 0 {
		return models.AllResourceTypes(), nil
	}
	types := make([]models.ResourceType, 0, len(requested))
	for _, s := range requested {
		rt, err := models.ParseResourceType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, rt)
	}
	return types, nil
}

// resolveRegions validates the requested regions against the allow list,
// defaulting to the configured regions or the default region.
func (a *Aggregator) resolveRegions(requested []string) ([]string, error) {
	if len(requested) == 0 {
		if len(a.cfg.AWS.Regions) > 0 {
			return a.cfg.AWS.Regions, nil
		}
		return []string{a.cfg.AWS.DefaultRegion}, nil
	}
	for _, region := range requested {
		if !a.cfg.AWS.RegionAllowed(region) {
			return nil, fmt.Errorf("region %q is not in the allowed set", region)
		}
	}
	return requested, nil
}

// resolveProfiles validates the requested profile names, defaulting to
// every configured profile.
func (a *Aggregator) resolveProfiles(requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, name := range requested {
			if _, err := a.profiles.Profile(name); err != nil {
				return nil, err
			}
		}
		return requested, nil
	}

	all, err := a.profiles.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	return names, nil
}

// buildUnits decomposes (profiles x regions x types) into fetch units.
// Session resolution pins each profile to its account ID; profiles that
// cannot resolve contribute failed outcomes instead of units, keyed by
// profile name since the account identity is unknown. Global types
// collapse to one unit per account regardless of the requested regions.
func (a *Aggregator) buildUnits(ctx context.Context, profiles, regions []string, types []models.ResourceType, result *models.AggregationResult) []models.FetchUnit {
	var (
		mu    sync.Mutex
		units []models.FetchUnit
	)
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateConcurrency)
	for _, profile := range profiles {
		g.Go(func() error {
			sess, err := a.sessions.Resolve(gctx, profile)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.recordProfileFailure(result, profile, regions, types, err)
				return nil
			}
			for _, region := range regions {
				for _, rt := range types {
					unit := models.FetchUnit{
						AccountID: sess.AccountID,
						Profile:   profile,
						Region:    clients.EffectiveServiceRegion(rt, region),
						Type:      rt,
					}
					if seen[unit.Key()] {
						continue
					}
					seen[unit.Key()] = true
					units = append(units, unit)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return units
}

// recordProfileFailure marks every would-be unit of an unresolvable
// profile as failed with the credential error mapped onto the fetch
// taxonomy.
func (a *Aggregator) recordProfileFailure(result *models.AggregationResult, profile string, regions []string, types []models.ResourceType, err error) {
	kind := fetch.KindInternal
	switch credentials.KindOf(err) {
	case credentials.KindUnreachable:
		kind = fetch.KindUnreachable
	case credentials.KindInvalid, credentials.KindAssumeRoleDenied:
		kind = fetch.KindNotAuthorized
	}

	now := time.Now()
	seen := make(map[string]bool)
	for _, region := range regions {
		for _, rt := range types {
			unit := models.FetchUnit{
				AccountID: profile,
				Profile:   profile,
				Region:    clients.EffectiveServiceRegion(rt, region),
				Type:      rt,
			}
			if seen[unit.Key()] {
				continue
			}
			seen[unit.Key()] = true
			result.Units[unit.Key()] = models.UnitOutcome{
				Error:     &models.UnitError{Kind: string(kind), Message: err.Error()},
				FetchedAt: now,
			}
		}
	}
}

// consultCache answers what it can from the cache and returns the units
// that still need a fetch. Stale entries are served when allowed, with
// the unit queued for background revalidation.
func (a *Aggregator) consultCache(units []models.FetchUnit, staleOK bool, result *models.AggregationResult) []models.FetchUnit {
	var misses []models.FetchUnit
	for _, unit := range units {
		if staleOK {
			entry, fresh, ok := a.store.GetAllowStale(unit)
			if ok {
				result.Units[unit.Key()] = models.UnitOutcome{
					Records:   entry.Records,
					FromCache: true,
					Stale:     !fresh,
					FetchedAt: entry.FetchedAt,
				}
				if !fresh {
					a.enqueueRevalidation(unit)
				}
				continue
			}
		} else if entry, ok := a.store.Get(unit); ok {
			result.Units[unit.Key()] = models.UnitOutcome{
				Records:   entry.Records,
				FromCache: true,
				FetchedAt: entry.FetchedAt,
			}
			continue
		}
		misses = append(misses, unit)
	}
	return misses
}

// enqueueRevalidation queues a stale-served unit for background refresh.
// The queue is bounded and lossy: under pressure the next stale serve
// will queue it again.
func (a *Aggregator) enqueueRevalidation(unit models.FetchUnit) {
	if _, busy := a.revalidating.LoadOrStore(unit.Key(), struct{}{}); busy {
		return
	}
	select {
	case a.revalidate <- unit:
	default:
		a.revalidating.Delete(unit.Key())
		logging.Debug().Str("unit", unit.Key()).Msg("Revalidation queue full, dropping")
	}
}

// RunRevalidator drains the revalidation queue until ctx ends. Each unit
// is refetched through the scheduler; the scheduler's OnComplete wiring
// lands the result in the cache.
func (a *Aggregator) RunRevalidator(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case unit := <-a.revalidate:
			a.sched.Run(ctx, []models.FetchUnit{unit}, 0)
			a.revalidating.Delete(unit.Key())
		}
	}
}
