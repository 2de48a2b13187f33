// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

const (
	breakerMaxRequests uint32 = 3
	breakerInterval           = time.Minute
	breakerTimeout            = 2 * time.Minute
	breakerMinRequests uint32 = 10
	breakerFailureRate        = 0.6
)

// breakerSet holds one circuit breaker per account. A flapping or
// unreachable account trips its own breaker without affecting fetches
// against healthy accounts.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]models.ResourceRecord]
}

func newBreakerSet() *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]models.ResourceRecord]),
	}
}

func (s *breakerSet) get(accountID string) *gobreaker.CircuitBreaker[[]models.ResourceRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()

	br, ok := s.breakers[accountID]
	if !ok {
		br = newAccountBreaker(accountID)
		s.breakers[accountID] = br
	}
	return br
}

func newAccountBreaker(accountID string) *gobreaker.CircuitBreaker[[]models.ResourceRecord] {
	settings := gobreaker.Settings{
		Name:        "account-" + accountID,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerFailureRate
		},
		// Only connectivity failures count against the breaker. Throttles
		// are expected under load and permission errors say nothing about
		// whether the account's endpoints are reachable.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return KindOf(err) != KindUnreachable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("account_id", accountID).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Account circuit breaker state changed")

			metrics.SetBreakerState(accountID, to.String())
			metrics.CircuitBreakerTransitions.
				WithLabelValues(accountID, from.String(), to.String()).Inc()
		},
	}
	return gobreaker.NewCircuitBreaker[[]models.ResourceRecord](settings)
}
