// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/singleflight"

	appconfig "github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

// staticSessionLifetime applies to long-lived key profiles that carry no
// server-side expiry of their own.
const staticSessionLifetime = 24 * time.Hour

// ssoSessionLifetime is the conservative bound for SSO-backed sessions; the
// SDK's shared token cache owns the real expiry.
const ssoSessionLifetime = time.Hour

// Session is a resolved, validated credential context for one profile.
// Immutable after resolution: refresh produces a new Session with a higher
// generation, it never mutates one in place.
type Session struct {
	Profile    string
	Type       models.ProfileType
	AccountID  string
	ARN        string
	UserID     string
	Region     string
	Expiry     time.Time
	Generation uint64

	cfg aws.Config
}

// Config returns the AWS SDK configuration bound to this session's
// credentials and region. For SSO profiles the provider resolves through
// the SDK's shared token cache; raw SSO credentials are never held here.
func (s *Session) Config() aws.Config { return s.cfg }

// Expired reports whether the session has expired at now. The boundary
// instant itself counts as expired.
func (s *Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// STSAPI is the subset of the STS client used for identity checks.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Store owns all live sessions. Refreshes for the same profile coalesce
// through a single-flight group: concurrent callers observe either the old
// still-valid session or the new one, never an intermediate state.
type Store struct {
	reader *Reader
	cfg    appconfig.AWSConfig

	mu          sync.RWMutex
	sessions    map[string]*Session
	generations map[string]uint64

	group singleflight.Group
	nowFn func() time.Time

	// Overridable for tests.
	loadConfig func(ctx context.Context, profile, region string) (aws.Config, error)
	newSTS     func(cfg aws.Config) STSAPI
}

// NewStore builds a session store over the given reader.
func NewStore(reader *Reader, cfg appconfig.AWSConfig) *Store {
	s := &Store{
		reader:      reader,
		cfg:         cfg,
		sessions:    make(map[string]*Session),
		generations: make(map[string]uint64),
		nowFn:       time.Now,
	}
	s.loadConfig = s.defaultLoadConfig
	s.newSTS = func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) }
	return s
}

// Resolve returns a live session for the profile, refreshing if none is
// cached or the cached one has expired.
func (s *Store) Resolve(ctx context.Context, profile string) (*Session, error) {
	s.mu.RLock()
	sess := s.sessions[profile]
	s.mu.RUnlock()

	if sess != nil && !sess.Expired(s.nowFn()) {
		return sess, nil
	}
	return s.refresh(ctx, profile, false)
}

// Refresh forces a new session for the profile. Idempotent: concurrent
// calls coalesce into one underlying refresh and all receive its result.
func (s *Store) Refresh(ctx context.Context, profile string) (*Session, error) {
	return s.refresh(ctx, profile, true)
}

func (s *Store) refresh(ctx context.Context, profile string, force bool) (*Session, error) {
	v, err, shared := s.group.Do(profile, func() (interface{}, error) {
		// A racing caller may have completed a refresh between our cache
		// check and winning the flight.
		if !force {
			s.mu.RLock()
			cached := s.sessions[profile]
			s.mu.RUnlock()
			if cached != nil && !cached.Expired(s.nowFn()) {
				return cached, nil
			}
		}
		return s.resolveNew(ctx, profile)
	})
	if shared {
		metrics.SessionRefreshCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// resolveNew performs one full resolution: chain check, SDK config load,
// identity validation, then publication under the next generation.
func (s *Store) resolveNew(ctx context.Context, profile string) (*Session, error) {
	p, err := s.reader.Profile(profile)
	if err != nil {
		return nil, err
	}

	// Cycle detection happens before any network traffic.
	if _, err := s.reader.ResolveChain(profile); err != nil {
		metrics.RecordSessionRefresh(string(p.Type), false)
		return nil, err
	}

	region := s.reader.EffectiveRegion(profile, s.cfg.DefaultRegion)

	awsCfg, err := s.loadConfig(ctx, profile, region)
	if err != nil {
		metrics.RecordSessionRefresh(string(p.Type), false)
		return nil, classify(profile, err)
	}

	identityCtx := ctx
	if s.cfg.ValidateTimeout > 0 {
		var cancel context.CancelFunc
		identityCtx, cancel = context.WithTimeout(ctx, s.cfg.ValidateTimeout)
		defer cancel()
	}

	identity, err := s.newSTS(awsCfg).GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		metrics.RecordSessionRefresh(string(p.Type), false)
		return nil, classify(profile, err)
	}

	expiry := s.sessionExpiry(ctx, p, awsCfg)

	s.mu.Lock()
	s.generations[profile]++
	sess := &Session{
		Profile:    profile,
		Type:       p.Type,
		AccountID:  aws.ToString(identity.Account),
		ARN:        aws.ToString(identity.Arn),
		UserID:     aws.ToString(identity.UserId),
		Region:     region,
		Expiry:     expiry,
		Generation: s.generations[profile],
		cfg:        awsCfg,
	}
	s.sessions[profile] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	metrics.RecordSessionRefresh(string(p.Type), true)
	metrics.SessionsActive.Set(float64(active))

	logging.Ctx(ctx).Info().
		Str("profile", profile).
		Str("type", string(p.Type)).
		Str("account_id", sess.AccountID).
		Str("region", region).
		Time("expiry", expiry).
		Uint64("generation", sess.Generation).
		Msg("Resolved credential session")
	return sess, nil
}

// sessionExpiry prefers the provider's own expiry when it has one; the
// fallbacks bound profiles whose providers cannot expire.
func (s *Store) sessionExpiry(ctx context.Context, p models.Profile, awsCfg aws.Config) time.Time {
	if creds, err := awsCfg.Credentials.Retrieve(ctx); err == nil && creds.CanExpire {
		return creds.Expires
	}
	switch p.Type {
	case models.ProfileSSO:
		return s.nowFn().Add(ssoSessionLifetime)
	case models.ProfileRole:
		d := s.cfg.SessionDuration
		if p.DurationSeconds > 0 {
			d = time.Duration(p.DurationSeconds) * time.Second
		}
		if d <= 0 {
			d = time.Hour
		}
		return s.nowFn().Add(d)
	default:
		return s.nowFn().Add(staticSessionLifetime)
	}
}

// Generation returns the current session generation for a profile. The
// client factory compares this against the generation a cached client was
// built from.
func (s *Store) Generation(profile string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[profile]
}

// Validate resolves and identity-checks one profile, returning a status
// record rather than an error: validation failures are data, not faults.
func (s *Store) Validate(ctx context.Context, profile string) models.CredentialStatus {
	status := models.CredentialStatus{
		Profile:   profile,
		CheckedAt: s.nowFn(),
	}

	sess, err := s.Resolve(ctx, profile)
	if err != nil {
		status.Error = err.Error()
		if kind := KindOf(err); kind != "" {
			status.ErrorKind = string(kind)
			metrics.CredentialValidations.WithLabelValues(string(kind)).Inc()
		} else {
			metrics.CredentialValidations.WithLabelValues("invalid").Inc()
		}
		return status
	}

	status.Valid = true
	status.AccountID = sess.AccountID
	status.ARN = sess.ARN
	status.UserID = sess.UserID
	metrics.CredentialValidations.WithLabelValues("valid").Inc()
	return status
}

// SweepExpired evicts expired sessions and returns how many were removed.
// Called periodically by the supervisor's sweeper service.
func (s *Store) SweepExpired() int {
	now := s.nowFn()

	s.mu.Lock()
	removed := 0
	for profile, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, profile)
			removed++
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(active))
	if removed > 0 {
		logging.Info().Int("removed", removed).Int("active", active).Msg("Swept expired credential sessions")
	}
	return removed
}

// ActiveSessions returns the number of live cached sessions.
func (s *Store) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// defaultLoadConfig resolves a profile through the SDK's shared-config
// machinery, which handles role chains, MFA prompts, and the SSO token
// cache. Custom shared-config directories are honored for both files.
func (s *Store) defaultLoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRegion(region),
	}
	if s.cfg.SharedConfigDir != "" {
		opts = append(opts,
			awsconfig.WithSharedConfigFiles([]string{s.reader.ConfigPath()}),
			awsconfig.WithSharedCredentialsFiles([]string{s.reader.CredentialsPath()}),
		)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load shared config for profile %q: %w", profile, err)
	}
	return cfg, nil
}
