// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/ini.v1"

	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/models"
)

// defaultProfileCacheTTL bounds how long a parsed file snapshot is reused
// before the files are re-read from disk.
const defaultProfileCacheTTL = 5 * time.Minute

// staticKeys holds an access key pair parsed from the credentials file.
// Never serialized and never exported outside the package.
type staticKeys struct {
	accessKeyID     string
	secretAccessKey string
	sessionToken    string
}

// snapshot is one immutable parse of both shared files. Readers swap the
// whole snapshot atomically so a concurrent Reload never exposes a
// half-parsed state.
type snapshot struct {
	profiles map[string]models.Profile
	keys     map[string]staticKeys
	loadedAt time.Time
}

// Reader parses the AWS shared credentials and config files into typed
// profiles. Parsed snapshots are cached briefly; Reload discards the cache.
type Reader struct {
	credentialsPath string
	configPath      string
	cacheTTL        time.Duration

	mu   sync.Mutex
	snap *snapshot

	nowFn func() time.Time
}

// NewReader builds a reader over dir, which defaults to ~/.aws when empty.
func NewReader(dir string, cacheTTL time.Duration) *Reader {
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".aws")
		}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultProfileCacheTTL
	}
	return &Reader{
		credentialsPath: filepath.Join(dir, "credentials"),
		configPath:      filepath.Join(dir, "config"),
		cacheTTL:        cacheTTL,
		nowFn:           time.Now,
	}
}

// CredentialsPath returns the path of the shared credentials file.
func (r *Reader) CredentialsPath() string { return r.credentialsPath }

// ConfigPath returns the path of the shared config file.
func (r *Reader) ConfigPath() string { return r.configPath }

// ListProfiles returns every profile found in either file, sorted by name.
// Malformed sections are skipped, not fatal: one bad profile must never
// hide the rest of the listing.
func (r *Reader) ListProfiles() ([]models.Profile, error) {
	snap, err := r.load(false)
	if err != nil {
		return nil, err
	}

	out := make([]models.Profile, 0, len(snap.profiles))
	for _, p := range snap.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Profile returns one profile by name, or ErrProfileNotFound.
func (r *Reader) Profile(name string) (models.Profile, error) {
	snap, err := r.load(false)
	if err != nil {
		return models.Profile{}, err
	}
	p, ok := snap.profiles[name]
	if !ok {
		return models.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return p, nil
}

// StaticKeys returns the access key pair for a profile if the credentials
// file holds one. Used only by the session store; keys never leave the
// process boundary.
func (r *Reader) StaticKeys(name string) (accessKeyID, secretAccessKey, sessionToken string, ok bool) {
	snap, err := r.load(false)
	if err != nil {
		return "", "", "", false
	}
	k, ok := snap.keys[name]
	if !ok {
		return "", "", "", false
	}
	return k.accessKeyID, k.secretAccessKey, k.sessionToken, true
}

// ResolveChain walks the source_profile references from name to the root,
// returning the chain in leaf-to-root order. A repeated profile fails fast
// with KindCyclicProfile before any network call is made.
func (r *Reader) ResolveChain(name string) ([]string, error) {
	snap, err := r.load(false)
	if err != nil {
		return nil, err
	}

	var chain []string
	visited := make(map[string]bool)
	current := name
	for current != "" {
		if visited[current] {
			return nil, &Error{
				Kind:    KindCyclicProfile,
				Profile: name,
				Err:     fmt.Errorf("source_profile cycle: %s -> %s", strings.Join(chain, " -> "), current),
			}
		}
		visited[current] = true
		chain = append(chain, current)

		p, ok := snap.profiles[current]
		if !ok {
			if current == name {
				return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
			}
			// Dangling source_profile: stop the walk, session resolution
			// will surface the real failure.
			break
		}
		current = p.SourceProfile
	}
	return chain, nil
}

// EffectiveRegion returns the first region configured along the profile
// chain, falling back to defaultRegion.
func (r *Reader) EffectiveRegion(name, defaultRegion string) string {
	chain, err := r.ResolveChain(name)
	if err != nil {
		return defaultRegion
	}
	snap, err := r.load(false)
	if err != nil {
		return defaultRegion
	}
	for _, link := range chain {
		if p, ok := snap.profiles[link]; ok && p.Region != "" {
			return p.Region
		}
	}
	return defaultRegion
}

// Reload discards the cached snapshot and re-reads both files.
func (r *Reader) Reload() error {
	_, err := r.load(true)
	return err
}

func (r *Reader) load(force bool) (*snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && r.snap != nil && r.nowFn().Sub(r.snap.loadedAt) < r.cacheTTL {
		return r.snap, nil
	}

	snap, err := r.parse()
	if err != nil {
		return nil, err
	}
	r.snap = snap
	return snap, nil
}

// parse reads both files and merges them into one profile map. A missing
// file is treated as empty, matching the AWS CLI.
func (r *Reader) parse() (*snapshot, error) {
	creds, err := loadINI(r.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.credentialsPath, err)
	}
	cfg, err := loadINI(r.configPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.configPath, err)
	}

	snap := &snapshot{
		profiles: make(map[string]models.Profile),
		keys:     make(map[string]staticKeys),
		loadedAt: r.nowFn(),
	}

	// Credentials file: every section is a profile, keys only.
	for _, section := range creds.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		k := staticKeys{
			accessKeyID:     section.Key("aws_access_key_id").String(),
			secretAccessKey: section.Key("aws_secret_access_key").String(),
			sessionToken:    section.Key("aws_session_token").String(),
		}
		if k.accessKeyID == "" || k.secretAccessKey == "" {
			logging.Debug().Str("profile", name).Msg("Profile missing required credential keys, skipping")
			continue
		}
		snap.keys[name] = k
		snap.profiles[name] = models.Profile{
			Name:          name,
			Type:          models.ProfileStatic,
			HasStaticKeys: true,
		}
	}

	// Config file: sections are "default", "profile X", or "sso-session X".
	for _, section := range cfg.Sections() {
		name := section.Name()
		switch {
		case name == "default":
		case strings.HasPrefix(name, "profile "):
			name = strings.TrimPrefix(name, "profile ")
		default:
			continue
		}

		p := snap.profiles[name]
		p.Name = name
		applyConfigSection(&p, section)
		resolveSSOSession(&p, cfg)
		p.Type = classifyProfile(p, snap.keys[name])
		snap.profiles[name] = p
	}

	// Re-type credentials-only profiles holding a session token.
	for name, k := range snap.keys {
		p := snap.profiles[name]
		if p.Type == models.ProfileStatic && k.sessionToken != "" {
			p.Type = models.ProfileSession
			snap.profiles[name] = p
		}
	}

	logging.Debug().
		Int("profiles", len(snap.profiles)).
		Str("credentials_file", r.credentialsPath).
		Str("config_file", r.configPath).
		Msg("Parsed AWS shared config snapshot")
	return snap, nil
}

func loadINI(path string) (*ini.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ini.Empty(), nil
	}
	return ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
	}, path)
}

func applyConfigSection(p *models.Profile, section *ini.Section) {
	if v := section.Key("region").String(); v != "" {
		p.Region = v
	}
	if v := section.Key("role_arn").String(); v != "" {
		p.RoleARN = v
	}
	if v := section.Key("source_profile").String(); v != "" {
		p.SourceProfile = v
	}
	if v := section.Key("external_id").String(); v != "" {
		p.ExternalID = v
	}
	if v := section.Key("mfa_serial").String(); v != "" {
		p.MFASerial = v
	}
	if v := section.Key("duration_seconds").String(); v != "" {
		if d, err := strconv.ParseInt(v, 10, 32); err == nil {
			p.DurationSeconds = int32(d)
		} else {
			logging.Warn().Str("profile", p.Name).Str("value", v).Msg("Invalid duration_seconds, ignoring")
		}
	}
	if v := section.Key("sso_session").String(); v != "" {
		p.SSOSession = v
	}
	if v := section.Key("sso_start_url").String(); v != "" {
		p.SSOStartURL = v
	}
	if v := section.Key("sso_region").String(); v != "" {
		p.SSORegion = v
	}
	if v := section.Key("sso_account_id").String(); v != "" {
		p.SSOAccountID = v
	}
	if v := section.Key("sso_role_name").String(); v != "" {
		p.SSORoleName = v
	}
}

// resolveSSOSession merges the referenced sso-session section into the
// profile. Session-level start URL and region take precedence over inline
// values.
func resolveSSOSession(p *models.Profile, cfg *ini.File) {
	if p.SSOSession == "" {
		return
	}
	section, err := cfg.GetSection("sso-session " + p.SSOSession)
	if err != nil {
		logging.Warn().Str("profile", p.Name).Str("sso_session", p.SSOSession).Msg("Referenced sso-session section not found")
		return
	}
	if v := section.Key("sso_start_url").String(); v != "" {
		p.SSOStartURL = v
	}
	if v := section.Key("sso_region").String(); v != "" {
		p.SSORegion = v
	}
}

func classifyProfile(p models.Profile, keys staticKeys) models.ProfileType {
	switch {
	case p.RoleARN != "":
		return models.ProfileRole
	case p.SSOSession != "" || p.SSOStartURL != "":
		return models.ProfileSSO
	case keys.sessionToken != "":
		return models.ProfileSession
	default:
		return models.ProfileStatic
	}
}
