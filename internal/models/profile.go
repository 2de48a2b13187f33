// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package models

import "time"

// ProfileType classifies how a profile obtains credentials.
type ProfileType string

const (
	// ProfileStatic uses long-lived access keys from the credentials file.
	ProfileStatic ProfileType = "static"

	// ProfileRole assumes an IAM role via a source profile chain.
	ProfileRole ProfileType = "role"

	// ProfileSSO resolves short-lived credentials through an SSO session.
	ProfileSSO ProfileType = "sso"

	// ProfileSession uses pre-issued temporary session credentials.
	ProfileSession ProfileType = "session"
)

// Profile is a named credential configuration read from the local AWS
// config and credentials files. Immutable once loaded; reloaded only on an
// explicit re-read of the credential source.
type Profile struct {
	Name   string      `json:"name"`
	Type   ProfileType `json:"type"`
	Region string      `json:"region,omitempty"`

	// Role-assumption fields.
	RoleARN         string `json:"role_arn,omitempty"`
	SourceProfile   string `json:"source_profile,omitempty"`
	ExternalID      string `json:"-"`
	MFASerial       string `json:"mfa_serial,omitempty"`
	DurationSeconds int32  `json:"duration_seconds,omitempty"`

	// SSO fields. SSOSession names an sso-session section; the legacy
	// inline form sets StartURL directly.
	SSOSession   string `json:"sso_session,omitempty"`
	SSOStartURL  string `json:"sso_start_url,omitempty"`
	SSORegion    string `json:"sso_region,omitempty"`
	SSOAccountID string `json:"sso_account_id,omitempty"`
	SSORoleName  string `json:"sso_role_name,omitempty"`

	// HasStaticKeys records whether the credentials file held an access
	// key pair for this profile. The keys themselves are never exported.
	HasStaticKeys bool `json:"has_static_keys,omitempty"`
}

// Valid reports whether the profile has enough configuration to attempt
// session resolution.
func (p Profile) Valid() bool {
	switch p.Type {
	case ProfileRole:
		return p.RoleARN != "" && p.SourceProfile != ""
	case ProfileSSO:
		return p.SSOSession != "" || (p.SSOStartURL != "" && p.SSOAccountID != "" && p.SSORoleName != "")
	default:
		return p.HasStaticKeys
	}
}

// CredentialStatus is the result of validating one profile's credentials.
type CredentialStatus struct {
	Profile   string    `json:"profile"`
	Valid     bool      `json:"valid"`
	AccountID string    `json:"account_id,omitempty"`
	ARN       string    `json:"arn,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// AccountSummary is one entry of the account listing: the profile plus its
// most recent validation status, if any.
type AccountSummary struct {
	Profile Profile           `json:"profile"`
	Status  *CredentialStatus `json:"status,omitempty"`
}
