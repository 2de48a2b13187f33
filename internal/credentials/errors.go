// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Kind classifies a credential failure. The scheduler's retry policy
// differs per kind, so classification must be exact: only Unreachable is
// retryable.
type Kind string

const (
	// KindInvalid means the credentials themselves are bad or expired
	// static keys. Terminal until the operator fixes the profile.
	KindInvalid Kind = "invalid"

	// KindAssumeRoleDenied means the role-assumption call was rejected by
	// IAM. Terminal.
	KindAssumeRoleDenied Kind = "assume_role_denied"

	// KindUnreachable means STS or the network was unavailable. Retryable.
	KindUnreachable Kind = "unreachable"

	// KindCyclicProfile means the source_profile chain loops back on
	// itself. Detected before any network call.
	KindCyclicProfile Kind = "cyclic_profile"
)

// ErrProfileNotFound is returned when a profile name appears in neither the
// credentials nor the config file.
var ErrProfileNotFound = errors.New("profile not found")

// Error is a classified credential failure for one profile.
type Error struct {
	Kind    Kind
	Profile string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credentials: profile %q: %s", e.Profile, e.Kind)
	}
	return fmt.Sprintf("credentials: profile %q: %s: %v", e.Profile, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from an error chain. Returns the empty
// string for errors that are not credential errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// classify maps an STS failure onto the credential error taxonomy. API
// errors with explicit codes distinguish bad keys from denied assumptions;
// everything else (DNS, timeouts, 5xx without a code) is Unreachable.
func classify(profile string, err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidClientTokenId", "SignatureDoesNotMatch", "AuthFailure",
			"ExpiredToken", "ExpiredTokenException", "InvalidIdentityToken",
			"IncompleteSignature", "MissingAuthenticationToken":
			return &Error{Kind: KindInvalid, Profile: profile, Err: err}
		case "AccessDenied", "AccessDeniedException":
			return &Error{Kind: KindAssumeRoleDenied, Profile: profile, Err: err}
		}
		// Unknown API code: the service answered, so the transport works,
		// but we cannot prove the keys are bad. Treat as unreachable so the
		// scheduler may retry.
		return &Error{Kind: KindUnreachable, Profile: profile, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnreachable, Profile: profile, Err: err}
	}

	return &Error{Kind: KindUnreachable, Profile: profile, Err: err}
}
