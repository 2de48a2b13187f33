// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/models"
)

// Kind classifies a fetch failure. Kinds drive the scheduler's retry
// policy: throttled and unreachable units are requeued once, auth_expired
// triggers a session refresh, everything else fails immediately.
type Kind string

const (
	// KindThrottled means the service rejected the call for rate, or the
	// local token bucket could not admit it within the configured wait.
	KindThrottled Kind = "throttled"

	// KindAuthExpired means the session credentials expired mid-fetch.
	KindAuthExpired Kind = "auth_expired"

	// KindNotAuthorized means the credentials lack permission for the
	// operation. Retrying cannot help.
	KindNotAuthorized Kind = "not_authorized"

	// KindUnreachable covers transport failures and server-side errors.
	KindUnreachable Kind = "unreachable"

	// KindUnsupported means the resource type is not available in the
	// requested region or the API rejected the operation as unknown.
	KindUnsupported Kind = "unsupported"

	// KindPartialPage means some pages were fetched before a later page
	// exhausted its retries. The error carries the collected records.
	KindPartialPage Kind = "partial_page"

	// KindTimeout means the request deadline elapsed before the unit
	// completed.
	KindTimeout Kind = "timeout"

	// KindInternal covers failures in our own plumbing.
	KindInternal Kind = "internal"
)

// Error is a classified fetch failure for one unit.
type Error struct {
	Kind Kind
	Unit models.FetchUnit

	// Pages and Records hold the portion collected before the failure.
	// Only partial_page errors populate them.
	Pages   int
	Records []models.ResourceRecord

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Unit.Key(), e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Unit.Key(), e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from an error chain, or internal when the
// chain holds no *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Retryable reports whether the fetcher's per-page backoff should retry
// a failure of this kind. Permission and support failures are permanent
// for the lifetime of the request.
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindUnreachable
}

// classify maps an AWS API error onto the fetch taxonomy. The code sets
// here mirror what EC2, S3, RDS, Lambda and ELBv2 actually return; codes
// we have not seen default to unreachable, the only kind the scheduler
// will retry without understanding it.
func classify(unit models.FetchUnit, err error) *Error {
	kind := KindUnreachable

	var apiErr smithy.APIError
	switch {
	case errors.Is(err, clients.ErrUnsupportedRegion):
		kind = KindUnsupported
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"TooManyRequestsException", "RequestThrottled", "SlowDown":
			kind = KindThrottled
		case "ExpiredToken", "ExpiredTokenException", "RequestExpired",
			"TokenRefreshRequired":
			kind = KindAuthExpired
		case "UnauthorizedOperation", "AccessDenied", "AccessDeniedException",
			"UnauthorizedException":
			kind = KindNotAuthorized
		case "InvalidAction", "UnsupportedOperation", "OptInRequired":
			kind = KindUnsupported
		}
	}

	return &Error{Kind: kind, Unit: unit, Err: err}
}
