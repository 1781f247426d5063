// Package whoop implements the WHOOP API integration: the OAuth linking flow,
// the token refresh protocol, and the resilient fetch client used to pull
// sleep, recovery, and workout data on behalf of linked users.
package whoop

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can branch on what went wrong
// instead of inspecting exception-like errors.
type ErrorKind string

const (
	// KindNotLinked means no credential is on file for the user. The user
	// must start the linking flow.
	KindNotLinked ErrorKind = "not_linked"
	// KindInvalidState means the OAuth state was missing, expired, or already
	// used. The user must restart the linking flow.
	KindInvalidState ErrorKind = "invalid_state"
	// KindExchangeFailed means the authorization-code exchange was rejected
	// upstream. The user remains unlinked.
	KindExchangeFailed ErrorKind = "exchange_failed"
	// KindAuthExpired means a token refresh failed; the credential on file is
	// unusable and the user must re-link.
	KindAuthExpired ErrorKind = "auth_expired"
	// KindUpstreamError means a transport or non-auth HTTP failure. Retryable
	// later; not the user's fault.
	KindUpstreamError ErrorKind = "upstream_error"
)

// Error is a classified WHOOP integration failure.
type Error struct {
	Kind    ErrorKind
	Status  int    // upstream HTTP status, when one was received
	Message string // short human-readable detail
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.cause != nil:
		return fmt.Sprintf("whoop: %s: %s: %v", e.Kind, e.Message, e.cause)
	case e.Message != "":
		return fmt.Sprintf("whoop: %s: %s", e.Kind, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("whoop: %s: %v", e.Kind, e.cause)
	default:
		return fmt.Sprintf("whoop: %s", e.Kind)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the ErrorKind from err. It returns the empty kind when err
// is nil or does not carry a classification.
func KindOf(err error) ErrorKind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
