package oauth

import (
	"errors"
	"fmt"

	"audiblezenbot/internal/platform"
)

// Kind classifies an authentication failure.
type Kind string

const (
	// KindDenied: the redirect carried an error parameter.
	KindDenied Kind = "denied"
	// KindTimeout: no redirect arrived before the deadline.
	KindTimeout Kind = "timeout"
	// KindExchangeFailed: the token endpoint rejected the code or was unreachable.
	KindExchangeFailed Kind = "exchange_failed"
	// KindStateMismatch: the redirect's state did not match the request.
	KindStateMismatch Kind = "state_mismatch"
	// KindMalformedCallback: the redirect had neither code nor error.
	KindMalformedCallback Kind = "malformed_callback"
	// KindSuperseded: a newer Authenticate call for the platform replaced the session.
	KindSuperseded Kind = "superseded"
	// KindCanceled: the caller or the coordinator canceled the session.
	KindCanceled Kind = "canceled"
	// KindListener: the callback listener failed.
	KindListener Kind = "listener"
)

// Sentinels matched by errors.Is against an *AuthError of the same kind.
var (
	ErrAuthDenied        = errors.New("authorization denied")
	ErrAuthTimeout       = errors.New("authentication timed out")
	ErrExchangeFailed    = errors.New("token exchange failed")
	ErrStateMismatch     = errors.New("state mismatch")
	ErrMalformedCallback = errors.New("malformed callback")
	ErrSuperseded        = errors.New("superseded by a newer authentication")
	ErrCanceled          = errors.New("authentication canceled")
	ErrListener          = errors.New("callback listener failed")
)

// ErrCoordinatorClosed is returned by Authenticate after Close.
var ErrCoordinatorClosed = errors.New("coordinator closed")

// TimeoutReason is the fixed reason reported for timeouts.
const TimeoutReason = "timed out"

var kindSentinels = map[Kind]error{
	KindDenied:            ErrAuthDenied,
	KindTimeout:           ErrAuthTimeout,
	KindExchangeFailed:    ErrExchangeFailed,
	KindStateMismatch:     ErrStateMismatch,
	KindMalformedCallback: ErrMalformedCallback,
	KindSuperseded:        ErrSuperseded,
	KindCanceled:          ErrCanceled,
	KindListener:          ErrListener,
}

// AuthError is the failure side of a Result.
type AuthError struct {
	Platform platform.ID
	Kind     Kind

	// Reason is a short human-readable reason. For denials it is the
	// platform's error code verbatim, e.g. "access_denied".
	Reason string

	// Description is the platform's error_description, if any.
	Description string

	// Err is the underlying transport or protocol error, if any.
	Err error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s authentication failed (%s): %s", e.Platform, e.Kind, e.Reason)
	if e.Description != "" {
		msg += " - " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *AuthError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// AsAuthError extracts an *AuthError from err.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
