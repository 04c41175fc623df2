package auth

import (
	"errors"
	"fmt"
)

// Verification errors. All of them surface to callers as "unauthenticated";
// none is retried automatically, since a bad token does not become good on
// retry. Raw token material must never appear in logs or error text.
var (
	// ErrSignatureInvalid means the token's cryptographic signature did
	// not verify, or it declared an algorithm outside the allow-list.
	ErrSignatureInvalid = errors.New("auth: token signature invalid")

	// ErrKeyNotFound means no signing key with the token's kid exists,
	// even after a key-set refresh.
	ErrKeyNotFound = errors.New("auth: signing key not found")

	// ErrTokenExpired means the token's exp claim is in the past.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrIssuerMismatch means the iss claim did not exactly equal the
	// expected issuer.
	ErrIssuerMismatch = errors.New("auth: token issuer mismatch")

	// ErrClientMismatch means the audience/client claim matched neither
	// the configured app client nor any federated client.
	ErrClientMismatch = errors.New("auth: token client mismatch")

	// ErrTokenUseMismatch means the token was not minted for API access
	// (token_use != "access").
	ErrTokenUseMismatch = errors.New("auth: token use mismatch")
)

// Infrastructure and configuration errors.
var (
	// ErrKeySetUnavailable means the key set could not be fetched or
	// parsed. Transient: the next verification attempt retries, and
	// verification fails closed in the meantime.
	ErrKeySetUnavailable = errors.New("auth: key set unavailable")

	// ErrMissingConfiguration means a required configuration parameter
	// (pool id, region, app client id) is absent. Fatal at startup.
	ErrMissingConfiguration = errors.New("auth: missing configuration")

	// ErrUnsupportedAuthType means no verifier is registered for the
	// request's auth-type tag. Misconfiguration, not user error.
	ErrUnsupportedAuthType = errors.New("auth: unsupported auth type")
)

// Client-side session and login-flow errors.
var (
	// ErrNotAuthenticated means no usable session is held.
	ErrNotAuthenticated = errors.New("auth: not authenticated")

	// ErrPermissionDenied is returned by RequireAuth for anonymous callers.
	ErrPermissionDenied = errors.New("auth: you do not have permission to do that")

	// ErrLoginInProgress means another login transition is already in
	// flight on the same state machine.
	ErrLoginInProgress = errors.New("auth: login already in progress")

	// ErrStaleChallenge means a challenge continuation was invoked twice,
	// or after a newer login attempt superseded it.
	ErrStaleChallenge = errors.New("auth: challenge no longer valid")
)

// LoginFailure classifies provider-side login and challenge failures so
// callers can react appropriately (inline message, redirect to password
// reset, retry later).
type LoginFailure int

const (
	// FailureUnknown covers unclassified provider rejections.
	FailureUnknown LoginFailure = iota

	// FailureBadCredentials: wrong password or unknown user. The two are
	// deliberately presented the same way; Code retains the distinction.
	FailureBadCredentials

	// FailurePasswordResetRequired: the account is flagged for an
	// administrative password reset; the caller should redirect to the
	// reset flow rather than re-prompt for the password.
	FailurePasswordResetRequired

	// FailureInvalidCode: the one-time MFA code was wrong or expired.
	FailureInvalidCode

	// FailureUserNotConfirmed: the account exists but sign-up was never
	// confirmed.
	FailureUserNotConfirmed

	// FailureProviderUnavailable: transport error or 5xx from the
	// provider. Retryable.
	FailureProviderUnavailable
)

func (f LoginFailure) String() string {
	switch f {
	case FailureBadCredentials:
		return "bad_credentials"
	case FailurePasswordResetRequired:
		return "password_reset_required"
	case FailureInvalidCode:
		return "invalid_code"
	case FailureUserNotConfirmed:
		return "user_not_confirmed"
	case FailureProviderUnavailable:
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// LoginError is a classified login or challenge failure from the provider.
type LoginError struct {
	Reason LoginFailure

	// Code is the provider's error type (e.g. "NotAuthorizedException").
	Code string

	// Message is the provider's human-readable message.
	Message string
}

func (e *LoginError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: login failed (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("auth: login failed (%s)", e.Reason)
}

// Retryable reports whether the same request could plausibly succeed later.
func (e *LoginError) Retryable() bool {
	return e.Reason == FailureProviderUnavailable
}

// AsLoginError unwraps err into a *LoginError, or returns nil.
func AsLoginError(err error) *LoginError {
	var le *LoginError
	if errors.As(err, &le) {
		return le
	}
	return nil
}
