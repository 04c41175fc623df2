package auth

import (
	"context"
	"time"
)

// TokenVerifier validates a raw bearer token and extracts its claims.
// Implementations: cognito/ (JWT via JWKS), fake/ (testing).
//
// Verification is all-or-nothing: a non-nil DecodedToken is only returned
// when every check (signature, issuer, client, token use) passed.
type TokenVerifier interface {
	// Verify validates the token and returns the verified claims.
	Verify(ctx context.Context, token string) (*DecodedToken, error)
}

// ClientRegistry supplies the federated app-client identifiers that are
// accepted in addition to the primary configured client id.
//
// A nil registry, or one returning an empty list, means only the primary
// client id matches — verification stays fail-closed.
type ClientRegistry interface {
	// FederatedClientIDs returns the currently registered federated
	// client identifiers.
	FederatedClientIDs(ctx context.Context) ([]string, error)
}

// UserStore is the external current-user store the identity resolver
// writes its bookkeeping to. Upsert semantics: create the record on first
// sighting of a subject, update only the last-login stamp afterwards.
type UserStore interface {
	// UpsertLastLogin records that subject was seen at the given time.
	// Must be idempotent under repeated calls with the same subject.
	UpsertLastLogin(ctx context.Context, subject string, at time.Time) error
}

// IdentityResolver turns a verified token into an application identity.
// Implementations: resolver/ (store-backed).
type IdentityResolver interface {
	// Resolve returns the identity for the token, or the anonymous
	// identity (nil) when decoded is nil. Bookkeeping failures are
	// handled internally and never block resolution.
	Resolve(ctx context.Context, decoded *DecodedToken) *Identity
}

// OAuth2TokenExchanger exchanges OAuth2 client credentials for access
// tokens. Used by machine-to-machine callers that authenticate with a
// client id and secret instead of a user session. Implementations should
// handle token caching and refresh. Implementations: oauth2/.
type OAuth2TokenExchanger interface {
	// ExchangeToken requests a new access token using client credentials.
	ExchangeToken(ctx context.Context, scopes []string) (*OAuth2Token, error)

	// GetCachedToken returns a valid cached token, or fetches a new one
	// when the cached token is missing or near expiry.
	GetCachedToken(ctx context.Context) (string, error)
}

// Provider is the identity-provider conversation used by the client-side
// login flow. Implementations: cognito/ (Cognito IdP HTTP API), fake/.
//
// Every call has exactly one completion; there are no fire-and-forget
// operations. Timeouts are layered on via ctx by the caller.
type Provider interface {
	// Authenticate performs password authentication, returning either a
	// session or a pending challenge. Classified failures are returned
	// as *LoginError.
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)

	// Refresh exchanges a refresh token for a renewed session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	// SignOut invalidates the session's tokens at the provider.
	SignOut(ctx context.Context, accessToken string) error

	// SignUp registers a new account with the given credentials.
	SignUp(ctx context.Context, creds Credentials) error

	// ForgotPassword starts the provider's password-reset flow,
	// delivering a confirmation code to the user.
	ForgotPassword(ctx context.Context, email string) error

	// ConfirmForgotPassword completes a password reset with the code
	// delivered by ForgotPassword.
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error

	// ChangePassword rotates the password of a signed-in user.
	ChangePassword(ctx context.Context, accessToken, oldPassword, newPassword string) error
}
