package auth

import (
	"context"
	"time"
)

// TokenUse is the declared purpose of a token, carried in the token_use claim.
type TokenUse string

const (
	// TokenUseAccess marks tokens that authorize API calls.
	TokenUseAccess TokenUse = "access"

	// TokenUseID marks tokens that only carry identity information.
	// They are rejected by server-side verification.
	TokenUseID TokenUse = "id"
)

// DecodedToken holds the verified claims of a bearer token.
//
// A DecodedToken is only ever produced by a successful TokenVerifier call.
// Nothing else in the SDK constructs one, and nothing should: a DecodedToken
// built by hand has not been verified.
type DecodedToken struct {
	Subject   string
	Issuer    string
	ClientID  string
	TokenUse  TokenUse
	Groups    []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	// Raw holds the full claims body for callers that need
	// provider-specific claims beyond the standard set.
	Raw map[string]any
}

// Identity is the application-level identity derived from a verified token.
// Roles come from the provider's group claim; an absent claim yields an
// empty role set, which is a valid (role-less) identity.
type Identity struct {
	Subject string
	Roles   []string

	// Token is the verified token this identity was derived from.
	// Nil for identities that did not pass through server-side
	// verification (e.g. client-side session introspection).
	Token *DecodedToken
}

// IsAuthenticated reports whether this identity belongs to a verified user.
// Safe to call on a nil Identity (the anonymous identity).
func (id *Identity) IsAuthenticated() bool {
	return id != nil && id.Subject != ""
}

// HasRole reports whether the identity carries the named role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the named roles.
func (id *Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

// RequireAuth returns ErrPermissionDenied unless the identity is authenticated.
func (id *Identity) RequireAuth() error {
	if !id.IsAuthenticated() {
		return ErrPermissionDenied
	}
	return nil
}

// UserRecord is the bookkeeping row kept for each subject the resolver
// has seen. It is created on first sighting and only LastLoginAt is
// touched afterwards; records are never deleted by this SDK.
type UserRecord struct {
	Subject     string
	LastLoginAt time.Time
}

// Credentials holds a user's login input. Ephemeral: held only for the
// duration of a login attempt and never persisted or logged.
type Credentials struct {
	Email    string
	Password string
}

// Session is the token bundle issued by the provider after a completed
// login. Owned by session.Manager once established.
type Session struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the session's access token is still usable.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && time.Now().Before(s.ExpiresAt)
}

// AuthState is the client-side login state.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAwaitingChallenge
	StateAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ChallengeKind identifies an intermediate authentication step the
// provider requires before it will issue a session.
type ChallengeKind string

const (
	// ChallengeNewPassword means the user must set a new password
	// (forced rotation) before login completes.
	ChallengeNewPassword ChallengeKind = "NEW_PASSWORD_REQUIRED"

	// ChallengeTotp means the user must supply a one-time code from
	// their software token.
	ChallengeTotp ChallengeKind = "SOFTWARE_TOKEN_MFA"
)

// AuthResult is the outcome of a provider authentication round:
// exactly one of Session or Challenge is set.
type AuthResult struct {
	Session   *Session
	Challenge *ProviderChallenge
}

// ProviderChallenge is a pending challenge tied to an in-flight provider
// conversation. Answer completes the round with the user's response
// (new password or one-time code) and may yield a session or a further
// challenge. The login state machine wraps it with single-use semantics;
// callers should not invoke Answer directly.
type ProviderChallenge struct {
	Kind ChallengeKind

	// Answer submits the user's response to the provider conversation
	// this challenge belongs to.
	Answer func(ctx context.Context, answer string) (*AuthResult, error)
}

// OAuth2Token is an access token obtained through the client-credentials
// grant (machine-to-machine callers).
type OAuth2Token struct {
	AccessToken string
	TokenType   string // "Bearer"
	ExpiresIn   int32
	ExpiresAt   time.Time
	Scope       string
}
