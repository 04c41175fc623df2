// Package cognito implements the auth-go interfaces against an AWS
// Cognito user pool: server-side token verification through the pool's
// JWKS endpoint, and the client-side login conversation over the Cognito
// Identity Provider JSON API.
package cognito

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/jwks"
	"github.com/chimerakang/auth-go/metrics"
	"github.com/golang-jwt/jwt/v5"
)

// allowedAlgorithms is the explicit signing-algorithm allow-list. Cognito
// signs with RS256 only; everything else — including "none" — is rejected
// before any claim is trusted.
var allowedAlgorithms = []string{"RS256"}

// Verifier implements auth.TokenVerifier for Cognito access tokens.
type Verifier struct {
	cfg      auth.Config
	keys     *jwks.Cache
	registry auth.ClientRegistry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	parser   *jwt.Parser
}

// compile-time check
var _ auth.TokenVerifier = (*Verifier)(nil)

// VerifierOption configures the Verifier.
type VerifierOption func(*Verifier)

// WithKeySet sets the signing-key cache. Default: a cache backed by the
// pool's well-known JWKS endpoint.
func WithKeySet(k *jwks.Cache) VerifierOption {
	return func(v *Verifier) { v.keys = k }
}

// WithClientRegistry sets the federated app-client registry consulted
// when the primary client id does not match. A nil registry means only
// the primary client id is accepted.
func WithClientRegistry(r auth.ClientRegistry) VerifierOption {
	return func(v *Verifier) { v.registry = r }
}

// WithVerifierLogger sets a structured logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = l }
}

// WithVerifierMetrics wires verification counters.
func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier creates a Cognito token verifier for the configured pool.
func NewVerifier(cfg auth.Config, opts ...VerifierOption) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Verifier{
		cfg:    cfg,
		logger: slog.Default(),
		parser: jwt.NewParser(
			jwt.WithValidMethods(allowedAlgorithms),
			jwt.WithExpirationRequired(),
		),
	}
	for _, o := range opts {
		o(v)
	}
	if v.keys == nil {
		v.keys = jwks.NewCache(cfg.KeySetURL())
	}
	return v, nil
}

// KeySet returns the verifier's signing-key cache, for operational
// invalidation.
func (v *Verifier) KeySet() *jwks.Cache { return v.keys }

// Verify validates a raw access token: signature against the pool's
// signing keys (RS256 only), exact issuer match, client id against the
// app client or the federated registry, and token_use == "access".
// All-or-nothing: no partial result is ever returned.
func (v *Verifier) Verify(ctx context.Context, raw string) (*auth.DecodedToken, error) {
	v.metrics.RecordVerification()

	// The key id comes from the unverified header; no claim is trusted
	// until the signature checks out against that key.
	token, err := v.parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token header missing kid", auth.ErrKeyNotFound)
		}
		return v.keys.Get(ctx, kid)
	})
	if err != nil {
		return nil, v.fail(classifyParseError(err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, v.fail(auth.ErrSignatureInvalid)
	}

	issuer, _ := claims["iss"].(string)
	if issuer != v.cfg.Issuer() {
		return nil, v.fail(auth.ErrIssuerMismatch)
	}

	clientID := clientIDClaim(claims)
	if clientID != v.cfg.AppClientID {
		ok, err := v.federatedMatch(ctx, clientID)
		if err != nil {
			v.logger.WarnContext(ctx, "federated client lookup failed", "error", err)
		}
		if !ok {
			return nil, v.fail(auth.ErrClientMismatch)
		}
	}

	use, _ := claims["token_use"].(string)
	if auth.TokenUse(use) != auth.TokenUseAccess {
		return nil, v.fail(auth.ErrTokenUseMismatch)
	}

	return decodedFromClaims(claims), nil
}

// federatedMatch reports whether clientID appears in the federated
// allow-list. An absent registry or empty list means no match: the check
// fails closed.
func (v *Verifier) federatedMatch(ctx context.Context, clientID string) (bool, error) {
	if v.registry == nil || clientID == "" {
		return false, nil
	}
	ids, err := v.registry.FederatedClientIDs(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == clientID {
			return true, nil
		}
	}
	return false, nil
}

func (v *Verifier) fail(err error) error {
	v.metrics.RecordVerificationFailure(failureReason(err))
	return err
}

// classifyParseError maps golang-jwt parse failures onto the verification
// error taxonomy. Key-resolution failures pass through unchanged; every
// other parse or signature problem collapses to ErrSignatureInvalid so no
// detail about the rejected token leaks to the caller.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, auth.ErrKeyNotFound),
		errors.Is(err, auth.ErrKeySetUnavailable):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return auth.ErrTokenExpired
	default:
		return auth.ErrSignatureInvalid
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, auth.ErrKeySetUnavailable):
		return "keyset_unavailable"
	case errors.Is(err, auth.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, auth.ErrIssuerMismatch):
		return "issuer_mismatch"
	case errors.Is(err, auth.ErrClientMismatch):
		return "client_mismatch"
	case errors.Is(err, auth.ErrTokenUseMismatch):
		return "token_use_mismatch"
	default:
		return "signature_invalid"
	}
}

// clientIDClaim returns the audience claim of the token. Cognito access
// tokens carry client_id; id tokens carry aud.
func clientIDClaim(claims jwt.MapClaims) string {
	if id, ok := claims["client_id"].(string); ok {
		return id
	}
	if aud, ok := claims["aud"].(string); ok {
		return aud
	}
	return ""
}

// decodedFromClaims builds the verified DecodedToken. Only reached after
// every check has passed.
func decodedFromClaims(claims jwt.MapClaims) *auth.DecodedToken {
	d := &auth.DecodedToken{
		Raw: map[string]any(claims),
	}
	d.Subject, _ = claims["sub"].(string)
	d.Issuer, _ = claims["iss"].(string)
	d.ClientID = clientIDClaim(claims)
	if use, ok := claims["token_use"].(string); ok {
		d.TokenUse = auth.TokenUse(use)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		d.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		d.IssuedAt = iat.Time
	}
	d.Groups = groupsClaim(claims)
	return d
}

// groupsClaim extracts the cognito:groups claim. An absent or empty claim
// yields an empty role set, which is valid.
func groupsClaim(claims jwt.MapClaims) []string {
	raw, ok := claims["cognito:groups"].([]any)
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups
}

// StaticClientRegistry is a fixed federated-client allow-list, for pools
// whose app-client registry is known at startup.
type StaticClientRegistry []string

// FederatedClientIDs returns the configured identifiers.
func (r StaticClientRegistry) FederatedClientIDs(context.Context) ([]string, error) {
	return r, nil
}
