// Package kratosmw provides Kratos framework middleware for request
// authentication. Works transparently with both Kratos HTTP and gRPC
// transports.
//
// All middleware functions accept an *auth.Client and go through its
// verifier registry and identity resolver.
package kratosmw

import (
	"context"
	"strings"

	auth "github.com/chimerakang/auth-go"
	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// DefaultAuthType is used when the request does not name a verifier via
// the Auth-Provider header.
const DefaultAuthType = "cognito"

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedOperations map[string]bool
}

// WithExcludedOperations sets operations that skip authentication (e.g. health checks).
// Operations are matched by transport.Operation() (gRPC method or HTTP route pattern).
func WithExcludedOperations(ops ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, op := range ops {
			cfg.excludedOperations[op] = true
		}
	}
}

// Auth returns Kratos middleware that resolves the request identity from
// the bearer token. A request without a token proceeds anonymously; an
// invalid token is rejected with errors.Unauthorized. Handlers read the
// identity via auth.IdentityFromContext.
func Auth(client *auth.Client, opts ...AuthOption) middleware.Middleware {
	cfg := &authConfig{excludedOperations: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}

			if cfg.excludedOperations[tr.Operation()] {
				return handler(ctx, req)
			}

			token := extractBearerToken(tr.RequestHeader().Get("Authorization"))
			if token == "" {
				return handler(ctx, req)
			}

			id, err := client.Authenticate(ctx, token, authType(tr))
			if err != nil {
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid token")
			}

			return handler(auth.WithIdentity(ctx, id), req)
		}
	}
}

// RequireAuth returns Kratos middleware that rejects anonymous requests
// with errors.Unauthorized. Chain after Auth.
func RequireAuth() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if !auth.IsAuthenticated(ctx) {
				return nil, errors.Unauthorized("UNAUTHORIZED", "authentication required")
			}
			return handler(ctx, req)
		}
	}
}

// RequireRoles returns Kratos middleware that rejects requests whose
// identity carries none of the given roles. Chain after Auth.
func RequireRoles(roles ...string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			id := auth.IdentityFromContext(ctx)
			if !id.IsAuthenticated() {
				return nil, errors.Unauthorized("UNAUTHORIZED", "authentication required")
			}
			if !id.HasAnyRole(roles...) {
				return nil, errors.Forbidden("FORBIDDEN", "permission denied")
			}
			return handler(ctx, req)
		}
	}
}

// OAuth2ClientCredentials returns Kratos client-side middleware that
// injects an OAuth2 Bearer token into outgoing requests using client
// credentials. The token is cached and refreshed before expiry.
func OAuth2ClientCredentials(client *auth.Client) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			exchanger := client.OAuth2()
			if exchanger == nil {
				return nil, errors.InternalServer("INTERNAL", "oauth2 exchanger not configured")
			}

			token, err := exchanger.GetCachedToken(ctx)
			if err != nil {
				return nil, errors.Unauthorized("UNAUTHORIZED", "failed to obtain oauth2 token")
			}

			tr, ok := transport.FromClientContext(ctx)
			if ok {
				tr.RequestHeader().Set("Authorization", "Bearer "+token)
			}

			return handler(ctx, req)
		}
	}
}

// --- internal helpers ---

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func authType(tr transport.Transporter) string {
	if t := tr.RequestHeader().Get("Auth-Provider"); t != "" {
		return t
	}
	return DefaultAuthType
}
