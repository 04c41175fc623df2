// Package grpcmw provides pure gRPC interceptors for request
// authentication.
//
// Use this package for gRPC services that do NOT use Kratos.
// For Kratos-based services, use kratosmw instead — Kratos middleware
// handles both HTTP and gRPC transports transparently.
//
// All interceptors accept an *auth.Client and go through its verifier
// registry and identity resolver.
package grpcmw

import (
	"context"
	"strings"

	auth "github.com/chimerakang/auth-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultAuthType is used when the request metadata does not name a
// verifier via the auth-provider key.
const DefaultAuthType = "cognito"

// AuthOption configures auth interceptor behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedMethods map[string]bool
}

// WithExcludedMethods sets gRPC methods that skip authentication.
// Methods should be fully qualified (e.g. "/package.Service/Method").
func WithExcludedMethods(methods ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, m := range methods {
			cfg.excludedMethods[m] = true
		}
	}
}

// UnaryAuth returns a gRPC unary server interceptor that resolves the
// request identity from the bearer token in metadata. A request without
// a token proceeds anonymously; an invalid token is rejected with
// Unauthenticated. Handlers gate access via auth.RequireAuth and
// auth.HasRole on the context.
func UnaryAuth(client *auth.Client, opts ...AuthOption) grpc.UnaryServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, client)
		if err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamAuth returns a gRPC stream server interceptor with the same
// behavior as UnaryAuth.
func StreamAuth(client *auth.Client, opts ...AuthOption) grpc.StreamServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), client)
		if err != nil {
			return err
		}

		wrapped := &wrappedStream{ServerStream: ss, ctx: ctx}
		return handler(srv, wrapped)
	}
}

// UnaryRequireAuth returns a gRPC unary server interceptor that rejects
// anonymous requests with Unauthenticated. Chain after UnaryAuth.
func UnaryRequireAuth() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !auth.IsAuthenticated(ctx) {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return handler(ctx, req)
	}
}

// UnaryRequireRoles returns a gRPC unary server interceptor that rejects
// requests whose identity carries none of the given roles. Chain after
// UnaryAuth.
func UnaryRequireRoles(roles ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := auth.IdentityFromContext(ctx)
		if !id.IsAuthenticated() {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		if !id.HasAnyRole(roles...) {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		return handler(ctx, req)
	}
}

// --- internal helpers ---

func authenticate(ctx context.Context, client *auth.Client) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}

	token := extractBearerFromMD(md)
	if token == "" {
		// Anonymous request: gating is the method's decision
		return ctx, nil
	}

	id, err := client.Authenticate(ctx, token, authTypeFromMD(md))
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "invalid token")
	}

	return auth.WithIdentity(ctx, id), nil
}

func extractBearerFromMD(md metadata.MD) string {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	parts := strings.SplitN(vals[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func authTypeFromMD(md metadata.MD) string {
	if vals := md.Get("auth-provider"); len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	return DefaultAuthType
}

// wrappedStream wraps grpc.ServerStream to override Context().
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
