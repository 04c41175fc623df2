package auth

import "context"

type ctxKey string

const ctxKeyIdentity ctxKey = "auth_identity"

// WithIdentity stores the request identity in the context. Identity is
// always threaded explicitly through the request pipeline; there is no
// ambient current-user state anywhere in the SDK.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext extracts the request identity from the context.
// Returns nil (the anonymous identity) if none was stored.
func IdentityFromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return v
}

// IsAuthenticated reports whether the context carries an authenticated identity.
func IsAuthenticated(ctx context.Context) bool {
	return IdentityFromContext(ctx).IsAuthenticated()
}

// HasRole reports whether the context identity carries the named role.
func HasRole(ctx context.Context, role string) bool {
	return IdentityFromContext(ctx).HasRole(role)
}

// RequireAuth returns ErrPermissionDenied unless the context carries an
// authenticated identity.
func RequireAuth(ctx context.Context) error {
	return IdentityFromContext(ctx).RequireAuth()
}
