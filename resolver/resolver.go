// Package resolver turns verified tokens into application identities,
// keeping a last-seen record per subject in an external user store.
package resolver

import (
	"context"
	"log/slog"
	"time"

	auth "github.com/chimerakang/auth-go"
)

// Resolver implements auth.IdentityResolver backed by an auth.UserStore.
type Resolver struct {
	store  auth.UserStore
	logger *slog.Logger
	now    func() time.Time
}

// compile-time check
var _ auth.IdentityResolver = (*Resolver)(nil)

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a resolver writing bookkeeping to store. A nil store is
// allowed; resolution then skips bookkeeping entirely.
func New(store auth.UserStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the identity for a verified token. A nil token yields
// the anonymous identity (nil) with no store write — callers treat that
// as "anonymous", not as a failure.
//
// The last-login upsert is bookkeeping: if it fails the failure is logged
// and the identity is returned anyway. An authorization decision is never
// blocked by a non-critical write.
func (r *Resolver) Resolve(ctx context.Context, decoded *auth.DecodedToken) *auth.Identity {
	if decoded == nil {
		r.logger.DebugContext(ctx, "no decoded token provided, resolving anonymous")
		return nil
	}

	if r.store != nil {
		if err := r.store.UpsertLastLogin(ctx, decoded.Subject, r.now()); err != nil {
			r.logger.WarnContext(ctx, "user record upsert failed",
				"subject", decoded.Subject, "error", err)
		}
	}

	return &auth.Identity{
		Subject: decoded.Subject,
		Roles:   decoded.Groups,
		Token:   decoded,
	}
}
