package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry dispatches raw tokens to the verifier registered for their
// auth-type tag. New provider verifiers can be registered without touching
// call sites.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	decoders map[string]TokenVerifier
}

// NewRegistry creates a registry with the given initial decoders.
func NewRegistry(decoders map[string]TokenVerifier, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   slog.Default(),
		decoders: make(map[string]TokenVerifier, len(decoders)),
	}
	for authType, v := range decoders {
		r.decoders[authType] = v
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a structured logger for the registry.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// Register adds or replaces the verifier for an auth type.
func (r *Registry) Register(authType string, v TokenVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[authType] = v
}

// Decode verifies the raw token with the verifier registered for authType,
// propagating the verifier's result unchanged. An unknown authType is a
// configuration fault, not a user error, and is logged accordingly.
func (r *Registry) Decode(ctx context.Context, token, authType string) (*DecodedToken, error) {
	r.mu.RLock()
	v, ok := r.decoders[authType]
	r.mu.RUnlock()

	if !ok {
		r.logger.ErrorContext(ctx, "no decoder registered for auth type", "auth_type", authType)
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAuthType, authType)
	}
	return v.Verify(ctx, token)
}
