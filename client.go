// Package auth provides a framework-agnostic Go SDK for bearer-token
// authentication against a hosted identity provider.
//
// The SDK covers both sides of the trust boundary: server-side token
// verification against the provider's rotating key set (with issuer,
// client and token-use checks), and the client-side login flow that
// negotiates password authentication, forced password rotation and
// one-time-code challenges before handing a session to the session
// manager. Concrete implementations are injected via Option functions,
// keeping the core independent of any specific provider.
//
// Example usage with the Cognito verifier:
//
//	cfg, err := auth.ConfigFromEnv()
//	verifier, err := cognito.NewVerifier(cfg)
//	client, err := auth.NewClient(cfg,
//	    auth.WithVerifier("cognito", verifier),
//	    auth.WithIdentityResolver(resolver.New(store)),
//	)
package auth

import (
	"context"
	"io"
	"log/slog"
)

// Client is the main entry point for authentication operations.
// Implementations are injected via Option functions.
type Client struct {
	config   Config
	logger   *slog.Logger
	registry *Registry
	resolver IdentityResolver
	provider Provider
	oauth2   OAuth2TokenExchanger
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithVerifier registers a token verifier under the given auth-type tag.
func WithVerifier(authType string, v TokenVerifier) Option {
	return func(c *Client) { c.registry.Register(authType, v) }
}

// WithIdentityResolver sets the identity resolution implementation.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithProvider sets the client-side identity-provider implementation.
func WithProvider(p Provider) Option {
	return func(c *Client) { c.provider = p }
}

// WithOAuth2Exchanger sets the machine-to-machine token exchanger.
func WithOAuth2Exchanger(e OAuth2TokenExchanger) Option {
	return func(c *Client) { c.oauth2 = e }
}

// NewClient creates a new authentication client with the given
// configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		logger: slog.Default(),
	}
	c.registry = NewRegistry(nil)
	for _, o := range opts {
		o(c)
	}
	c.registry.logger = c.logger
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Decoders returns the verifier registry.
func (c *Client) Decoders() *Registry { return c.registry }

// Resolver returns the identity resolver, or nil if not configured.
func (c *Client) Resolver() IdentityResolver { return c.resolver }

// Provider returns the identity-provider client, or nil if not configured.
func (c *Client) Provider() Provider { return c.provider }

// OAuth2 returns the machine-to-machine token exchanger, or nil if not
// configured.
func (c *Client) OAuth2() OAuth2TokenExchanger { return c.oauth2 }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Authenticate decodes and resolves a bearer token in one step: registry
// dispatch, verification, then identity resolution. This is the pipeline
// middleware uses per request. Verification failures surface as
// "unauthenticated"; bookkeeping failures inside resolution do not.
func (c *Client) Authenticate(ctx context.Context, token, authType string) (*Identity, error) {
	decoded, err := c.registry.Decode(ctx, token, authType)
	if err != nil {
		return nil, err
	}
	if c.resolver == nil {
		return &Identity{Subject: decoded.Subject, Roles: decoded.Groups, Token: decoded}, nil
	}
	return c.resolver.Resolve(ctx, decoded), nil
}

// Close releases all resources held by the client. Any injected
// implementation that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{c.resolver, c.provider, c.oauth2}
	c.registry.mu.RLock()
	for _, v := range c.registry.decoders {
		closers = append(closers, v)
	}
	c.registry.mu.RUnlock()

	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
