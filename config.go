package auth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the provider configuration shared by the verifier and the
// provider client. PoolID, Region and AppClientID are required; their
// absence is a startup error, never a per-request failure.
type Config struct {
	// PoolID is the identity-pool identifier (e.g. "us-east-1_AbCdEfGhI").
	PoolID string `env:"COGNITO_POOL_ID"`

	// Region is the provider region (e.g. "us-east-1").
	Region string `env:"COGNITO_REGION"`

	// AppClientID is the application-client identifier tokens must be
	// issued for.
	AppClientID string `env:"COGNITO_APP_CLIENT_ID"`

	// Endpoint overrides the provider API endpoint. Default:
	// https://cognito-idp.<region>.amazonaws.com/. Used by tests.
	Endpoint string `env:"COGNITO_ENDPOINT"`

	// IssuerURL overrides the expected token issuer. Default:
	// https://cognito-idp.<region>.amazonaws.com/<pool-id>.
	IssuerURL string `env:"COGNITO_ISSUER_URL"`

	// JWKSURL overrides the key-set endpoint. Default:
	// <issuer>/.well-known/jwks.json.
	JWKSURL string `env:"COGNITO_JWKS_URL"`

	// HTTPTimeout bounds individual provider HTTP calls. Default: 10s.
	HTTPTimeout time.Duration `env:"COGNITO_HTTP_TIMEOUT"`
}

// Validate checks that all required parameters are present.
func (c Config) Validate() error {
	if c.PoolID == "" || c.Region == "" || c.AppClientID == "" {
		return fmt.Errorf("%w: COGNITO_POOL_ID, COGNITO_REGION and COGNITO_APP_CLIENT_ID must all be set", ErrMissingConfiguration)
	}
	return nil
}

// Issuer returns the expected token issuer for this pool.
func (c Config) Issuer() string {
	if c.IssuerURL != "" {
		return c.IssuerURL
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.PoolID)
}

// KeySetURL returns the well-known JWKS endpoint for this pool.
func (c Config) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.Issuer() + "/.well-known/jwks.json"
}

// APIEndpoint returns the provider API endpoint.
func (c Config) APIEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", c.Region)
}

// ConfigFromEnv loads and validates configuration from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("auth: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
