// Package session owns the current session's tokens: retrieval for
// outgoing requests, silent renewal, and logout.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/metrics"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshSkew is how close to expiry the access token may get
// before Token renews it.
const DefaultRefreshSkew = 1 * time.Minute

// Manager holds at most one session per logical user agent. It
// implements login.SessionSink: the state machine deposits sessions here
// and never retains them itself.
type Manager struct {
	provider    auth.Provider
	logger      *slog.Logger
	metrics     *metrics.Metrics
	refreshSkew time.Duration
	onExpired   func()

	mu   sync.Mutex
	sess *auth.Session
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics wires renewal counters.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithRefreshSkew sets how early before expiry renewal kicks in.
func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) { m.refreshSkew = d }
}

// WithExpiredFunc registers a callback invoked after a failed renewal
// clears the session. Typically wired to the login machine's Reset so
// its state follows the session to Unauthenticated.
func WithExpiredFunc(fn func()) Option {
	return func(m *Manager) { m.onExpired = fn }
}

// NewManager creates an empty session manager. provider may be nil, in
// which case no silent renewal or provider-side sign-out is attempted.
func NewManager(provider auth.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:    provider,
		logger:      slog.Default(),
		refreshSkew: DefaultRefreshSkew,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store takes ownership of an established session.
func (m *Manager) Store(_ context.Context, s *auth.Session) {
	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()
}

// Session returns a copy of the held session, or nil.
func (m *Manager) Session() *auth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	s := *m.sess
	return &s
}

// Token returns the current access token for an outgoing request,
// silently renewing it when it is at or near expiry. If no session is
// held, or renewal fails, it returns auth.ErrNotAuthenticated — after a
// failed renewal the session is cleared, so subsequent calls keep
// failing until the next login.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()

	if m.sess == nil {
		m.mu.Unlock()
		return "", auth.ErrNotAuthenticated
	}

	if time.Now().Before(m.sess.ExpiresAt.Add(-m.refreshSkew)) {
		token := m.sess.AccessToken
		m.mu.Unlock()
		return token, nil
	}

	if m.provider == nil || m.sess.RefreshToken == "" {
		m.sess = nil
		m.mu.Unlock()
		m.notifyExpired()
		return "", auth.ErrNotAuthenticated
	}

	refreshToken := m.sess.RefreshToken
	renewed, err := m.provider.Refresh(ctx, refreshToken)
	if err != nil {
		m.sess = nil
		m.mu.Unlock()
		m.metrics.RecordTokenRefresh("error")
		m.logger.WarnContext(ctx, "session renewal failed, clearing session", "error", err)
		m.notifyExpired()
		return "", auth.ErrNotAuthenticated
	}

	m.sess = renewed
	token := renewed.AccessToken
	m.mu.Unlock()
	m.metrics.RecordTokenRefresh("ok")
	return token, nil
}

// CurrentIdentity returns a client-side view of who is signed in, or nil
// when no session is held.
//
// The identity is read from the held id token without signature
// verification: the client trusts the session its own provider issued.
// It carries no verified DecodedToken and must never be used as an
// authorization input — servers verify the access token themselves.
func (m *Manager) CurrentIdentity() *auth.Identity {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()

	if sess == nil {
		return nil
	}

	raw := sess.IDToken
	if raw == "" {
		raw = sess.AccessToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}

	id := &auth.Identity{}
	id.Subject, _ = claims["sub"].(string)
	if groups, ok := claims["cognito:groups"].([]any); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	if !id.IsAuthenticated() {
		return nil
	}
	return id
}

// Logout clears the local session unconditionally, after a best-effort
// provider-side sign-out. A provider failure is logged, never surfaced:
// the user agent is signed out locally no matter what.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	m.mu.Unlock()

	if sess == nil || m.provider == nil {
		return
	}
	if err := m.provider.SignOut(ctx, sess.AccessToken); err != nil {
		m.logger.WarnContext(ctx, "provider sign-out failed, local session cleared anyway", "error", err)
	}
}

// notifyExpired runs outside the session lock; the callback usually
// reaches back into the login machine.
func (m *Manager) notifyExpired() {
	if m.onExpired != nil {
		m.onExpired()
	}
}
