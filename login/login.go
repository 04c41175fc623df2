// Package login drives the client-side authentication flow: credential
// submission, challenge resolution (forced password rotation, one-time
// codes) and terminal session establishment.
//
// A Machine holds the login state for one logical user agent. Provider
// conversations behind a pending challenge are stateful and
// order-sensitive, so only one transition may be in flight at a time; a
// concurrent attempt is rejected with auth.ErrLoginInProgress rather
// than interleaved.
package login

import (
	"context"
	"log/slog"
	"sync"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/audit"
	"github.com/chimerakang/auth-go/metrics"
)

// SessionSink receives the session produced by a completed login and the
// logout signal. Implementations: session.Manager.
type SessionSink interface {
	// Store takes ownership of an established session.
	Store(ctx context.Context, s *auth.Session)

	// Logout releases the held session, best-effort signing out at the
	// provider. Local state is always cleared.
	Logout(ctx context.Context)
}

// Request is one login attempt. Either Email+Password, or Session to
// resume a previously cached session without re-authenticating.
type Request struct {
	Email    string
	Password string

	// Session, when still valid, short-circuits authentication: the
	// machine transitions straight to Authenticated with it.
	Session *auth.Session
}

// Outcome is the result of a login transition: exactly one of Session or
// Challenge is set. A Session here has already been handed to the sink.
type Outcome struct {
	Session   *auth.Session
	Challenge *Challenge
}

// Machine is the client-side authentication state machine.
type Machine struct {
	provider auth.Provider
	sink     SessionSink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *audit.Logger

	mu        sync.Mutex
	state     auth.AuthState
	gen       uint64 // bumped on every new attempt; stale continuations check it
	challenge *Challenge
}

// Option configures the Machine.
type Option func(*Machine)

// WithSink sets the session sink. Without one, completed sessions are
// returned in the Outcome but not retained anywhere.
func WithSink(s SessionSink) Option {
	return func(m *Machine) { m.sink = s }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithMetrics wires login attempt counters.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mx }
}

// WithAudit wires audit events for login, challenge and logout actions.
func WithAudit(a *audit.Logger) Option {
	return func(m *Machine) { m.audit = a }
}

// New creates a state machine in the Unauthenticated state.
func New(provider auth.Provider, opts ...Option) *Machine {
	m := &Machine{
		provider: provider,
		logger:   slog.Default(),
		state:    auth.StateUnauthenticated,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current login state.
func (m *Machine) State() auth.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Challenge returns the currently pending challenge, or nil. After a
// failed Resume the pending challenge is a fresh continuation; the one
// that failed is spent.
func (m *Machine) Challenge() *Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challenge
}

// Login starts a new authentication attempt, superseding any pending
// challenge from an earlier one. It returns a session outcome, a
// challenge outcome, or a classified error (*auth.LoginError) leaving the
// machine Unauthenticated.
func (m *Machine) Login(ctx context.Context, req Request) (*Outcome, error) {
	if !m.mu.TryLock() {
		return nil, auth.ErrLoginInProgress
	}
	defer m.mu.Unlock()

	// A new attempt invalidates any continuation issued before it.
	m.gen++
	m.challenge = nil
	m.state = auth.StateUnauthenticated

	// Session-reuse path: a still-valid cached session logs in without
	// touching the provider.
	if req.Session.Valid() {
		m.logger.DebugContext(ctx, "resuming cached session")
		return m.complete(ctx, req.Session, "session_resume"), nil
	}

	result, err := m.provider.Authenticate(ctx, auth.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		m.metrics.RecordLogin("failure")
		m.auditEvent(ctx, audit.ActionLogin, "failure", err)
		return nil, err
	}
	return m.outcome(ctx, result, audit.ActionLogin)
}

// outcome applies a provider auth result to the machine. Caller holds mu.
func (m *Machine) outcome(ctx context.Context, result *auth.AuthResult, action string) (*Outcome, error) {
	if result.Session != nil {
		return m.complete(ctx, result.Session, action), nil
	}

	m.state = auth.StateAwaitingChallenge
	m.challenge = &Challenge{
		machine: m,
		gen:     m.gen,
		kind:    result.Challenge.Kind,
		answer:  result.Challenge.Answer,
	}
	m.metrics.RecordLogin("challenge")
	m.audit.Log(audit.Event{
		Action:    action,
		Result:    "challenge",
		Challenge: string(result.Challenge.Kind),
	})
	return &Outcome{Challenge: m.challenge}, nil
}

// complete transitions to Authenticated and hands the session to the
// sink. The machine does not retain the session. Caller holds mu.
func (m *Machine) complete(ctx context.Context, s *auth.Session, action string) *Outcome {
	m.state = auth.StateAuthenticated
	m.challenge = nil
	if m.sink != nil {
		m.sink.Store(ctx, s)
	}
	m.metrics.RecordLogin("authenticated")
	m.auditEvent(ctx, action, "success", nil)
	return &Outcome{Session: s}
}

// Logout transitions to Unauthenticated and releases the sink's session.
// Always succeeds locally, whatever the provider says.
func (m *Machine) Logout(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	m.challenge = nil
	m.state = auth.StateUnauthenticated
	m.mu.Unlock()

	// Sink notification happens outside the state lock: the sink talks
	// to the provider and may take a while.
	if m.sink != nil {
		m.sink.Logout(ctx)
	}
	m.auditEvent(ctx, audit.ActionLogout, "success", nil)
}

// Reset drops to Unauthenticated without touching the sink. Wired to the
// session manager's expiry notification: when silent renewal fails, the
// session is already gone and only the state needs to follow.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.gen++
	m.challenge = nil
	m.state = auth.StateUnauthenticated
	m.mu.Unlock()
}

func (m *Machine) auditEvent(ctx context.Context, action, result string, err error) {
	if m.audit == nil {
		return
	}
	e := audit.Event{
		Action:    action,
		Result:    result,
		RequestID: audit.RequestID(ctx),
	}
	if le := auth.AsLoginError(err); le != nil {
		e.Reason = le.Reason.String()
		e.Error = le.Error()
	} else if err != nil {
		e.Error = err.Error()
	}
	m.audit.Log(e)
}

// Challenge is a single-use continuation bound to the provider
// conversation of one specific login attempt. Resume may be called once:
// a second call, or a call after a newer login attempt superseded this
// challenge, fails with auth.ErrStaleChallenge.
type Challenge struct {
	machine *Machine
	gen     uint64
	kind    auth.ChallengeKind
	answer  func(ctx context.Context, answer string) (*auth.AuthResult, error)
	used    bool
}

// Kind identifies what the provider is asking for.
func (c *Challenge) Kind() auth.ChallengeKind { return c.kind }

// Resume submits the user's answer — the new password for
// ChallengeNewPassword, the one-time code for ChallengeTotp.
//
// On success the machine transitions to Authenticated (or to a further
// challenge, if the provider chains them). On a classified failure the
// machine stays in AwaitingChallenge and issues a fresh continuation,
// retrievable via Machine.Challenge; this one is spent either way.
func (c *Challenge) Resume(ctx context.Context, answer string) (*Outcome, error) {
	m := c.machine
	if !m.mu.TryLock() {
		return nil, auth.ErrLoginInProgress
	}
	defer m.mu.Unlock()

	if c.used || c.gen != m.gen || m.state != auth.StateAwaitingChallenge {
		return nil, auth.ErrStaleChallenge
	}
	c.used = true

	result, err := c.answer(ctx, answer)
	if err != nil {
		// The provider conversation survives a wrong answer; reissue a
		// fresh continuation for the retry.
		m.challenge = &Challenge{
			machine: m,
			gen:     c.gen,
			kind:    c.kind,
			answer:  c.answer,
		}
		m.metrics.RecordLogin("failure")
		m.auditEvent(ctx, audit.ActionChallengeResume, "failure", err)
		return nil, err
	}
	return m.outcome(ctx, result, audit.ActionChallengeResume)
}
