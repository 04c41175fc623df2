// Package fake provides in-memory implementations of the auth-go
// interfaces for testing.
//
// Use these in unit tests to avoid network calls and a real identity
// provider: a scripted Provider for login flows, a static Verifier for
// the server-side pipeline, and a counting UserStore for resolver
// bookkeeping assertions.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	auth "github.com/chimerakang/auth-go"
)

// Verifier is a static auth.TokenVerifier: raw token → decoded claims.
type Verifier struct {
	mu     sync.RWMutex
	tokens map[string]*auth.DecodedToken
}

// compile-time check
var _ auth.TokenVerifier = (*Verifier)(nil)

// VerifierOption configures the fake verifier.
type VerifierOption func(*Verifier)

// WithToken maps a raw token string to the claims Verify returns for it.
func WithToken(raw string, decoded *auth.DecodedToken) VerifierOption {
	return func(v *Verifier) { v.tokens[raw] = decoded }
}

// NewVerifier creates a fake verifier.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{tokens: make(map[string]*auth.DecodedToken)}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Add maps a raw token after construction.
func (v *Verifier) Add(raw string, decoded *auth.DecodedToken) {
	v.mu.Lock()
	v.tokens[raw] = decoded
	v.mu.Unlock()
}

// Verify returns the mapped claims, or auth.ErrSignatureInvalid for
// unknown tokens.
func (v *Verifier) Verify(_ context.Context, raw string) (*auth.DecodedToken, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if d, ok := v.tokens[raw]; ok {
		return d, nil
	}
	return nil, auth.ErrSignatureInvalid
}

// UserStore is an in-memory auth.UserStore that counts writes.
type UserStore struct {
	mu      sync.Mutex
	records map[string]*auth.UserRecord
	creates int
	updates int
	failing bool
}

// compile-time check
var _ auth.UserStore = (*UserStore)(nil)

// UserStoreOption configures the fake store.
type UserStoreOption func(*UserStore)

// WithUpsertFailure makes every upsert fail, for fail-open assertions.
func WithUpsertFailure() UserStoreOption {
	return func(s *UserStore) { s.failing = true }
}

// NewUserStore creates an empty fake user store.
func NewUserStore(opts ...UserStoreOption) *UserStore {
	s := &UserStore{records: make(map[string]*auth.UserRecord)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UpsertLastLogin creates the record on first sighting, then only stamps
// LastLoginAt.
func (s *UserStore) UpsertLastLogin(_ context.Context, subject string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return fmt.Errorf("fake: upsert failure injected")
	}

	rec, ok := s.records[subject]
	if !ok {
		rec = &auth.UserRecord{Subject: subject}
		s.records[subject] = rec
		s.creates++
	}
	rec.LastLoginAt = at
	s.updates++
	return nil
}

// Get returns the stored record for a subject.
func (s *UserStore) Get(subject string) (auth.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subject]
	if !ok {
		return auth.UserRecord{}, false
	}
	return *rec, true
}

// Creates returns how many records have been created.
func (s *UserStore) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Updates returns how many last-login stamps have been written.
func (s *UserStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Provider is a scripted auth.Provider for login-flow tests.
type Provider struct {
	mu sync.Mutex

	users       map[string]string // email → password
	challenges  map[string]auth.ChallengeKind
	totpCode    string
	sessionSeq  int
	refreshable map[string]bool // issued refresh tokens
	signOuts    int
	signOutErr  error
	refreshErr  error
	authErr     error
	blockAuth   chan struct{} // when set, Authenticate blocks until closed
}

// compile-time check
var _ auth.Provider = (*Provider)(nil)

// ProviderOption configures the fake provider.
type ProviderOption func(*Provider)

// WithUser registers an account.
func WithUser(email, password string) ProviderOption {
	return func(p *Provider) { p.users[email] = password }
}

// WithChallenge makes authentication for email return the given
// challenge after the password check.
func WithChallenge(email string, kind auth.ChallengeKind) ProviderOption {
	return func(p *Provider) { p.challenges[email] = kind }
}

// WithTotpCode sets the accepted one-time code.
func WithTotpCode(code string) ProviderOption {
	return func(p *Provider) { p.totpCode = code }
}

// WithSignOutError makes provider-side sign-out fail.
func WithSignOutError(err error) ProviderOption {
	return func(p *Provider) { p.signOutErr = err }
}

// WithRefreshError makes silent renewal fail.
func WithRefreshError(err error) ProviderOption {
	return func(p *Provider) { p.refreshErr = err }
}

// WithAuthenticateError makes authentication fail outright.
func WithAuthenticateError(err error) ProviderOption {
	return func(p *Provider) { p.authErr = err }
}

// WithBlockedAuthenticate makes Authenticate block until the returned
// channel is closed. Used to test single-flight rejection.
func WithBlockedAuthenticate(release chan struct{}) ProviderOption {
	return func(p *Provider) { p.blockAuth = release }
}

// NewProvider creates a scripted provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		users:       make(map[string]string),
		challenges:  make(map[string]auth.ChallengeKind),
		refreshable: make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SignOuts returns how many sign-out calls were made.
func (p *Provider) SignOuts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

func (p *Provider) issueSession() *auth.Session {
	p.sessionSeq++
	refresh := fmt.Sprintf("refresh-%d", p.sessionSeq)
	p.refreshable[refresh] = true
	return &auth.Session{
		AccessToken:  fmt.Sprintf("access-%d", p.sessionSeq),
		IDToken:      fmt.Sprintf("id-%d", p.sessionSeq),
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}
}

// Authenticate checks the scripted password and either issues a session
// or the scripted challenge.
func (p *Provider) Authenticate(_ context.Context, creds auth.Credentials) (*auth.AuthResult, error) {
	if p.blockAuth != nil {
		<-p.blockAuth
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.authErr != nil {
		return nil, p.authErr
	}

	password, ok := p.users[creds.Email]
	if !ok || password != creds.Password {
		return nil, &auth.LoginError{
			Reason:  auth.FailureBadCredentials,
			Code:    "NotAuthorizedException",
			Message: "Incorrect username or password.",
		}
	}

	kind, challenged := p.challenges[creds.Email]
	if !challenged {
		return &auth.AuthResult{Session: p.issueSession()}, nil
	}
	return &auth.AuthResult{Challenge: p.challenge(kind)}, nil
}

// challenge builds a continuation. Caller holds mu.
func (p *Provider) challenge(kind auth.ChallengeKind) *auth.ProviderChallenge {
	return &auth.ProviderChallenge{
		Kind: kind,
		Answer: func(_ context.Context, answer string) (*auth.AuthResult, error) {
			p.mu.Lock()
			defer p.mu.Unlock()

			switch kind {
			case auth.ChallengeNewPassword:
				if answer == "" {
					return nil, &auth.LoginError{
						Reason: auth.FailureUnknown,
						Code:   "InvalidPasswordException",
					}
				}
			case auth.ChallengeTotp:
				if answer != p.totpCode {
					return nil, &auth.LoginError{
						Reason: auth.FailureInvalidCode,
						Code:   "CodeMismatchException",
					}
				}
			}
			return &auth.AuthResult{Session: p.issueSession()}, nil
		},
	}
}

// Refresh renews a session for a previously issued refresh token.
func (p *Provider) Refresh(_ context.Context, refreshToken string) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if !p.refreshable[refreshToken] {
		return nil, &auth.LoginError{
			Reason: auth.FailureBadCredentials,
			Code:   "NotAuthorizedException",
		}
	}
	s := p.issueSession()
	s.RefreshToken = refreshToken
	return s, nil
}

// SignOut records the call and returns the scripted error, if any.
func (p *Provider) SignOut(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	return p.signOutErr
}

// SignUp registers the account.
func (p *Provider) SignUp(_ context.Context, creds auth.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.users[creds.Email]; exists {
		return &auth.LoginError{Reason: auth.FailureUnknown, Code: "UsernameExistsException"}
	}
	p.users[creds.Email] = creds.Password
	return nil
}

// ForgotPassword succeeds for known accounts.
func (p *Provider) ForgotPassword(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[email]; !ok {
		return &auth.LoginError{Reason: auth.FailureBadCredentials, Code: "UserNotFoundException"}
	}
	return nil
}

// ConfirmForgotPassword accepts the fixed code "000000".
func (p *Provider) ConfirmForgotPassword(_ context.Context, email, code, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code != "000000" {
		return &auth.LoginError{Reason: auth.FailureInvalidCode, Code: "CodeMismatchException"}
	}
	p.users[email] = newPassword
	return nil
}

// ChangePassword rotates the password when the old one matches.
func (p *Provider) ChangePassword(_ context.Context, _, oldPassword, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for email, password := range p.users {
		if password == oldPassword {
			p.users[email] = newPassword
			return nil
		}
	}
	return &auth.LoginError{Reason: auth.FailureBadCredentials, Code: "NotAuthorizedException"}
}

// NewClient wires an *auth.Client with fake implementations: a static
// verifier registered under "cognito", a counting user store behind a
// resolver-less identity path, and a scripted provider.
func NewClient(cfg auth.Config, verifier *Verifier, provider *Provider, opts ...auth.Option) (*auth.Client, error) {
	all := append([]auth.Option{
		auth.WithVerifier("cognito", verifier),
		auth.WithProvider(provider),
	}, opts...)
	return auth.NewClient(cfg, all...)
}
