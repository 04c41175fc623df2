package login_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/fake"
	"github.com/chimerakang/auth-go/login"
	"github.com/chimerakang/auth-go/session"
)

func TestLogin_DirectSuccess(t *testing.T) {
	p := fake.NewProvider(fake.WithUser("amy@example.com", "hunter2"))
	sink := session.NewManager(p)
	m := login.New(p, login.WithSink(sink))

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Session == nil {
		t.Fatal("expected a session outcome")
	}
	if m.State() != auth.StateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", m.State())
	}

	// The sink got the session and can serve tokens
	token, err := sink.Token(context.Background())
	if err != nil {
		t.Fatalf("sink Token() error = %v", err)
	}
	if token != out.Session.AccessToken {
		t.Errorf("sink token = %q, want %q", token, out.Session.AccessToken)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	p := fake.NewProvider(fake.WithUser("amy@example.com", "hunter2"))
	m := login.New(p)

	_, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "wrong",
	})
	le := auth.AsLoginError(err)
	if le == nil {
		t.Fatalf("Login() error = %v, want *auth.LoginError", err)
	}
	if le.Reason != auth.FailureBadCredentials {
		t.Errorf("Reason = %v, want FailureBadCredentials", le.Reason)
	}
	if m.State() != auth.StateUnauthenticated {
		t.Errorf("State() = %v, want Unauthenticated", m.State())
	}
}

func TestLogin_NewPasswordChallenge(t *testing.T) {
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "temp-pass"),
		fake.WithChallenge("amy@example.com", auth.ChallengeNewPassword),
	)
	sink := session.NewManager(p)
	m := login.New(p, login.WithSink(sink))

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "temp-pass",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Challenge == nil {
		t.Fatal("expected a challenge outcome")
	}
	if out.Challenge.Kind() != auth.ChallengeNewPassword {
		t.Errorf("Kind() = %v, want NEW_PASSWORD_REQUIRED", out.Challenge.Kind())
	}
	if m.State() != auth.StateAwaitingChallenge {
		t.Errorf("State() = %v, want AwaitingChallenge", m.State())
	}

	// Not logged in until the challenge is answered
	if _, err := sink.Token(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("Token() before resume error = %v, want ErrNotAuthenticated", err)
	}

	resumed, err := out.Challenge.Resume(context.Background(), "new-password-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Session == nil {
		t.Fatal("expected a session after answering the challenge")
	}
	if m.State() != auth.StateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", m.State())
	}
	if _, err := sink.Token(context.Background()); err != nil {
		t.Errorf("Token() after resume error = %v", err)
	}
}

func TestLogin_TotpChallengeRetry(t *testing.T) {
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "hunter2"),
		fake.WithChallenge("amy@example.com", auth.ChallengeTotp),
		fake.WithTotpCode("123456"),
	)
	m := login.New(p)

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	ch := out.Challenge
	if ch == nil || ch.Kind() != auth.ChallengeTotp {
		t.Fatalf("expected a SOFTWARE_TOKEN_MFA challenge, got %+v", out)
	}

	_, err = ch.Resume(context.Background(), "000000")
	le := auth.AsLoginError(err)
	if le == nil || le.Reason != auth.FailureInvalidCode {
		t.Fatalf("Resume(wrong code) error = %v, want FailureInvalidCode", err)
	}
	if m.State() != auth.StateAwaitingChallenge {
		t.Errorf("State() = %v, want AwaitingChallenge after wrong code", m.State())
	}

	// The failed continuation is spent; retry through the reissued one
	retry := m.Challenge()
	if retry == nil {
		t.Fatal("Challenge() = nil, want a fresh continuation")
	}
	if retry == ch {
		t.Fatal("Challenge() returned the spent continuation")
	}
	resumed, err := retry.Resume(context.Background(), "123456")
	if err != nil {
		t.Fatalf("Resume(correct code) error = %v", err)
	}
	if resumed.Session == nil {
		t.Fatal("expected a session after the correct code")
	}
	if m.State() != auth.StateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", m.State())
	}
}

func TestChallenge_SingleUse(t *testing.T) {
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "hunter2"),
		fake.WithChallenge("amy@example.com", auth.ChallengeTotp),
		fake.WithTotpCode("123456"),
	)
	m := login.New(p)

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	ch := out.Challenge

	if _, err := ch.Resume(context.Background(), "123456"); err != nil {
		t.Fatalf("first Resume() error = %v", err)
	}
	if _, err := ch.Resume(context.Background(), "123456"); !errors.Is(err, auth.ErrStaleChallenge) {
		t.Errorf("second Resume() error = %v, want ErrStaleChallenge", err)
	}
}

func TestChallenge_StaleAfterNewLogin(t *testing.T) {
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "hunter2"),
		fake.WithUser("bob@example.com", "swordfish"),
		fake.WithChallenge("amy@example.com", auth.ChallengeTotp),
		fake.WithTotpCode("123456"),
	)
	m := login.New(p)

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	stale := out.Challenge

	// A new attempt supersedes the pending challenge
	if _, err := m.Login(context.Background(), login.Request{
		Email:    "bob@example.com",
		Password: "swordfish",
	}); err != nil {
		t.Fatalf("second Login() error = %v", err)
	}

	if _, err := stale.Resume(context.Background(), "123456"); !errors.Is(err, auth.ErrStaleChallenge) {
		t.Errorf("stale Resume() error = %v, want ErrStaleChallenge", err)
	}
}

func TestLogin_SessionReuse(t *testing.T) {
	p := fake.NewProvider(fake.WithUser("amy@example.com", "hunter2"))
	sink := session.NewManager(p)
	m := login.New(p, login.WithSink(sink))

	cached := &auth.Session{
		AccessToken: "cached-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	out, err := m.Login(context.Background(), login.Request{Session: cached})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Session != cached {
		t.Error("session-reuse login should return the cached session")
	}
	if m.State() != auth.StateAuthenticated {
		t.Errorf("State() = %v, want Authenticated", m.State())
	}
	token, err := sink.Token(context.Background())
	if err != nil || token != "cached-access" {
		t.Errorf("Token() = %q, %v, want cached-access", token, err)
	}
}

func TestLogin_ExpiredCachedSessionFallsThrough(t *testing.T) {
	p := fake.NewProvider(fake.WithUser("amy@example.com", "hunter2"))
	m := login.New(p)

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
		Session: &auth.Session{
			AccessToken: "stale",
			ExpiresAt:   time.Now().Add(-time.Minute),
		},
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.Session == nil || out.Session.AccessToken == "stale" {
		t.Error("expired cached session must re-authenticate, not be reused")
	}
}

func TestLogin_ConcurrentAttemptRejected(t *testing.T) {
	release := make(chan struct{})
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "hunter2"),
		fake.WithBlockedAuthenticate(release),
	)
	m := login.New(p)

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := m.Login(context.Background(), login.Request{
			Email:    "amy@example.com",
			Password: "hunter2",
		})
		firstErr <- err
	}()

	// Wait until the first attempt holds the machine, then collide
	time.Sleep(50 * time.Millisecond)
	var collided error
	for i := 0; i < 200; i++ {
		_, err := m.Login(context.Background(), login.Request{
			Email:    "amy@example.com",
			Password: "hunter2",
		})
		if errors.Is(err, auth.ErrLoginInProgress) {
			collided = err
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if !errors.Is(collided, auth.ErrLoginInProgress) {
		t.Errorf("concurrent Login() error = %v, want ErrLoginInProgress", collided)
	}
	if err := <-firstErr; err != nil {
		t.Errorf("first Login() error = %v", err)
	}
}

func TestLogout_ResetsStateAndSink(t *testing.T) {
	p := fake.NewProvider(fake.WithUser("amy@example.com", "hunter2"))
	sink := session.NewManager(p)
	m := login.New(p, login.WithSink(sink))

	if _, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	m.Logout(context.Background())

	if m.State() != auth.StateUnauthenticated {
		t.Errorf("State() = %v, want Unauthenticated", m.State())
	}
	if p.SignOuts() != 1 {
		t.Errorf("SignOuts() = %d, want 1", p.SignOuts())
	}
	if _, err := sink.Token(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("Token() after logout error = %v, want ErrNotAuthenticated", err)
	}
}

func TestExpiry_ResetsMachineState(t *testing.T) {
	p := fake.NewProvider(
		fake.WithUser("amy@example.com", "hunter2"),
		fake.WithRefreshError(errors.New("idp down")),
	)
	var m *login.Machine
	sink := session.NewManager(p, session.WithExpiredFunc(func() { m.Reset() }))
	m = login.New(p, login.WithSink(sink))

	out, err := m.Login(context.Background(), login.Request{
		Email:    "amy@example.com",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	out.Session.ExpiresAt = time.Now().Add(-time.Minute)
	sink.Store(context.Background(), out.Session)

	if _, err := sink.Token(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("Token() error = %v, want ErrNotAuthenticated", err)
	}
	if m.State() != auth.StateUnauthenticated {
		t.Errorf("State() = %v, want Unauthenticated after expiry", m.State())
	}
}
