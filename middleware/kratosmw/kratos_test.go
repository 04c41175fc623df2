package kratosmw

import (
	"context"
	"testing"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/fake"
	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// mockTransport implements transport.Transporter
type mockTransport struct {
	headers map[string]string
	op      string
}

func (m *mockTransport) Kind() transport.Kind            { return transport.KindHTTP }
func (m *mockTransport) Endpoint() string                { return "mock://test" }
func (m *mockTransport) Operation() string               { return m.op }
func (m *mockTransport) RequestHeader() transport.Header { return &mockHeader{headers: m.headers} }
func (m *mockTransport) ReplyHeader() transport.Header {
	return &mockHeader{headers: make(map[string]string)}
}

type mockHeader struct {
	headers map[string]string
}

func (h *mockHeader) Get(key string) string      { return h.headers[key] }
func (h *mockHeader) Set(key, value string)      { h.headers[key] = value }
func (h *mockHeader) Add(key, value string)      { h.headers[key] = value }
func (h *mockHeader) Values(key string) []string { return []string{h.headers[key]} }
func (h *mockHeader) Keys() []string {
	keys := make([]string, 0, len(h.headers))
	for k := range h.headers {
		keys = append(keys, k)
	}
	return keys
}

func newTestClient(t *testing.T) *auth.Client {
	t.Helper()
	verifier := fake.NewVerifier(fake.WithToken("token-user123", &auth.DecodedToken{
		Subject:  "user123",
		Groups:   []string{"admin"},
		TokenUse: auth.TokenUseAccess,
	}))
	client, err := fake.NewClient(auth.Config{
		PoolID:      "us-east-1_TEST",
		Region:      "us-east-1",
		AppClientID: "client-1",
	}, verifier, fake.NewProvider())
	if err != nil {
		t.Fatalf("fake.NewClient() error = %v", err)
	}
	return client
}

func TestAuth_Success(t *testing.T) {
	client := newTestClient(t)
	mw := Auth(client)

	var capturedCtx context.Context
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return "ok", nil
	}

	tr := &mockTransport{
		headers: map[string]string{
			"Authorization": "Bearer token-user123",
		},
		op: "/test/operation",
	}
	ctx := transport.NewServerContext(context.Background(), tr)

	wrapped := mw(middleware.Handler(handler))
	result, err := wrapped(ctx, nil)

	if err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}

	id := auth.IdentityFromContext(capturedCtx)
	if id == nil || id.Subject != "user123" {
		t.Errorf("expected identity user123, got %+v", id)
	}
	if !id.HasRole("admin") {
		t.Error("expected admin role on identity")
	}
}

func TestAuth_MissingTokenIsAnonymous(t *testing.T) {
	client := newTestClient(t)
	mw := Auth(client)

	var capturedCtx context.Context
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return "ok", nil
	}

	tr := &mockTransport{headers: make(map[string]string), op: "/test/operation"}
	ctx := transport.NewServerContext(context.Background(), tr)

	wrapped := mw(middleware.Handler(handler))
	if _, err := wrapped(ctx, nil); err != nil {
		t.Fatalf("anonymous request should pass through, got %v", err)
	}
	if auth.IsAuthenticated(capturedCtx) {
		t.Error("request without token should proceed anonymously")
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	client := newTestClient(t)
	mw := Auth(client)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	tr := &mockTransport{
		headers: map[string]string{"Authorization": "Bearer forged"},
		op:      "/test/operation",
	}
	ctx := transport.NewServerContext(context.Background(), tr)

	wrapped := mw(middleware.Handler(handler))
	_, err := wrapped(ctx, nil)

	if err == nil {
		t.Fatal("expected error for invalid token")
	}
	if !errors.IsUnauthorized(err) {
		t.Fatalf("expected Unauthorized error, got %v", err)
	}
}

func TestAuth_ExcludedOperation(t *testing.T) {
	client := newTestClient(t)
	mw := Auth(client, WithExcludedOperations("/health/check"))

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	// Invalid token on an excluded operation is not even looked at
	tr := &mockTransport{
		headers: map[string]string{"Authorization": "Bearer forged"},
		op:      "/health/check",
	}
	ctx := transport.NewServerContext(context.Background(), tr)

	wrapped := mw(middleware.Handler(handler))
	result, err := wrapped(ctx, nil)

	if err != nil {
		t.Fatalf("excluded operation should not return error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}
}

func TestRequireAuth(t *testing.T) {
	mw := RequireAuth()
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}
	wrapped := mw(middleware.Handler(handler))

	if _, err := wrapped(context.Background(), nil); !errors.IsUnauthorized(err) {
		t.Fatalf("expected Unauthorized for anonymous request, got %v", err)
	}

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Subject: "user123"})
	result, err := wrapped(ctx, nil)
	if err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}
}

func TestRequireRoles(t *testing.T) {
	mw := RequireRoles("admin", "operator")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}
	wrapped := mw(middleware.Handler(handler))

	if _, err := wrapped(context.Background(), nil); !errors.IsUnauthorized(err) {
		t.Fatalf("expected Unauthorized for anonymous request, got %v", err)
	}

	viewer := auth.WithIdentity(context.Background(), &auth.Identity{
		Subject: "user123",
		Roles:   []string{"viewer"},
	})
	if _, err := wrapped(viewer, nil); !errors.IsForbidden(err) {
		t.Fatalf("expected Forbidden for missing role, got %v", err)
	}

	operator := auth.WithIdentity(context.Background(), &auth.Identity{
		Subject: "user123",
		Roles:   []string{"operator"},
	})
	result, err := wrapped(operator, nil)
	if err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}
}

func TestOAuth2ClientCredentials_NotConfigured(t *testing.T) {
	client := newTestClient(t)
	mw := OAuth2ClientCredentials(client)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	wrapped := mw(middleware.Handler(handler))
	if _, err := wrapped(context.Background(), nil); err == nil {
		t.Fatal("expected error when no exchanger is configured")
	}
}
