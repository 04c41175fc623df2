package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/chimerakang/auth-go"
)

func TestRegistry_DispatchesByAuthType(t *testing.T) {
	cognito := &staticVerifier{decoded: &auth.DecodedToken{Subject: "user-cognito"}}
	r := auth.NewRegistry(map[string]auth.TokenVerifier{"cognito": cognito})

	decoded, err := r.Decode(context.Background(), "good", "cognito")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if decoded.Subject != "user-cognito" {
		t.Errorf("Subject = %q, want user-cognito", decoded.Subject)
	}
}

func TestRegistry_UnknownAuthType(t *testing.T) {
	r := auth.NewRegistry(nil)

	_, err := r.Decode(context.Background(), "good", "saml")
	if !errors.Is(err, auth.ErrUnsupportedAuthType) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedAuthType", err)
	}
}

func TestRegistry_PropagatesVerifierError(t *testing.T) {
	r := auth.NewRegistry(map[string]auth.TokenVerifier{
		"cognito": &staticVerifier{decoded: &auth.DecodedToken{Subject: "user-123"}},
	})

	_, err := r.Decode(context.Background(), "forged", "cognito")
	if !errors.Is(err, auth.ErrSignatureInvalid) {
		t.Errorf("Decode() error = %v, want the verifier's ErrSignatureInvalid", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := auth.NewRegistry(map[string]auth.TokenVerifier{
		"cognito": &staticVerifier{decoded: &auth.DecodedToken{Subject: "old"}},
	})
	r.Register("cognito", &staticVerifier{decoded: &auth.DecodedToken{Subject: "new"}})

	decoded, err := r.Decode(context.Background(), "good", "cognito")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if decoded.Subject != "new" {
		t.Errorf("Subject = %q, want new", decoded.Subject)
	}
}
