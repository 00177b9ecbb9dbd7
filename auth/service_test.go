package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestNamespaceFromEmailClaim(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"email": "ana@example.com", "sub": "u-1"})
	ctx := context.WithValue(context.Background(), authorization.TokenKey, token)
	ns, err := New().Namespace(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != "ana@example.com" {
		t.Fatalf("email claim takes precedence, got %q", ns)
	}
}

func TestNamespaceFallsBackToSub(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1"})
	ctx := context.WithValue(context.Background(), authorization.TokenKey, &authorization.Token{Token: token})
	ns, err := New().Namespace(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != "u-1" {
		t.Fatalf("expected sub claim, got %q", ns)
	}
}

func TestNamespaceDefaults(t *testing.T) {
	ns, err := New().Namespace(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != DefaultNamespace {
		t.Fatalf("missing token should map to %q, got %q", DefaultNamespace, ns)
	}

	ctx := context.WithValue(context.Background(), authorization.TokenKey, "not-a-jwt")
	ns, err = New().Namespace(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns != DefaultNamespace {
		t.Fatalf("unparseable token should map to %q, got %q", DefaultNamespace, ns)
	}
}
