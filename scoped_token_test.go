package docauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	da "github.com/panyam/docauth"
)

func mintTestToken(t *testing.T, m *da.JWTMinter, issued time.Time) string {
	t.Helper()
	token, err := m.Mint(context.Background(), da.MintRequest{
		Actor:     &da.Actor{Subject: "svc@example.com"},
		UserID:    "user-1",
		SessionID: "sess-1",
		Scopes:    da.DefaultScopes(),
		Claims:    map[string]any{"role": "editor"},
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	return token
}

func TestJWTMinter_MintAndVerify(t *testing.T) {
	m := &da.JWTMinter{SecretKey: "scoped-test-key", Audience: "todos"}
	issued := time.Now()
	token := mintTestToken(t, m, issued)

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "sess-1" || claims.Actor != "svc@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if !da.ContainsScope(claims.Scopes, da.ScopeRead) || !da.ContainsScope(claims.Scopes, da.ScopeWrite) {
		t.Errorf("scopes = %v", claims.Scopes)
	}
	if claims.Claims["role"] != "editor" {
		t.Errorf("additional claims = %v", claims.Claims)
	}
	if got := claims.ExpiresAt.Unix(); got != issued.Add(time.Hour).Unix() {
		t.Errorf("ExpiresAt = %v", claims.ExpiresAt)
	}
}

func TestJWTMinter_MintRequiresSubjectAndKey(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	if _, err := (&da.JWTMinter{SecretKey: "k"}).Mint(ctx, da.MintRequest{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}); err == nil {
		t.Error("expected an error without a subject")
	}
	if _, err := (&da.JWTMinter{}).Mint(ctx, da.MintRequest{UserID: "u", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}); err == nil {
		t.Error("expected an error without a signing key")
	}
}

func TestJWTMinter_VerifyRejects(t *testing.T) {
	issued := time.Now()
	minter := &da.JWTMinter{SecretKey: "scoped-test-key", Issuer: "docauth"}
	valid := mintTestToken(t, minter, issued)

	otherType := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"type": "access",
		"iss":  "docauth",
		"exp":  issued.Add(time.Hour).Unix(),
	})
	otherTypeToken, err := otherType.SignedString([]byte("scoped-test-key"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	tests := []struct {
		name     string
		verifier *da.JWTMinter
		token    string
	}{
		{"empty", minter, ""},
		{"garbage", minter, "not-a-jwt"},
		{"wrong key", &da.JWTMinter{SecretKey: "another-key", Issuer: "docauth"}, valid},
		{"wrong issuer", &da.JWTMinter{SecretKey: "scoped-test-key", Issuer: "elsewhere"}, valid},
		{"wrong audience", &da.JWTMinter{SecretKey: "scoped-test-key", Audience: "billing"}, valid},
		{"wrong algorithm", &da.JWTMinter{SecretKey: "scoped-test-key", SigningAlg: "HS512"}, valid},
		{"expired", &da.JWTMinter{SecretKey: "scoped-test-key", Now: func() time.Time { return issued.Add(2 * time.Hour) }}, valid},
		{"not a scoped token", minter, otherTypeToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.Verify(tt.token)
			if !da.IsAuthorizationDenied(err) {
				t.Errorf("expected an authorization failure, got %v", err)
			}
		})
	}
}

func TestParseScopes(t *testing.T) {
	got := da.ParseScopes("read  write read")
	if da.JoinScopes(got) != "read write" {
		t.Errorf("ParseScopes = %v", got)
	}
	if da.ParseScopes("") != nil {
		t.Error("expected nil for an empty scope string")
	}
}
