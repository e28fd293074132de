package docauth_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/stores/memory"
)

const testSecretKey = "token-handler-test-key"

type tokenHandlerFixture struct {
	adapter *memory.Adapter
	cache   *memory.CredentialCache
	minter  *da.JWTMinter
	handler *da.TokenHandler
	user    *da.User
}

// setupTokenHandlerTest creates a user with a live session "sess-1" and a
// handler serving credentials for it
func setupTokenHandlerTest(t *testing.T) *tokenHandlerFixture {
	t.Helper()
	ctx := context.Background()
	f := &tokenHandlerFixture{
		adapter: memory.NewAdapter(),
		cache:   memory.NewCredentialCache(),
		minter:  &da.JWTMinter{SecretKey: testSecretKey},
	}

	user, err := f.adapter.CreateUser(ctx, &da.User{Email: da.StringPtr("ada@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	f.user = user
	if _, err := f.adapter.CreateSession(ctx, &da.Session{
		SessionToken: "sess-1",
		UserID:       user.ID,
		Expires:      time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	bridge := da.NewCredentialBridge(f.cache, nil, f.minter)
	bridge.Logger = discardLogger()
	f.handler = &da.TokenHandler{
		Sessions: f.adapter,
		Bridge:   bridge,
		Logger:   discardLogger(),
	}
	return f
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tokenRequest(cookieName, sessionToken string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/token", nil)
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: sessionToken})
	}
	return req
}

func serve(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, string) {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, strings.TrimSpace(rr.Body.String())
}

func TestTokenHandler_IssuesCredential(t *testing.T) {
	f := setupTokenHandlerTest(t)

	rr, body := serve(f.handler, tokenRequest(da.SessionCookieName, "sess-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}

	claims, err := f.minter.Verify(body)
	if err != nil {
		t.Fatalf("issued credential does not verify: %v", err)
	}
	if claims.UserID != f.user.ID {
		t.Errorf("credential subject = %q, want %q", claims.UserID, f.user.ID)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("credential session = %q, want sess-1", claims.SessionID)
	}

	// A second request within the hour gets the cached credential
	_, again := serve(f.handler, tokenRequest(da.SessionCookieName, "sess-1"))
	if again != body {
		t.Error("Expected the cached credential on the second request")
	}
}

func TestTokenHandler_RejectsWithoutLiveSession(t *testing.T) {
	f := setupTokenHandlerTest(t)
	if _, err := f.adapter.CreateSession(context.Background(), &da.Session{
		SessionToken: "sess-old",
		UserID:       f.user.ID,
		Expires:      time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no cookie", tokenRequest(da.SessionCookieName, "")},
		{"unknown session", tokenRequest(da.SessionCookieName, "sess-unknown")},
		{"expired session", tokenRequest(da.SessionCookieName, "sess-old")},
		{"wrong cookie name", tokenRequest("session", "sess-1")},
		{"wrong method", httptest.NewRequest(http.MethodPost, "/auth/token", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := serve(f.handler, tt.req)
			if rr.Code != http.StatusForbidden {
				t.Errorf("Expected status 403, got %d", rr.Code)
			}
			if body != "false" {
				t.Errorf("Expected body false, got %q", body)
			}
		})
	}
	if f.cache.Len() != 0 {
		t.Errorf("Expected no credentials cached, got %d", f.cache.Len())
	}
}

func TestTokenHandler_SecureCookie(t *testing.T) {
	f := setupTokenHandlerTest(t)

	// Over TLS only the secure cookie name counts
	req := tokenRequest(da.SessionCookieName, "sess-1")
	req.TLS = &tls.ConnectionState{}
	if rr, _ := serve(f.handler, req); rr.Code != http.StatusForbidden {
		t.Errorf("plain cookie over TLS: expected 403, got %d", rr.Code)
	}

	req = tokenRequest(da.SecureSessionCookieName, "sess-1")
	req.TLS = &tls.ConnectionState{}
	if rr, body := serve(f.handler, req); rr.Code != http.StatusOK {
		t.Errorf("secure cookie over TLS: expected 200, got %d: %s", rr.Code, body)
	}

	req = tokenRequest(da.SecureSessionCookieName, "sess-1")
	req.Header.Set("X-Forwarded-Proto", "https")
	if rr, body := serve(f.handler, req); rr.Code != http.StatusOK {
		t.Errorf("secure cookie behind proxy: expected 200, got %d: %s", rr.Code, body)
	}
}

func TestTokenHandler_AdditionalClaims(t *testing.T) {
	f := setupTokenHandlerTest(t)
	f.handler.AdditionalClaims = func(su *da.SessionAndUser) map[string]any {
		return map[string]any{"email": da.StringValue(su.User.Email)}
	}

	_, body := serve(f.handler, tokenRequest(da.SessionCookieName, "sess-1"))
	claims, err := f.minter.Verify(body)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Claims["email"] != "ada@example.com" {
		t.Errorf("claims = %v", claims.Claims)
	}
}

type failingResolver struct{}

func (failingResolver) GetSessionAndUser(ctx context.Context, sessionToken string) (*da.SessionAndUser, error) {
	return nil, errors.New("backend unavailable")
}

func TestTokenHandler_Failures(t *testing.T) {
	t.Run("resolver error", func(t *testing.T) {
		f := setupTokenHandlerTest(t)
		f.handler.Sessions = failingResolver{}
		if rr, _ := serve(f.handler, tokenRequest(da.SessionCookieName, "sess-1")); rr.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rr.Code)
		}
	})

	t.Run("mint error", func(t *testing.T) {
		f := setupTokenHandlerTest(t)
		f.minter.SecretKey = ""
		rr, body := serve(f.handler, tokenRequest(da.SessionCookieName, "sess-1"))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", rr.Code)
		}
		if body != "false" {
			t.Errorf("Expected body false, got %q", body)
		}
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc.def", "abc.def", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", false},
		{"no token", "Bearer ", "", false},
		{"no separator", "Bearerabc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := da.BearerToken(req)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Errorf("BearerToken() = %q, %v; want %q", got, err, tt.want)
				}
				return
			}
			if !errors.Is(err, da.ErrAuthorizationDenied) {
				t.Errorf("Expected ErrAuthorizationDenied, got %v", err)
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	f := setupTokenHandlerTest(t)
	var seen *da.SessionAndUser
	h := da.RequireSession(f.adapter, &da.SessionCookies{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = da.SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	if rr, _ := serve(h, tokenRequest(da.SessionCookieName, "sess-1")); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	if seen == nil || seen.User.ID != f.user.ID {
		t.Errorf("session in context = %+v", seen)
	}

	seen = nil
	if rr, _ := serve(h, tokenRequest(da.SessionCookieName, "nope")); rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
	if seen != nil {
		t.Error("next handler should not run without a session")
	}
}
