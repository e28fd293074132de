package docauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Cookie names the authentication framework issues its session token under
const (
	SessionCookieName       = "next-auth.session-token"
	SecureSessionCookieName = "__Secure-next-auth.session-token"
)

type sessionContextKey struct{}

// SessionCookies picks the framework session cookie out of a request
type SessionCookies struct {
	Name       string
	SecureName string
}

func (c *SessionCookies) EnsureDefaults() *SessionCookies {
	if c.Name == "" {
		c.Name = SessionCookieName
	}
	if c.SecureName == "" {
		c.SecureName = SecureSessionCookieName
	}
	return c
}

// IsSecureRequest reports whether the request arrived over TLS, directly or
// through a proxy that says so
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// SessionToken returns the session token from the cookie that matches the
// request's transport, or "" if there is none
func (c *SessionCookies) SessionToken(r *http.Request) string {
	name := c.Name
	if IsSecureRequest(r) {
		name = c.SecureName
	}
	for _, cookie := range r.CookiesNamed(name) {
		if cookie.Value != "" {
			return cookie.Value
		}
	}
	return ""
}

// ResolveSession looks up the live session behind the request's cookie.
// Returns nil when there is no cookie, no such session, or it has expired.
func ResolveSession(ctx context.Context, resolver SessionResolver, cookies *SessionCookies, r *http.Request, now func() time.Time) (*SessionAndUser, error) {
	token := cookies.SessionToken(r)
	if token == "" {
		return nil, nil
	}
	su, err := resolver.GetSessionAndUser(ctx, token)
	if err != nil || su == nil {
		return nil, err
	}
	if su.Session.IsExpired(now()) {
		return nil, nil
	}
	return su, nil
}

// WithSession stores the resolved session on the context
func WithSession(ctx context.Context, su *SessionAndUser) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, su)
}

// SessionFromContext returns the session stored by WithSession, if any
func SessionFromContext(ctx context.Context) *SessionAndUser {
	su, _ := ctx.Value(sessionContextKey{}).(*SessionAndUser)
	return su
}

// RequireSession rejects requests without a live framework session using the
// same 403 / false response as the token endpoint, and otherwise makes the
// session available through SessionFromContext
func RequireSession(resolver SessionResolver, cookies *SessionCookies, next http.Handler) http.Handler {
	cookies = cookies.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		su, err := ResolveSession(r.Context(), resolver, cookies, r, time.Now)
		if err != nil {
			slog.Error("resolving session failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, false)
			return
		}
		if su == nil {
			writeJSON(w, http.StatusForbidden, false)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), su)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrAuthorizationDenied)
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrAuthorizationDenied)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthorizationDenied)
	}
	return token, nil
}
