// Package client is the client side of scoped access: it fetches scoped
// credentials from the server's token endpoint and routes every store
// operation through an AccessProxy that renews the credential when the
// store rejects it.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panyam/docauth"
)

// DefaultTokenPath is where the server serves scoped credentials
const DefaultTokenPath = "/auth/token"

// TokenSource hands out a fresh scoped credential each time it is called
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// HTTPTokenSource fetches scoped credentials from the token endpoint,
// presenting the framework session cookie
type HTTPTokenSource struct {
	ServerURL    string
	SessionToken string

	// Path of the token endpoint. Defaults to DefaultTokenPath.
	Path string

	// CookieName overrides the session cookie name. By default the secure
	// name is used for https servers and the plain one otherwise.
	CookieName string

	HTTPClient *http.Client
}

// NewHTTPTokenSource creates a token source for serverURL. Any path on
// serverURL is dropped.
func NewHTTPTokenSource(serverURL, sessionToken string) *HTTPTokenSource {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	return &HTTPTokenSource{ServerURL: serverURL, SessionToken: sessionToken}
}

func (s *HTTPTokenSource) cookieName() string {
	if s.CookieName != "" {
		return s.CookieName
	}
	if strings.HasPrefix(strings.ToLower(s.ServerURL), "https://") {
		return docauth.SecureSessionCookieName
	}
	return docauth.SessionCookieName
}

func (s *HTTPTokenSource) Token(ctx context.Context) (string, error) {
	if s.SessionToken == "" {
		return "", docauth.ErrNoSession
	}
	path := s.Path
	if path == "" {
		path = DefaultTokenPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.ServerURL, "/")+path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: s.cookieName(), Value: s.SessionToken})

	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return "", docauth.ErrNoSession
	default:
		return "", &docauth.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("token endpoint returned an empty credential")
	}
	return token, nil
}

// SubjectOf returns the user a scoped credential was minted for. The token is
// only decoded, not verified; verification is the server's job.
func SubjectOf(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("malformed credential: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("credential has no subject")
	}
	return sub, nil
}
