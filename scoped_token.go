package docauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const scopedTokenType = "scoped"

// MintRequest describes one scoped credential to mint
type MintRequest struct {
	Actor     *Actor
	UserID    string
	SessionID string
	Scopes    []string
	Claims    map[string]any
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Minter produces a scoped bearer token
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (string, error)
}

// ScopedClaims is what a verified scoped token grants
type ScopedClaims struct {
	UserID    string
	SessionID string
	Actor     string
	Scopes    []string
	Claims    map[string]any
	ExpiresAt time.Time
}

// JWTMinter mints and verifies HMAC signed scoped tokens.
// The token's subject is the user whose partition it unlocks.
type JWTMinter struct {
	SecretKey  string
	Issuer     string // defaults to the actor's subject
	Audience   string
	SigningAlg string // HS256 (default), HS384 or HS512

	// Now is used when verifying. Defaults to time.Now.
	Now func() time.Time
}

func (m *JWTMinter) signingMethod() jwt.SigningMethod {
	switch m.SigningAlg {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	}
	return jwt.SigningMethodHS256
}

func (m *JWTMinter) Mint(ctx context.Context, req MintRequest) (string, error) {
	if req.UserID == "" {
		return "", fmt.Errorf("cannot mint a scoped token without a subject")
	}
	if m.SecretKey == "" {
		return "", fmt.Errorf("scoped token signing key not configured")
	}
	jti, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub":  req.UserID,
		"type": scopedTokenType,
		"jti":  jti,
		"iat":  req.IssuedAt.Unix(),
		"exp":  req.ExpiresAt.Unix(),
	}
	issuer := m.Issuer
	if req.Actor != nil {
		claims["act"] = req.Actor.Subject
		if issuer == "" {
			issuer = req.Actor.Subject
		}
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if m.Audience != "" {
		claims["aud"] = m.Audience
	}
	if req.SessionID != "" {
		claims["sid"] = req.SessionID
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = JoinScopes(req.Scopes)
	}
	if len(req.Claims) > 0 {
		claims["claims"] = req.Claims
	}

	token := jwt.NewWithClaims(m.signingMethod(), claims)
	tokenString, err := token.SignedString([]byte(m.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks a scoped token. Every failure wraps ErrAuthorizationDenied.
func (m *JWTMinter) Verify(tokenString string) (*ScopedClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing credential", ErrAuthorizationDenied)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signingMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(m.Now))
	}
	if m.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.Issuer))
	}
	if m.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(m.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationDenied, err)
	}

	if tokenType, _ := claims["type"].(string); tokenType != scopedTokenType {
		return nil, fmt.Errorf("%w: invalid token type", ErrAuthorizationDenied)
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrAuthorizationDenied)
	}

	out := &ScopedClaims{UserID: userID}
	out.SessionID, _ = claims["sid"].(string)
	out.Actor, _ = claims["act"].(string)
	scope, _ := claims["scope"].(string)
	out.Scopes = ParseScopes(scope)
	out.Claims, _ = claims["claims"].(map[string]any)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
