package docauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultCredentialTTL is how long a minted scoped credential is cached and handed out
const DefaultCredentialTTL = 1 * time.Hour

// ScopedCredential is a cached, minted bearer token for one session
type ScopedCredential struct {
	Key     string    `json:"key"` // the session token the credential was minted for
	UserID  string    `json:"user_id"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// IsValidAt reports whether the credential can still be handed out at now
func (c *ScopedCredential) IsValidAt(now time.Time) bool {
	return c != nil && c.Token != "" && now.Before(c.Expires)
}

// ExpiresMillis is the expiry as milliseconds since the epoch, the persisted form
func (c *ScopedCredential) ExpiresMillis() int64 {
	return c.Expires.UnixMilli()
}

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
