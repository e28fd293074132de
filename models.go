package docauth

import "time"

// User is the framework's user record. Optional fields are nil when absent.
type User struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name"`
	Email         *string    `json:"email"`
	Image         *string    `json:"image"`
	EmailVerified *time.Time `json:"emailVerified"`
}

// Account links a User to an identity at an external provider
type Account struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	Type              string  `json:"type"`
	Provider          string  `json:"provider"`
	ProviderAccountID string  `json:"providerAccountId"`
	RefreshToken      *string `json:"refresh_token"`
	AccessToken       *string `json:"access_token"`
	ExpiresAt         *int64  `json:"expires_at"` // seconds since epoch, as the provider reports it
	TokenType         *string `json:"token_type"`
	Scope             *string `json:"scope"`
	IDToken           *string `json:"id_token"`
	SessionState      *string `json:"session_state"`
}

// Session is a database session created at sign-in.
// Zero values of SessionToken, UserID and Expires are stored as null.
type Session struct {
	ID           string    `json:"id"`
	SessionToken string    `json:"sessionToken"`
	UserID       string    `json:"userId"`
	Expires      time.Time `json:"expires"`
}

// IsExpired reports whether the session has an expiry that is not after now.
func (s *Session) IsExpired(now time.Time) bool {
	if s.Expires.IsZero() {
		return false
	}
	return !now.Before(s.Expires)
}

// VerificationToken is a single-use token (eg for email sign-in links)
type VerificationToken struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	Expires    time.Time `json:"expires"`
}

// SessionAndUser is what GetSessionAndUser resolves a session token to
type SessionAndUser struct {
	Session *Session `json:"session"`
	User    *User    `json:"user"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
