package docauth

import (
	"context"
	"log/slog"
	"time"
)

// Adapter is the storage contract the authentication framework drives.
//
// Lookups that miss return a nil result and a nil error; errors are reserved
// for backend failures. Every "resolve by query" lookup that matches several
// documents picks the one with the lexicographically smallest id.
type Adapter interface {
	// CreateUser stores a new user and returns it with its assigned ID
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUser looks a user up by ID
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail looks a user up by exact email match
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByAccount resolves the account for (provider, providerAccountID) and then its user
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error)

	// UpdateUser replaces every field except ID and returns user as given.
	// Nothing is re-read, so callers must pass the complete desired state.
	UpdateUser(ctx context.Context, user *User) (*User, error)

	// DeleteUser removes the user. Accounts and sessions of the user are left in place.
	DeleteUser(ctx context.Context, id string) error

	// LinkAccount stores a new account and returns it with its assigned ID
	LinkAccount(ctx context.Context, account *Account) (*Account, error)

	// UnlinkAccount deletes the account for (provider, providerAccountID) if there is one
	UnlinkAccount(ctx context.Context, provider, providerAccountID string) error

	// CreateSession stores a new session and returns it with its assigned ID
	CreateSession(ctx context.Context, session *Session) (*Session, error)

	// GetSessionAndUser resolves a session by token and then its user.
	// Returns nil if either is missing.
	GetSessionAndUser(ctx context.Context, sessionToken string) (*SessionAndUser, error)

	// UpdateSession resolves the session by session.SessionToken and replaces its fields.
	// Returns nil if no such session exists.
	UpdateSession(ctx context.Context, session *Session) (*Session, error)

	// DeleteSession deletes the session for sessionToken and, best effort, any
	// scoped credential cached for it
	DeleteSession(ctx context.Context, sessionToken string) error

	// CreateVerificationToken stores a new verification token
	CreateVerificationToken(ctx context.Context, token *VerificationToken) (*VerificationToken, error)

	// UseVerificationToken consumes the token for (identifier, token): it is
	// deleted and returned. Expiry is not checked here.
	UseVerificationToken(ctx context.Context, identifier, token string) (*VerificationToken, error)
}

// ExpiredSessionLister lists sessions whose expiry is before a cutoff
type ExpiredSessionLister interface {
	ListExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*Session, error)
}

// SessionStore is what the SessionReaper needs from a backend
type SessionStore interface {
	ExpiredSessionLister
	DeleteSession(ctx context.Context, sessionToken string) error
}

// SessionResolver is the part of the Adapter that the token endpoint needs
type SessionResolver interface {
	GetSessionAndUser(ctx context.Context, sessionToken string) (*SessionAndUser, error)
}

// CredentialCache holds scoped credentials keyed by session token.
// Entries are a pure cache: losing one only forces a re-mint.
type CredentialCache interface {
	// GetCredential returns nil, nil if nothing is cached for key
	GetCredential(ctx context.Context, key string) (*ScopedCredential, error)

	// PutCredential stores cred under cred.Key, replacing any previous entry
	PutCredential(ctx context.Context, cred *ScopedCredential) error

	// DeleteCredential removes the entry for key. Missing entries are not an error.
	DeleteCredential(ctx context.Context, key string) error
}

// StoreOptions are the settings shared by every Adapter backend
type StoreOptions struct {
	// Cache, when set, has its entry for a session dropped when the session is deleted
	Cache  CredentialCache
	Logger *slog.Logger
}

// StoreOption configures a backend
type StoreOption func(*StoreOptions)

// WithCredentialCache makes DeleteSession also revoke the session's cached credential
func WithCredentialCache(cache CredentialCache) StoreOption {
	return func(o *StoreOptions) {
		o.Cache = cache
	}
}

// WithLogger sets the logger used for best-effort cleanup failures
func WithLogger(logger *slog.Logger) StoreOption {
	return func(o *StoreOptions) {
		o.Logger = logger
	}
}

// NewStoreOptions applies opts over the defaults
func NewStoreOptions(opts ...StoreOption) StoreOptions {
	o := StoreOptions{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RevokeCredential drops the cached credential for a deleted session.
// Failures are logged and otherwise ignored.
func (o *StoreOptions) RevokeCredential(ctx context.Context, sessionToken string) {
	if o.Cache == nil || sessionToken == "" {
		return
	}
	if err := o.Cache.DeleteCredential(ctx, sessionToken); err != nil {
		o.Logger.Warn("failed to revoke cached credential for deleted session", "err", err)
	}
}
