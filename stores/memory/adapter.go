// Package memory provides in-process implementations of the docauth store
// interfaces. State lives in maps guarded by a mutex, so it is lost on exit;
// it is meant for tests and single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	da "github.com/panyam/docauth"
)

// Adapter implements da.Adapter in memory
type Adapter struct {
	mu       sync.RWMutex
	users    map[string]da.User
	accounts map[string]da.Account
	sessions map[string]da.Session
	vtokens  map[string]da.VerificationToken
	opts     da.StoreOptions

	// NewID assigns document ids. Defaults to random UUIDs.
	NewID func() string
}

func NewAdapter(opts ...da.StoreOption) *Adapter {
	return &Adapter{
		users:    make(map[string]da.User),
		accounts: make(map[string]da.Account),
		sessions: make(map[string]da.Session),
		vtokens:  make(map[string]da.VerificationToken),
		opts:     da.NewStoreOptions(opts...),
		NewID:    uuid.NewString,
	}
}

// firstMatch returns the smallest key whose value matches
func firstMatch[T any](docs map[string]T, match func(T) bool) (string, bool) {
	keys := make([]string, 0, len(docs))
	for k, v := range docs {
		if match(v) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return keys[0], true
}

func (a *Adapter) CreateUser(ctx context.Context, user *da.User) (*da.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := *user
	out.ID = a.NewID()
	a.users[out.ID] = out
	return &out, nil
}

func (a *Adapter) GetUser(ctx context.Context, id string) (*da.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*da.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := firstMatch(a.users, func(u da.User) bool {
		return u.Email != nil && *u.Email == email
	})
	if !ok {
		return nil, nil
	}
	u := a.users[id]
	return &u, nil
}

func (a *Adapter) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*da.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := firstMatch(a.accounts, func(acc da.Account) bool {
		return acc.Provider == provider && acc.ProviderAccountID == providerAccountID
	})
	if !ok {
		return nil, nil
	}
	u, ok := a.users[a.accounts[id].UserID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (a *Adapter) UpdateUser(ctx context.Context, user *da.User) (*da.User, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("updating user: missing id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[user.ID] = *user
	return user, nil
}

func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.users, id)
	return nil
}

func (a *Adapter) LinkAccount(ctx context.Context, account *da.Account) (*da.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := *account
	out.ID = a.NewID()
	a.accounts[out.ID] = out
	return &out, nil
}

func (a *Adapter) UnlinkAccount(ctx context.Context, provider, providerAccountID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := firstMatch(a.accounts, func(acc da.Account) bool {
		return acc.Provider == provider && acc.ProviderAccountID == providerAccountID
	})
	if ok {
		delete(a.accounts, id)
	}
	return nil
}

func (a *Adapter) CreateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := *session
	out.ID = a.NewID()
	a.sessions[out.ID] = out
	return &out, nil
}

func (a *Adapter) sessionIDByToken(sessionToken string) (string, bool) {
	return firstMatch(a.sessions, func(s da.Session) bool {
		return s.SessionToken == sessionToken
	})
}

func (a *Adapter) GetSessionAndUser(ctx context.Context, sessionToken string) (*da.SessionAndUser, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.sessionIDByToken(sessionToken)
	if !ok {
		return nil, nil
	}
	s := a.sessions[id]
	u, ok := a.users[s.UserID]
	if !ok {
		return nil, nil
	}
	return &da.SessionAndUser{Session: &s, User: &u}, nil
}

func (a *Adapter) UpdateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.sessionIDByToken(session.SessionToken)
	if !ok {
		return nil, nil
	}
	stored := *session
	stored.ID = id
	a.sessions[id] = stored
	return session, nil
}

func (a *Adapter) DeleteSession(ctx context.Context, sessionToken string) error {
	a.mu.Lock()
	id, ok := a.sessionIDByToken(sessionToken)
	if ok {
		delete(a.sessions, id)
	}
	a.mu.Unlock()

	if ok {
		a.opts.RevokeCredential(ctx, sessionToken)
	}
	return nil
}

func (a *Adapter) CreateVerificationToken(ctx context.Context, token *da.VerificationToken) (*da.VerificationToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := *token
	out.ID = a.NewID()
	a.vtokens[out.ID] = out
	return &out, nil
}

func (a *Adapter) UseVerificationToken(ctx context.Context, identifier, token string) (*da.VerificationToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := firstMatch(a.vtokens, func(vt da.VerificationToken) bool {
		return vt.Identifier == identifier && vt.Token == token
	})
	if !ok {
		return nil, nil
	}
	vt := a.vtokens[id]
	delete(a.vtokens, id)
	return &vt, nil
}

func (a *Adapter) ListExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*da.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*da.Session
	for _, s := range a.sessions {
		if !s.Expires.IsZero() && s.Expires.Before(before) {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expires.Equal(out[j].Expires) {
			return out[i].ID < out[j].ID
		}
		return out[i].Expires.Before(out[j].Expires)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
