//go:build !wasm
// +build !wasm

package gae

import (
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/todo"
)

// Entities implement datastore.PropertyLoadSaver so that absent optional
// fields are written as explicit null properties instead of being dropped.
// Equality queries then see every document carrying every field.

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func loadString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func loadInt(v any) *int64 {
	switch n := v.(type) {
	case int64:
		return &n
	case float64:
		i := int64(n)
		return &i
	}
	return nil
}

func loadTime(name string, v any) (time.Time, error) {
	t, err := da.NormalizeTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("property %s: %w", name, err)
	}
	return t, nil
}

// UserEntity is the Datastore entity for users (kind "user")
type UserEntity struct {
	Name          *string
	Email         *string
	Image         *string
	EmailVerified time.Time
}

func (e *UserEntity) Save() ([]datastore.Property, error) {
	return []datastore.Property{
		{Name: "name", Value: nullString(e.Name)},
		{Name: "email", Value: nullString(e.Email)},
		{Name: "image", Value: nullString(e.Image), NoIndex: true},
		{Name: "emailVerified", Value: nullTime(e.EmailVerified)},
	}, nil
}

func (e *UserEntity) Load(props []datastore.Property) error {
	var err error
	for _, p := range props {
		switch p.Name {
		case "name":
			e.Name = loadString(p.Value)
		case "email":
			e.Email = loadString(p.Value)
		case "image":
			e.Image = loadString(p.Value)
		case "emailVerified":
			if e.EmailVerified, err = loadTime(p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *UserEntity) ToUser(key *datastore.Key) *da.User {
	return &da.User{
		ID:            key.Name,
		Name:          e.Name,
		Email:         e.Email,
		Image:         e.Image,
		EmailVerified: da.TimePtr(e.EmailVerified),
	}
}

func UserToEntity(u *da.User) *UserEntity {
	e := &UserEntity{Name: u.Name, Email: u.Email, Image: u.Image}
	if u.EmailVerified != nil {
		e.EmailVerified = *u.EmailVerified
	}
	return e
}

// AccountEntity is the Datastore entity for linked accounts (kind "account")
type AccountEntity struct {
	da.Account
}

func (e *AccountEntity) Save() ([]datastore.Property, error) {
	a := &e.Account
	return []datastore.Property{
		{Name: "userId", Value: nullIfEmpty(a.UserID)},
		{Name: "type", Value: nullIfEmpty(a.Type)},
		{Name: "provider", Value: nullIfEmpty(a.Provider)},
		{Name: "providerAccountId", Value: nullIfEmpty(a.ProviderAccountID)},
		{Name: "refresh_token", Value: nullString(a.RefreshToken), NoIndex: true},
		{Name: "access_token", Value: nullString(a.AccessToken), NoIndex: true},
		{Name: "expires_at", Value: nullInt(a.ExpiresAt)},
		{Name: "token_type", Value: nullString(a.TokenType)},
		{Name: "scope", Value: nullString(a.Scope), NoIndex: true},
		{Name: "id_token", Value: nullString(a.IDToken), NoIndex: true},
		{Name: "session_state", Value: nullString(a.SessionState), NoIndex: true},
	}, nil
}

func (e *AccountEntity) Load(props []datastore.Property) error {
	a := &e.Account
	for _, p := range props {
		switch p.Name {
		case "userId":
			a.UserID = da.StringValue(loadString(p.Value))
		case "type":
			a.Type = da.StringValue(loadString(p.Value))
		case "provider":
			a.Provider = da.StringValue(loadString(p.Value))
		case "providerAccountId":
			a.ProviderAccountID = da.StringValue(loadString(p.Value))
		case "refresh_token":
			a.RefreshToken = loadString(p.Value)
		case "access_token":
			a.AccessToken = loadString(p.Value)
		case "expires_at":
			a.ExpiresAt = loadInt(p.Value)
		case "token_type":
			a.TokenType = loadString(p.Value)
		case "scope":
			a.Scope = loadString(p.Value)
		case "id_token":
			a.IDToken = loadString(p.Value)
		case "session_state":
			a.SessionState = loadString(p.Value)
		}
	}
	return nil
}

// SessionEntity is the Datastore entity for sessions (kind "session")
type SessionEntity struct {
	SessionToken string
	UserID       string
	Expires      time.Time
}

func (e *SessionEntity) Save() ([]datastore.Property, error) {
	return []datastore.Property{
		{Name: "sessionToken", Value: nullIfEmpty(e.SessionToken)},
		{Name: "userId", Value: nullIfEmpty(e.UserID)},
		{Name: "expires", Value: nullTime(e.Expires)},
	}, nil
}

func (e *SessionEntity) Load(props []datastore.Property) error {
	var err error
	for _, p := range props {
		switch p.Name {
		case "sessionToken":
			e.SessionToken = da.StringValue(loadString(p.Value))
		case "userId":
			e.UserID = da.StringValue(loadString(p.Value))
		case "expires":
			if e.Expires, err = loadTime(p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *SessionEntity) ToSession(key *datastore.Key) *da.Session {
	return &da.Session{
		ID:           key.Name,
		SessionToken: e.SessionToken,
		UserID:       e.UserID,
		Expires:      e.Expires,
	}
}

func SessionToEntity(s *da.Session) *SessionEntity {
	return &SessionEntity{SessionToken: s.SessionToken, UserID: s.UserID, Expires: s.Expires}
}

// VerificationTokenEntity is the Datastore entity for verification tokens (kind "verificationToken")
type VerificationTokenEntity struct {
	Identifier string
	Token      string
	Expires    time.Time
}

func (e *VerificationTokenEntity) Save() ([]datastore.Property, error) {
	return []datastore.Property{
		{Name: "identifier", Value: nullIfEmpty(e.Identifier)},
		{Name: "token", Value: nullIfEmpty(e.Token)},
		{Name: "expires", Value: nullTime(e.Expires)},
	}, nil
}

func (e *VerificationTokenEntity) Load(props []datastore.Property) error {
	var err error
	for _, p := range props {
		switch p.Name {
		case "identifier":
			e.Identifier = da.StringValue(loadString(p.Value))
		case "token":
			e.Token = da.StringValue(loadString(p.Value))
		case "expires":
			if e.Expires, err = loadTime(p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *VerificationTokenEntity) ToVerificationToken(key *datastore.Key) *da.VerificationToken {
	return &da.VerificationToken{
		ID:         key.Name,
		Identifier: e.Identifier,
		Token:      e.Token,
		Expires:    e.Expires,
	}
}

// CredentialEntity is a cached scoped credential (kind "tokens"), keyed by session token.
// Expiry is stored as milliseconds since the epoch.
type CredentialEntity struct {
	Token   string
	UserID  string
	Expires time.Time
}

func (e *CredentialEntity) Save() ([]datastore.Property, error) {
	return []datastore.Property{
		{Name: "token", Value: e.Token, NoIndex: true},
		{Name: "userId", Value: nullIfEmpty(e.UserID)},
		{Name: "expires", Value: e.Expires.UnixMilli()},
	}, nil
}

func (e *CredentialEntity) Load(props []datastore.Property) error {
	var err error
	for _, p := range props {
		switch p.Name {
		case "token":
			e.Token = da.StringValue(loadString(p.Value))
		case "userId":
			e.UserID = da.StringValue(loadString(p.Value))
		case "expires":
			if e.Expires, err = loadTime(p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// TodoEntity is one to-do item (kind "store") under its owner's "store" parent key
type TodoEntity struct {
	Checked bool
	Label   string
}

func (e *TodoEntity) Save() ([]datastore.Property, error) {
	return []datastore.Property{
		{Name: "checked", Value: e.Checked},
		{Name: "label", Value: e.Label, NoIndex: true},
	}, nil
}

func (e *TodoEntity) Load(props []datastore.Property) error {
	for _, p := range props {
		switch p.Name {
		case "checked":
			e.Checked, _ = p.Value.(bool)
		case "label":
			e.Label = da.StringValue(loadString(p.Value))
		}
	}
	return nil
}

func (e *TodoEntity) ToItem(key *datastore.Key) *todo.Item {
	return &todo.Item{ID: key.Name, Checked: e.Checked, Label: e.Label}
}
