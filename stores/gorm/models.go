//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/todo"
)

// Optional columns are pointers so that absent values are stored as NULL

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// UserModel is the GORM model for users
type UserModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	Name          *string `gorm:"size:255"`
	Email         *string `gorm:"size:255;index"`
	Image         *string
	EmailVerified *time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *da.User {
	return &da.User{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		Image:         m.Image,
		EmailVerified: m.EmailVerified,
	}
}

func UserToModel(u *da.User) *UserModel {
	return &UserModel{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Image:         u.Image,
		EmailVerified: u.EmailVerified,
	}
}

// AccountModel is the GORM model for linked provider accounts
type AccountModel struct {
	ID                string  `gorm:"primaryKey;size:64"`
	UserID            *string `gorm:"size:64;index"`
	Type              *string `gorm:"size:32"`
	Provider          *string `gorm:"size:64;index:idx_accounts_provider"`
	ProviderAccountID *string `gorm:"size:255;index:idx_accounts_provider"`
	RefreshToken      *string
	AccessToken       *string
	ExpiresAt         *int64
	TokenType         *string `gorm:"size:32"`
	Scope             *string
	IDToken           *string
	SessionState      *string
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *da.Account {
	return &da.Account{
		ID:                m.ID,
		UserID:            da.StringValue(m.UserID),
		Type:              da.StringValue(m.Type),
		Provider:          da.StringValue(m.Provider),
		ProviderAccountID: da.StringValue(m.ProviderAccountID),
		RefreshToken:      m.RefreshToken,
		AccessToken:       m.AccessToken,
		ExpiresAt:         m.ExpiresAt,
		TokenType:         m.TokenType,
		Scope:             m.Scope,
		IDToken:           m.IDToken,
		SessionState:      m.SessionState,
	}
}

func AccountToModel(a *da.Account) *AccountModel {
	return &AccountModel{
		ID:                a.ID,
		UserID:            nullIfEmpty(a.UserID),
		Type:              nullIfEmpty(a.Type),
		Provider:          nullIfEmpty(a.Provider),
		ProviderAccountID: nullIfEmpty(a.ProviderAccountID),
		RefreshToken:      a.RefreshToken,
		AccessToken:       a.AccessToken,
		ExpiresAt:         a.ExpiresAt,
		TokenType:         a.TokenType,
		Scope:             a.Scope,
		IDToken:           a.IDToken,
		SessionState:      a.SessionState,
	}
}

// SessionModel is the GORM model for sessions
type SessionModel struct {
	ID           string     `gorm:"primaryKey;size:64"`
	SessionToken *string    `gorm:"size:255;index"`
	UserID       *string    `gorm:"size:64;index"`
	Expires      *time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *da.Session {
	return &da.Session{
		ID:           m.ID,
		SessionToken: da.StringValue(m.SessionToken),
		UserID:       da.StringValue(m.UserID),
		Expires:      timeValue(m.Expires),
	}
}

func SessionToModel(s *da.Session) *SessionModel {
	return &SessionModel{
		ID:           s.ID,
		SessionToken: nullIfEmpty(s.SessionToken),
		UserID:       nullIfEmpty(s.UserID),
		Expires:      nullTime(s.Expires),
	}
}

// VerificationTokenModel is the GORM model for single-use verification tokens
type VerificationTokenModel struct {
	ID         string  `gorm:"primaryKey;size:64"`
	Identifier *string `gorm:"size:255;index:idx_verification_tokens_lookup"`
	Token      *string `gorm:"size:255;index:idx_verification_tokens_lookup"`
	Expires    *time.Time
}

func (VerificationTokenModel) TableName() string {
	return "verification_tokens"
}

func (m *VerificationTokenModel) ToVerificationToken() *da.VerificationToken {
	return &da.VerificationToken{
		ID:         m.ID,
		Identifier: da.StringValue(m.Identifier),
		Token:      da.StringValue(m.Token),
		Expires:    timeValue(m.Expires),
	}
}

// ScopedCredentialModel is a cached scoped credential keyed by session token.
// Expiry is kept in milliseconds since the epoch.
type ScopedCredentialModel struct {
	Key     string  `gorm:"column:cache_key;primaryKey;size:255"`
	UserID  *string `gorm:"size:64"`
	Token   string
	Expires int64
}

func (ScopedCredentialModel) TableName() string {
	return "scoped_credentials"
}

func (m *ScopedCredentialModel) ToScopedCredential() *da.ScopedCredential {
	return &da.ScopedCredential{
		Key:     m.Key,
		UserID:  da.StringValue(m.UserID),
		Token:   m.Token,
		Expires: time.UnixMilli(m.Expires),
	}
}

// TodoItemModel is one to-do item, partitioned by owner
type TodoItemModel struct {
	Owner   string `gorm:"primaryKey;size:64"`
	ID      string `gorm:"primaryKey;size:64"`
	Checked bool   `gorm:"index"`
	Label   string
}

func (TodoItemModel) TableName() string {
	return "todo_items"
}

func (m *TodoItemModel) ToItem() *todo.Item {
	return &todo.Item{ID: m.ID, Checked: m.Checked, Label: m.Label}
}
