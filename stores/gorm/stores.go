//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/todo"
)

// AutoMigrate runs database migrations for all docauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AccountModel{},
		&SessionModel{},
		&VerificationTokenModel{},
		&ScopedCredentialModel{},
		&TodoItemModel{},
	)
}

// =============================================================================
// Adapter
// =============================================================================

// Adapter implements da.Adapter using GORM
type Adapter struct {
	db   *gorm.DB
	opts da.StoreOptions
}

func NewAdapter(db *gorm.DB, opts ...da.StoreOption) *Adapter {
	return &Adapter{db: db, opts: da.NewStoreOptions(opts...)}
}

// first loads the matching row with the smallest primary key into dst.
// It reports false when nothing matches.
func first(tx *gorm.DB, dst any, query string, args ...any) (bool, error) {
	err := tx.First(dst, append([]any{query}, args...)...).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Adapter) CreateUser(ctx context.Context, user *da.User) (*da.User, error) {
	model := UserToModel(user)
	model.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return model.ToUser(), nil
}

func (s *Adapter) GetUser(ctx context.Context, id string) (*da.User, error) {
	var model UserModel
	found, err := first(s.db.WithContext(ctx), &model, "id = ?", id)
	if err != nil || !found {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Adapter) GetUserByEmail(ctx context.Context, email string) (*da.User, error) {
	var model UserModel
	found, err := first(s.db.WithContext(ctx), &model, "email = ?", email)
	if err != nil || !found {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Adapter) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*da.User, error) {
	var account AccountModel
	found, err := first(s.db.WithContext(ctx), &account, "provider = ? AND provider_account_id = ?", provider, providerAccountID)
	if err != nil || !found || account.UserID == nil {
		return nil, err
	}
	return s.GetUser(ctx, *account.UserID)
}

func (s *Adapter) UpdateUser(ctx context.Context, user *da.User) (*da.User, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("updating user: missing id")
	}
	if err := s.db.WithContext(ctx).Save(UserToModel(user)).Error; err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

func (s *Adapter) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id).Error
}

func (s *Adapter) LinkAccount(ctx context.Context, account *da.Account) (*da.Account, error) {
	model := AccountToModel(account)
	model.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("linking account: %w", err)
	}
	return model.ToAccount(), nil
}

func (s *Adapter) UnlinkAccount(ctx context.Context, provider, providerAccountID string) error {
	var account AccountModel
	found, err := first(s.db.WithContext(ctx), &account, "provider = ? AND provider_account_id = ?", provider, providerAccountID)
	if err != nil || !found {
		return err
	}
	return s.db.WithContext(ctx).Delete(&AccountModel{}, "id = ?", account.ID).Error
}

func (s *Adapter) CreateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	model := SessionToModel(session)
	model.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return model.ToSession(), nil
}

func (s *Adapter) findSession(ctx context.Context, sessionToken string) (*SessionModel, error) {
	var model SessionModel
	found, err := first(s.db.WithContext(ctx), &model, "session_token = ?", sessionToken)
	if err != nil || !found {
		return nil, err
	}
	return &model, nil
}

func (s *Adapter) GetSessionAndUser(ctx context.Context, sessionToken string) (*da.SessionAndUser, error) {
	model, err := s.findSession(ctx, sessionToken)
	if err != nil || model == nil {
		return nil, err
	}
	session := model.ToSession()
	user, err := s.GetUser(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, err
	}
	return &da.SessionAndUser{Session: session, User: user}, nil
}

func (s *Adapter) UpdateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	existing, err := s.findSession(ctx, session.SessionToken)
	if err != nil || existing == nil {
		return nil, err
	}
	model := SessionToModel(session)
	model.ID = existing.ID
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}
	return session, nil
}

func (s *Adapter) DeleteSession(ctx context.Context, sessionToken string) error {
	existing, err := s.findSession(ctx, sessionToken)
	if err != nil || existing == nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&SessionModel{}, "id = ?", existing.ID).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.opts.RevokeCredential(ctx, sessionToken)
	return nil
}

func (s *Adapter) CreateVerificationToken(ctx context.Context, token *da.VerificationToken) (*da.VerificationToken, error) {
	model := &VerificationTokenModel{
		ID:         uuid.NewString(),
		Identifier: nullIfEmpty(token.Identifier),
		Token:      nullIfEmpty(token.Token),
		Expires:    nullTime(token.Expires),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("creating verification token: %w", err)
	}
	return model.ToVerificationToken(), nil
}

func (s *Adapter) UseVerificationToken(ctx context.Context, identifier, token string) (*da.VerificationToken, error) {
	var model VerificationTokenModel
	found, err := first(s.db.WithContext(ctx), &model, "identifier = ? AND token = ?", identifier, token)
	if err != nil || !found {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&VerificationTokenModel{}, "id = ?", model.ID).Error; err != nil {
		return nil, fmt.Errorf("consuming verification token: %w", err)
	}
	return model.ToVerificationToken(), nil
}

// ListExpiredSessions returns sessions that expired before the cutoff, oldest first
func (s *Adapter) ListExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*da.Session, error) {
	var models []SessionModel
	q := s.db.WithContext(ctx).
		Where("expires IS NOT NULL AND expires < ?", before.UTC()).
		Order("expires ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	sessions := make([]*da.Session, len(models))
	for i := range models {
		sessions[i] = models[i].ToSession()
	}
	return sessions, nil
}

// =============================================================================
// CredentialCache
// =============================================================================

// CredentialCache implements da.CredentialCache using GORM
type CredentialCache struct {
	db *gorm.DB
}

func NewCredentialCache(db *gorm.DB) *CredentialCache {
	return &CredentialCache{db: db}
}

func (c *CredentialCache) GetCredential(ctx context.Context, key string) (*da.ScopedCredential, error) {
	var model ScopedCredentialModel
	found, err := first(c.db.WithContext(ctx), &model, "cache_key = ?", key)
	if err != nil || !found {
		return nil, err
	}
	return model.ToScopedCredential(), nil
}

func (c *CredentialCache) PutCredential(ctx context.Context, cred *da.ScopedCredential) error {
	model := &ScopedCredentialModel{
		Key:     cred.Key,
		UserID:  nullIfEmpty(cred.UserID),
		Token:   cred.Token,
		Expires: cred.ExpiresMillis(),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
}

func (c *CredentialCache) DeleteCredential(ctx context.Context, key string) error {
	return c.db.WithContext(ctx).Delete(&ScopedCredentialModel{}, "cache_key = ?", key).Error
}

// =============================================================================
// TodoStore
// =============================================================================

// TodoStore implements todo.Store using GORM
type TodoStore struct {
	db *gorm.DB
}

func NewTodoStore(db *gorm.DB) *TodoStore {
	return &TodoStore{db: db}
}

func (s *TodoStore) CreateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	model := &TodoItemModel{Owner: owner, ID: uuid.NewString(), Checked: item.Checked, Label: item.Label}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return model.ToItem(), nil
}

func (s *TodoStore) GetItem(ctx context.Context, owner, id string) (*todo.Item, error) {
	var model TodoItemModel
	found, err := first(s.db.WithContext(ctx), &model, "owner = ? AND id = ?", owner, id)
	if err != nil || !found {
		return nil, err
	}
	return model.ToItem(), nil
}

func (s *TodoStore) UpdateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("updating item: missing id")
	}
	result := s.db.WithContext(ctx).Model(&TodoItemModel{}).
		Where("owner = ? AND id = ?", owner, item.ID).
		Updates(map[string]any{"checked": item.Checked, "label": item.Label})
	if result.Error != nil {
		return nil, fmt.Errorf("updating item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	out := *item
	return &out, nil
}

func (s *TodoStore) DeleteItem(ctx context.Context, owner, id string) error {
	return s.db.WithContext(ctx).Delete(&TodoItemModel{}, "owner = ? AND id = ?", owner, id).Error
}

func (s *TodoStore) QueryItems(ctx context.Context, owner string, filter todo.Filter) ([]*todo.Item, error) {
	q := s.db.WithContext(ctx).Where("owner = ?", owner)
	switch filter {
	case todo.Active:
		q = q.Where("checked = ?", false)
	case todo.Completed:
		q = q.Where("checked = ?", true)
	}
	var models []TodoItemModel
	if err := q.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]*todo.Item, len(models))
	for i := range models {
		items[i] = models[i].ToItem()
	}
	return items, nil
}
