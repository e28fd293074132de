//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/todo"
)

// DefaultNamespace holds the adapter's kinds unless another is configured
const DefaultNamespace = "_next_auth_firestore_adapter_"

// Kind constants for Datastore entities
const (
	KindUser              = "user"
	KindAccount           = "account"
	KindSession           = "session"
	KindVerificationToken = "verificationToken"
	KindCredential        = "tokens"
	KindTodo              = "store"
)

// ============================================================================
// Adapter
// ============================================================================

// Adapter implements da.Adapter using Google Cloud Datastore
type Adapter struct {
	client    *datastore.Client
	namespace string
	opts      da.StoreOptions
}

// NewAdapter creates a Datastore-backed Adapter. An empty namespace selects DefaultNamespace.
func NewAdapter(client *datastore.Client, namespace string, opts ...da.StoreOption) *Adapter {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Adapter{
		client:    client,
		namespace: namespace,
		opts:      da.NewStoreOptions(opts...),
	}
}

func (s *Adapter) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Adapter) newKey(kind string) *datastore.Key {
	return s.namespacedKey(kind, uuid.NewString())
}

func (s *Adapter) query(kind string) *datastore.Query {
	return datastore.NewQuery(kind).Namespace(s.namespace)
}

// findOne runs q ordered by key and loads the first result into dst.
// A nil key means nothing matched. Ordering by key makes the smallest
// document id win when several match.
func (s *Adapter) findOne(ctx context.Context, q *datastore.Query, dst any) (*datastore.Key, error) {
	it := s.client.Run(ctx, q.Order("__key__").Limit(1))
	key, err := it.Next(dst)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// get loads the entity at key into dst, reporting false if it does not exist
func (s *Adapter) get(ctx context.Context, key *datastore.Key, dst any) (bool, error) {
	err := s.client.Get(ctx, key, dst)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Adapter) CreateUser(ctx context.Context, user *da.User) (*da.User, error) {
	key := s.newKey(KindUser)
	entity := UserToEntity(user)
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return entity.ToUser(key), nil
}

func (s *Adapter) GetUser(ctx context.Context, id string) (*da.User, error) {
	if id == "" {
		return nil, nil
	}
	key := s.namespacedKey(KindUser, id)
	var entity UserEntity
	found, err := s.get(ctx, key, &entity)
	if err != nil || !found {
		return nil, err
	}
	return entity.ToUser(key), nil
}

func (s *Adapter) GetUserByEmail(ctx context.Context, email string) (*da.User, error) {
	var entity UserEntity
	key, err := s.findOne(ctx, s.query(KindUser).FilterField("email", "=", email), &entity)
	if err != nil || key == nil {
		return nil, err
	}
	return entity.ToUser(key), nil
}

func (s *Adapter) findAccount(ctx context.Context, provider, providerAccountID string, dst *AccountEntity) (*datastore.Key, error) {
	q := s.query(KindAccount).
		FilterField("provider", "=", provider).
		FilterField("providerAccountId", "=", providerAccountID)
	return s.findOne(ctx, q, dst)
}

func (s *Adapter) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*da.User, error) {
	var account AccountEntity
	key, err := s.findAccount(ctx, provider, providerAccountID, &account)
	if err != nil || key == nil {
		return nil, err
	}
	return s.GetUser(ctx, account.UserID)
}

func (s *Adapter) UpdateUser(ctx context.Context, user *da.User) (*da.User, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("updating user: missing id")
	}
	key := s.namespacedKey(KindUser, user.ID)
	if _, err := s.client.Put(ctx, key, UserToEntity(user)); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

func (s *Adapter) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	// Deleting a missing key is not an error in Datastore
	return s.client.Delete(ctx, s.namespacedKey(KindUser, id))
}

func (s *Adapter) LinkAccount(ctx context.Context, account *da.Account) (*da.Account, error) {
	key := s.newKey(KindAccount)
	entity := &AccountEntity{Account: *account}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, fmt.Errorf("linking account: %w", err)
	}
	out := entity.Account
	out.ID = key.Name
	return &out, nil
}

func (s *Adapter) UnlinkAccount(ctx context.Context, provider, providerAccountID string) error {
	var account AccountEntity
	key, err := s.findAccount(ctx, provider, providerAccountID, &account)
	if err != nil || key == nil {
		return err
	}
	return s.client.Delete(ctx, key)
}

func (s *Adapter) CreateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	key := s.newKey(KindSession)
	entity := SessionToEntity(session)
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return entity.ToSession(key), nil
}

func (s *Adapter) findSession(ctx context.Context, sessionToken string, dst *SessionEntity) (*datastore.Key, error) {
	return s.findOne(ctx, s.query(KindSession).FilterField("sessionToken", "=", sessionToken), dst)
}

func (s *Adapter) GetSessionAndUser(ctx context.Context, sessionToken string) (*da.SessionAndUser, error) {
	var entity SessionEntity
	key, err := s.findSession(ctx, sessionToken, &entity)
	if err != nil || key == nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, entity.UserID)
	if err != nil || user == nil {
		return nil, err
	}
	return &da.SessionAndUser{Session: entity.ToSession(key), User: user}, nil
}

func (s *Adapter) UpdateSession(ctx context.Context, session *da.Session) (*da.Session, error) {
	var existing SessionEntity
	key, err := s.findSession(ctx, session.SessionToken, &existing)
	if err != nil || key == nil {
		return nil, err
	}
	if _, err := s.client.Put(ctx, key, SessionToEntity(session)); err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}
	return session, nil
}

func (s *Adapter) DeleteSession(ctx context.Context, sessionToken string) error {
	var entity SessionEntity
	key, err := s.findSession(ctx, sessionToken, &entity)
	if err != nil || key == nil {
		return err
	}
	if err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.opts.RevokeCredential(ctx, sessionToken)
	return nil
}

func (s *Adapter) CreateVerificationToken(ctx context.Context, token *da.VerificationToken) (*da.VerificationToken, error) {
	key := s.newKey(KindVerificationToken)
	entity := &VerificationTokenEntity{Identifier: token.Identifier, Token: token.Token, Expires: token.Expires}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, fmt.Errorf("creating verification token: %w", err)
	}
	return entity.ToVerificationToken(key), nil
}

func (s *Adapter) UseVerificationToken(ctx context.Context, identifier, token string) (*da.VerificationToken, error) {
	q := s.query(KindVerificationToken).
		FilterField("identifier", "=", identifier).
		FilterField("token", "=", token)
	var entity VerificationTokenEntity
	key, err := s.findOne(ctx, q, &entity)
	if err != nil || key == nil {
		return nil, err
	}
	if err := s.client.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("consuming verification token: %w", err)
	}
	return entity.ToVerificationToken(key), nil
}

// ListExpiredSessions returns sessions whose expiry is before the cutoff, oldest first.
// The lower bound keeps sessions with a null expiry out of the range.
func (s *Adapter) ListExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*da.Session, error) {
	q := s.query(KindSession).
		FilterField("expires", ">", time.Unix(0, 0).UTC()).
		FilterField("expires", "<", before.UTC()).
		Order("expires")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var sessions []*da.Session
	it := s.client.Run(ctx, q)
	for {
		var entity SessionEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, entity.ToSession(key))
	}
	return sessions, nil
}

// ============================================================================
// CredentialCache
// ============================================================================

// CredentialCache implements da.CredentialCache using Datastore entities of
// kind "tokens" keyed by session token
type CredentialCache struct {
	client    *datastore.Client
	namespace string
}

// NewCredentialCache creates a Datastore-backed credential cache.
// The default namespace ("") keeps credentials apart from the adapter's kinds.
func NewCredentialCache(client *datastore.Client, namespace string) *CredentialCache {
	return &CredentialCache{client: client, namespace: namespace}
}

func (c *CredentialCache) key(sessionToken string) *datastore.Key {
	key := datastore.NameKey(KindCredential, sessionToken, nil)
	key.Namespace = c.namespace
	return key
}

func (c *CredentialCache) GetCredential(ctx context.Context, key string) (*da.ScopedCredential, error) {
	var entity CredentialEntity
	if err := c.client.Get(ctx, c.key(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return &da.ScopedCredential{
		Key:     key,
		UserID:  entity.UserID,
		Token:   entity.Token,
		Expires: entity.Expires,
	}, nil
}

func (c *CredentialCache) PutCredential(ctx context.Context, cred *da.ScopedCredential) error {
	entity := &CredentialEntity{Token: cred.Token, UserID: cred.UserID, Expires: cred.Expires}
	_, err := c.client.Put(ctx, c.key(cred.Key), entity)
	return err
}

func (c *CredentialCache) DeleteCredential(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.key(key))
}

// ============================================================================
// TodoStore
// ============================================================================

// TodoStore implements todo.Store. Items of one owner are children of the
// owner's "store" key, so every query is an ancestor query.
type TodoStore struct {
	client    *datastore.Client
	namespace string
}

func NewTodoStore(client *datastore.Client, namespace string) *TodoStore {
	return &TodoStore{client: client, namespace: namespace}
}

func (s *TodoStore) ownerKey(owner string) *datastore.Key {
	key := datastore.NameKey(KindTodo, owner, nil)
	key.Namespace = s.namespace
	return key
}

func (s *TodoStore) itemKey(owner, id string) *datastore.Key {
	key := datastore.NameKey(KindTodo, id, s.ownerKey(owner))
	key.Namespace = s.namespace
	return key
}

func (s *TodoStore) CreateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	key := s.itemKey(owner, uuid.NewString())
	entity := &TodoEntity{Checked: item.Checked, Label: item.Label}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return entity.ToItem(key), nil
}

func (s *TodoStore) GetItem(ctx context.Context, owner, id string) (*todo.Item, error) {
	key := s.itemKey(owner, id)
	var entity TodoEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToItem(key), nil
}

func (s *TodoStore) UpdateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("updating item: missing id")
	}
	key := s.itemKey(owner, item.ID)
	var out *todo.Item
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing TodoEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		entity := &TodoEntity{Checked: item.Checked, Label: item.Label}
		if _, err := tx.Put(key, entity); err != nil {
			return err
		}
		out = entity.ToItem(key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TodoStore) DeleteItem(ctx context.Context, owner, id string) error {
	return s.client.Delete(ctx, s.itemKey(owner, id))
}

func (s *TodoStore) QueryItems(ctx context.Context, owner string, filter todo.Filter) ([]*todo.Item, error) {
	q := datastore.NewQuery(KindTodo).Namespace(s.namespace).Ancestor(s.ownerKey(owner))
	switch filter {
	case todo.Active:
		q = q.FilterField("checked", "=", false)
	case todo.Completed:
		q = q.FilterField("checked", "=", true)
	}

	var items []*todo.Item
	it := s.client.Run(ctx, q)
	for {
		var entity TodoEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		// The owner's own key is of the same kind but is never written, so skip it if present
		if key.Parent == nil {
			continue
		}
		items = append(items, entity.ToItem(key))
	}
	return items, nil
}
