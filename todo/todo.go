// Package todo holds the to-do application's per-user documents and the
// access-control layer that keeps each subject inside its own partition.
package todo

import (
	"context"
	"fmt"

	"github.com/panyam/docauth"
)

// Item is one to-do entry, stored under its owner's partition
type Item struct {
	ID      string `json:"id"`
	Checked bool   `json:"checked"`
	Label   string `json:"label"`
}

// Filter selects which items a query returns
type Filter int

const (
	All Filter = iota
	Active
	Completed
)

func (f Filter) String() string {
	switch f {
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return "all"
}

// Matches reports whether item passes the filter
func (f Filter) Matches(item *Item) bool {
	switch f {
	case Active:
		return !item.Checked
	case Completed:
		return item.Checked
	}
	return true
}

// Store persists items partitioned by owner (a user id).
// Get and Update return nil, nil when the item does not exist.
type Store interface {
	CreateItem(ctx context.Context, owner string, item *Item) (*Item, error)
	GetItem(ctx context.Context, owner, id string) (*Item, error)
	UpdateItem(ctx context.Context, owner string, item *Item) (*Item, error)
	DeleteItem(ctx context.Context, owner, id string) error
	QueryItems(ctx context.Context, owner string, filter Filter) ([]*Item, error)
}

// Verifier checks a scoped credential
type Verifier interface {
	Verify(token string) (*docauth.ScopedClaims, error)
}

// Guard is the access-control layer in front of a Store: every call carries
// a scoped credential, and the credential's subject must own the partition.
// Reads need the read scope and changes the write scope.
// Rejections wrap docauth.ErrAuthorizationDenied.
type Guard struct {
	Store    Store
	Verifier Verifier
}

func (g *Guard) authorize(token, owner, scope string) error {
	claims, err := g.Verifier.Verify(token)
	if err != nil {
		return err
	}
	if owner == "" || claims.UserID != owner {
		return fmt.Errorf("%w: credential does not cover partition %q", docauth.ErrAuthorizationDenied, owner)
	}
	if !docauth.ContainsScope(claims.Scopes, scope) {
		return fmt.Errorf("%w: credential lacks the %q scope", docauth.ErrAuthorizationDenied, scope)
	}
	return nil
}

func (g *Guard) CreateItem(ctx context.Context, token, owner string, item *Item) (*Item, error) {
	if err := g.authorize(token, owner, docauth.ScopeWrite); err != nil {
		return nil, err
	}
	return g.Store.CreateItem(ctx, owner, item)
}

func (g *Guard) GetItem(ctx context.Context, token, owner, id string) (*Item, error) {
	if err := g.authorize(token, owner, docauth.ScopeRead); err != nil {
		return nil, err
	}
	return g.Store.GetItem(ctx, owner, id)
}

func (g *Guard) UpdateItem(ctx context.Context, token, owner string, item *Item) (*Item, error) {
	if err := g.authorize(token, owner, docauth.ScopeWrite); err != nil {
		return nil, err
	}
	return g.Store.UpdateItem(ctx, owner, item)
}

func (g *Guard) DeleteItem(ctx context.Context, token, owner, id string) error {
	if err := g.authorize(token, owner, docauth.ScopeWrite); err != nil {
		return err
	}
	return g.Store.DeleteItem(ctx, owner, id)
}

func (g *Guard) QueryItems(ctx context.Context, token, owner string, filter Filter) ([]*Item, error) {
	if err := g.authorize(token, owner, docauth.ScopeRead); err != nil {
		return nil, err
	}
	return g.Store.QueryItems(ctx, owner, filter)
}

// ParseFilter is the inverse of Filter.String. The empty string selects All.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "all":
		return All, nil
	case "active":
		return Active, nil
	case "completed":
		return Completed, nil
	}
	return All, fmt.Errorf("unknown filter %q", s)
}
