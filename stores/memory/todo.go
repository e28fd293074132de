package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/panyam/docauth/todo"
)

// TodoStore implements todo.Store in memory
type TodoStore struct {
	mu     sync.RWMutex
	owners map[string]map[string]todo.Item
}

func NewTodoStore() *TodoStore {
	return &TodoStore{owners: make(map[string]map[string]todo.Item)}
}

func (s *TodoStore) CreateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.owners[owner]
	if !ok {
		items = make(map[string]todo.Item)
		s.owners[owner] = items
	}
	out := *item
	out.ID = uuid.NewString()
	items[out.ID] = out
	return &out, nil
}

func (s *TodoStore) GetItem(ctx context.Context, owner, id string) (*todo.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.owners[owner][id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *TodoStore) UpdateItem(ctx context.Context, owner string, item *todo.Item) (*todo.Item, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("updating item: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.owners[owner]
	if _, ok := items[item.ID]; !ok {
		return nil, nil
	}
	items[item.ID] = *item
	out := *item
	return &out, nil
}

func (s *TodoStore) DeleteItem(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners[owner], id)
	return nil
}

func (s *TodoStore) QueryItems(ctx context.Context, owner string, filter todo.Filter) ([]*todo.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*todo.Item
	for _, item := range s.owners[owner] {
		if filter.Matches(&item) {
			item := item
			out = append(out, &item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
