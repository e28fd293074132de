//go:build !wasm
// +build !wasm

package gae_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/stores/gae"
	"github.com/panyam/docauth/stores/storetest"
	"github.com/panyam/docauth/todo"
)

// newTestClient connects to the Datastore emulator, skipping when none is configured
func newTestClient(t *testing.T) *datastore.Client {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	projectID := os.Getenv("DATASTORE_PROJECT_ID")
	if projectID == "" {
		projectID = "docauth-test"
	}
	client, err := datastore.NewClient(context.Background(), projectID, option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("datastore.NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Each test gets its own namespace so runs do not see each other's data
func testNamespace() string {
	return "test-" + uuid.NewString()
}

func TestAdapterConformance(t *testing.T) {
	client := newTestClient(t)
	storetest.RunAdapterSuite(t, func(t *testing.T, opts ...da.StoreOption) da.Adapter {
		return gae.NewAdapter(client, testNamespace(), opts...)
	})
}

func TestCredentialCache(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	cache := gae.NewCredentialCache(client, testNamespace())

	expires := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	cred := &da.ScopedCredential{Key: "sess-1", UserID: "u1", Token: "tok", Expires: expires}
	if err := cache.PutCredential(ctx, cred); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}
	got, err := cache.GetCredential(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got == nil || got.Token != "tok" || got.UserID != "u1" || !got.Expires.Equal(expires) {
		t.Errorf("GetCredential = %+v", got)
	}

	if err := cache.DeleteCredential(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	got, err = cache.GetCredential(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCredential after delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestCredentialCache_LegacyStringExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	ns := testNamespace()
	cache := gae.NewCredentialCache(client, ns)

	key := datastore.NameKey(gae.KindCredential, "legacy", nil)
	key.Namespace = ns
	props := datastore.PropertyList{
		{Name: "token", Value: "old-token"},
		{Name: "expires", Value: "2030-01-02T03:04:05Z"},
	}
	if _, err := client.Put(ctx, key, &props); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := cache.GetCredential(ctx, "legacy")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if got == nil || !got.Expires.Equal(want) {
		t.Errorf("GetCredential = %+v, want expires %v", got, want)
	}
}

func TestTodoStore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	s := gae.NewTodoStore(client, testNamespace())

	a, err := s.CreateItem(ctx, "alice", &todo.Item{Label: "milk"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := s.CreateItem(ctx, "alice", &todo.Item{Label: "bread", Checked: true}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := s.CreateItem(ctx, "bob", &todo.Item{Label: "eggs"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	active, err := s.QueryItems(ctx, "alice", todo.Active)
	if err != nil {
		t.Fatalf("QueryItems failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("active items = %+v", active)
	}

	all, err := s.QueryItems(ctx, "alice", todo.All)
	if err != nil {
		t.Fatalf("QueryItems failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}

	a.Checked = true
	updated, err := s.UpdateItem(ctx, "alice", a)
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if updated == nil || !updated.Checked {
		t.Errorf("UpdateItem = %+v", updated)
	}

	if got, _ := s.GetItem(ctx, "bob", a.ID); got != nil {
		t.Errorf("bob should not see alice's item")
	}
}
