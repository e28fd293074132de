// Package storetest holds a conformance suite that every docauth.Adapter
// backend runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	da "github.com/panyam/docauth"
)

// Factory returns a fresh, empty adapter configured with opts
type Factory func(t *testing.T, opts ...da.StoreOption) da.Adapter

// RecordingCache is a CredentialCache that remembers deletions and can be made to fail
type RecordingCache struct {
	mu        sync.Mutex
	creds     map[string]da.ScopedCredential
	Deleted   []string
	DeleteErr error
}

func NewRecordingCache() *RecordingCache {
	return &RecordingCache{creds: make(map[string]da.ScopedCredential)}
}

func (c *RecordingCache) GetCredential(ctx context.Context, key string) (*da.ScopedCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, ok := c.creds[key]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (c *RecordingCache) PutCredential(ctx context.Context, cred *da.ScopedCredential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds[cred.Key] = *cred
	return nil
}

func (c *RecordingCache) DeleteCredential(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, key)
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	delete(c.creds, key)
	return nil
}

// DeletedKeys returns the keys passed to DeleteCredential so far
func (c *RecordingCache) DeletedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Deleted...)
}

// RunAdapterSuite runs every conformance test against adapters built by newAdapter
func RunAdapterSuite(t *testing.T, newAdapter Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newAdapter Factory)
	}{
		{"CreateAndGetUser", testCreateAndGetUser},
		{"GetUserByEmail", testGetUserByEmail},
		{"ResolveOnePicksSmallestID", testResolveOnePicksSmallestID},
		{"GetUserByAccount", testGetUserByAccount},
		{"UpdateUserReplaces", testUpdateUserReplaces},
		{"DeleteUserDoesNotCascade", testDeleteUserDoesNotCascade},
		{"UnlinkAccount", testUnlinkAccount},
		{"SessionAndUser", testSessionAndUser},
		{"UpdateSession", testUpdateSession},
		{"DeleteSessionTwice", testDeleteSessionTwice},
		{"DeleteSessionRevokesCredential", testDeleteSessionRevokesCredential},
		{"DeleteSessionIgnoresCacheFailure", testDeleteSessionIgnoresCacheFailure},
		{"VerificationTokenSingleUse", testVerificationTokenSingleUse},
		{"ListExpiredSessions", testListExpiredSessions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newAdapter)
		})
	}
}

func baseTime() time.Time {
	// Millisecond precision survives every backend
	return time.Now().UTC().Truncate(time.Millisecond)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func assertUserEqual(t *testing.T, got, want *da.User) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected user %q, got nil", want.ID)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if da.StringValue(got.Name) != da.StringValue(want.Name) ||
		da.StringValue(got.Email) != da.StringValue(want.Email) ||
		da.StringValue(got.Image) != da.StringValue(want.Image) {
		t.Errorf("user fields = %+v, want %+v", got, want)
	}
	if (got.Image == nil) != (want.Image == nil) {
		t.Errorf("Image presence = %v, want %v", got.Image != nil, want.Image != nil)
	}
	if !sameTime(got.EmailVerified, want.EmailVerified) {
		t.Errorf("EmailVerified = %v, want %v", got.EmailVerified, want.EmailVerified)
	}
}

func testCreateAndGetUser(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	verified := baseTime()
	tests := []struct {
		name string
		user *da.User
	}{
		{"minimal", &da.User{Email: da.StringPtr("min@example.com")}},
		{"full", &da.User{
			Name:          da.StringPtr("Alice"),
			Email:         da.StringPtr("alice@example.com"),
			Image:         da.StringPtr("https://example.com/a.png"),
			EmailVerified: &verified,
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			created, err := a.CreateUser(ctx, tc.user)
			if err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}
			if created.ID == "" {
				t.Fatal("expected assigned id")
			}
			got, err := a.GetUser(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetUser failed: %v", err)
			}
			want := *tc.user
			want.ID = created.ID
			assertUserEqual(t, got, &want)
		})
	}

	missing, err := a.GetUser(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetUser(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}
}

func testGetUserByEmail(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	created, err := a.CreateUser(ctx, &da.User{Email: da.StringPtr("bob@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	got, err := a.GetUserByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	assertUserEqual(t, got, created)

	got, err = a.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail(missing) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func testResolveOnePicksSmallestID(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	var ids []string
	for i := 0; i < 3; i++ {
		u, err := a.CreateUser(ctx, &da.User{Email: da.StringPtr("dup@example.com")})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)

	got, err := a.GetUserByEmail(ctx, "dup@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got == nil || got.ID != ids[0] {
		t.Errorf("GetUserByEmail picked %v, want smallest id %q", got, ids[0])
	}
}

func testGetUserByAccount(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	got, err := a.GetUserByAccount(ctx, "github", "gh-1")
	if err != nil {
		t.Fatalf("GetUserByAccount(unlinked) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unlinked account, got %+v", got)
	}

	user, err := a.CreateUser(ctx, &da.User{Name: da.StringPtr("Carol")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	expiresAt := int64(1700000000)
	account, err := a.LinkAccount(ctx, &da.Account{
		UserID:            user.ID,
		Type:              "oauth",
		Provider:          "github",
		ProviderAccountID: "gh-1",
		AccessToken:       da.StringPtr("at"),
		ExpiresAt:         &expiresAt,
	})
	if err != nil {
		t.Fatalf("LinkAccount failed: %v", err)
	}
	if account.ID == "" {
		t.Error("expected assigned account id")
	}

	got, err = a.GetUserByAccount(ctx, "github", "gh-1")
	if err != nil {
		t.Fatalf("GetUserByAccount failed: %v", err)
	}
	assertUserEqual(t, got, user)

	// Same account id under a different provider is a different account
	got, err = a.GetUserByAccount(ctx, "google", "gh-1")
	if err != nil {
		t.Fatalf("GetUserByAccount(other provider) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for other provider, got %+v", got)
	}

	// An account whose user is gone resolves to absent
	if err := a.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	got, err = a.GetUserByAccount(ctx, "github", "gh-1")
	if err != nil {
		t.Fatalf("GetUserByAccount(orphan) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for orphaned account, got %+v", got)
	}
}

func testUpdateUserReplaces(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	created, err := a.CreateUser(ctx, &da.User{
		Name:  da.StringPtr("Dave"),
		Email: da.StringPtr("dave@example.com"),
		Image: da.StringPtr("https://example.com/d.png"),
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	update := &da.User{ID: created.ID, Name: da.StringPtr("David")}
	returned, err := a.UpdateUser(ctx, update)
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	assertUserEqual(t, returned, update)

	got, err := a.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	// Fields not passed are cleared
	assertUserEqual(t, got, update)
}

func testDeleteUserDoesNotCascade(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	if err := a.DeleteUser(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteUser(missing) returned %v, want nil", err)
	}

	user, err := a.CreateUser(ctx, &da.User{Email: da.StringPtr("erin@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	session, err := a.CreateSession(ctx, &da.Session{
		SessionToken: "erin-tok",
		UserID:       user.ID,
		Expires:      baseTime().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := a.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	// The session document survives, but it no longer resolves to a user
	su, err := a.GetSessionAndUser(ctx, session.SessionToken)
	if err != nil {
		t.Fatalf("GetSessionAndUser failed: %v", err)
	}
	if su != nil {
		t.Errorf("expected nil session-and-user for deleted user, got %+v", su)
	}
	updated, err := a.UpdateSession(ctx, session)
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated == nil {
		t.Error("expected orphaned session to remain")
	}
}

func testUnlinkAccount(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	if err := a.UnlinkAccount(ctx, "github", "missing"); err != nil {
		t.Errorf("UnlinkAccount(missing) returned %v, want nil", err)
	}

	user, err := a.CreateUser(ctx, &da.User{Email: da.StringPtr("frank@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := a.LinkAccount(ctx, &da.Account{UserID: user.ID, Type: "oauth", Provider: "github", ProviderAccountID: "gh-2"}); err != nil {
		t.Fatalf("LinkAccount failed: %v", err)
	}
	if err := a.UnlinkAccount(ctx, "github", "gh-2"); err != nil {
		t.Fatalf("UnlinkAccount failed: %v", err)
	}
	got, err := a.GetUserByAccount(ctx, "github", "gh-2")
	if err != nil {
		t.Fatalf("GetUserByAccount failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after unlink, got %+v", got)
	}
}

func testSessionAndUser(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	user, err := a.CreateUser(ctx, &da.User{Name: da.StringPtr("u1"), Email: da.StringPtr("u1@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	expires := baseTime().Add(time.Hour)
	if _, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok1", UserID: user.ID, Expires: expires}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	su, err := a.GetSessionAndUser(ctx, "tok1")
	if err != nil {
		t.Fatalf("GetSessionAndUser failed: %v", err)
	}
	if su == nil {
		t.Fatal("expected session and user")
	}
	assertUserEqual(t, su.User, user)
	if su.Session.SessionToken != "tok1" || su.Session.UserID != user.ID {
		t.Errorf("session = %+v", su.Session)
	}
	if !su.Session.Expires.Equal(expires) {
		t.Errorf("Expires = %v, want %v", su.Session.Expires, expires)
	}
	if su.Session.ID == "" {
		t.Error("expected session id")
	}

	su, err = a.GetSessionAndUser(ctx, "no-such-token")
	if err != nil {
		t.Fatalf("GetSessionAndUser(missing) failed: %v", err)
	}
	if su != nil {
		t.Errorf("expected nil, got %+v", su)
	}
}

func testUpdateSession(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	user, err := a.CreateUser(ctx, &da.User{Email: da.StringPtr("gina@example.com")})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	created, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok-up", UserID: user.ID, Expires: baseTime().Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	extended := baseTime().Add(48 * time.Hour)
	updated, err := a.UpdateSession(ctx, &da.Session{SessionToken: "tok-up", UserID: user.ID, Expires: extended})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated session")
	}

	su, err := a.GetSessionAndUser(ctx, "tok-up")
	if err != nil {
		t.Fatalf("GetSessionAndUser failed: %v", err)
	}
	if su == nil {
		t.Fatal("expected session and user")
	}
	if su.Session.ID != created.ID {
		t.Errorf("session id changed: %q -> %q", created.ID, su.Session.ID)
	}
	if !su.Session.Expires.Equal(extended) {
		t.Errorf("Expires = %v, want %v", su.Session.Expires, extended)
	}

	missing, err := a.UpdateSession(ctx, &da.Session{SessionToken: "nope"})
	if err != nil {
		t.Fatalf("UpdateSession(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing session, got %+v", missing)
	}
}

func testDeleteSessionTwice(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	if _, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok-del", UserID: "u", Expires: baseTime().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := a.DeleteSession(ctx, "tok-del"); err != nil {
			t.Fatalf("DeleteSession call %d failed: %v", i+1, err)
		}
	}
	updated, err := a.UpdateSession(ctx, &da.Session{SessionToken: "tok-del"})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated != nil {
		t.Error("expected session to be gone")
	}
}

func testDeleteSessionRevokesCredential(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	cache := NewRecordingCache()
	a := newAdapter(t, da.WithCredentialCache(cache))

	if _, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok-a", UserID: "u", Expires: baseTime().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok-b", UserID: "u", Expires: baseTime().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for _, key := range []string{"tok-a", "tok-b"} {
		cache.PutCredential(ctx, &da.ScopedCredential{Key: key, UserID: "u", Token: "cred-" + key, Expires: baseTime().Add(time.Hour)})
	}

	if err := a.DeleteSession(ctx, "tok-a"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if got, _ := cache.GetCredential(ctx, "tok-a"); got != nil {
		t.Errorf("expected credential for tok-a to be revoked, got %+v", got)
	}
	if got, _ := cache.GetCredential(ctx, "tok-b"); got == nil {
		t.Error("expected credential for tok-b to survive")
	}
	if deleted := cache.DeletedKeys(); len(deleted) != 1 || deleted[0] != "tok-a" {
		t.Errorf("deleted keys = %v, want [tok-a]", deleted)
	}
}

func testDeleteSessionIgnoresCacheFailure(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	cache := NewRecordingCache()
	cache.DeleteErr = errors.New("cache unavailable")
	a := newAdapter(t, da.WithCredentialCache(cache))

	if _, err := a.CreateSession(ctx, &da.Session{SessionToken: "tok-c", UserID: "u", Expires: baseTime().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := a.DeleteSession(ctx, "tok-c"); err != nil {
		t.Fatalf("DeleteSession returned %v, want nil despite cache failure", err)
	}
	updated, err := a.UpdateSession(ctx, &da.Session{SessionToken: "tok-c"})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated != nil {
		t.Error("expected session to be deleted")
	}
}

func testVerificationTokenSingleUse(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)

	expires := baseTime().Add(24 * time.Hour)
	created, err := a.CreateVerificationToken(ctx, &da.VerificationToken{Identifier: "h@example.com", Token: "vt-1", Expires: expires})
	if err != nil {
		t.Fatalf("CreateVerificationToken failed: %v", err)
	}

	used, err := a.UseVerificationToken(ctx, "h@example.com", "vt-1")
	if err != nil {
		t.Fatalf("UseVerificationToken failed: %v", err)
	}
	if used == nil {
		t.Fatal("expected consumed token")
	}
	if used.Identifier != "h@example.com" || used.Token != "vt-1" || !used.Expires.Equal(expires) {
		t.Errorf("consumed token = %+v", used)
	}
	if used.ID != created.ID {
		t.Errorf("consumed id = %q, want %q", used.ID, created.ID)
	}

	again, err := a.UseVerificationToken(ctx, "h@example.com", "vt-1")
	if err != nil {
		t.Fatalf("second UseVerificationToken failed: %v", err)
	}
	if again != nil {
		t.Errorf("expected nil on second use, got %+v", again)
	}

	// Expired tokens are still consumed; expiry is left to the caller
	if _, err := a.CreateVerificationToken(ctx, &da.VerificationToken{Identifier: "h@example.com", Token: "vt-old", Expires: baseTime().Add(-time.Hour)}); err != nil {
		t.Fatalf("CreateVerificationToken failed: %v", err)
	}
	old, err := a.UseVerificationToken(ctx, "h@example.com", "vt-old")
	if err != nil {
		t.Fatalf("UseVerificationToken(expired) failed: %v", err)
	}
	if old == nil {
		t.Error("expected expired token to be returned")
	}
}

func testListExpiredSessions(t *testing.T, newAdapter Factory) {
	ctx := context.Background()
	a := newAdapter(t)
	lister, ok := a.(da.ExpiredSessionLister)
	if !ok {
		t.Skip("adapter does not list expired sessions")
	}

	now := baseTime()
	fixtures := []struct {
		token   string
		expires time.Time
	}{
		{"old-3", now.Add(-3 * time.Hour)},
		{"old-1", now.Add(-1 * time.Hour)},
		{"old-2", now.Add(-2 * time.Hour)},
		{"live", now.Add(time.Hour)},
		{"no-expiry", time.Time{}},
	}
	for _, f := range fixtures {
		if _, err := a.CreateSession(ctx, &da.Session{SessionToken: f.token, UserID: "u", Expires: f.expires}); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", f.token, err)
		}
	}

	got, err := lister.ListExpiredSessions(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListExpiredSessions failed: %v", err)
	}
	var tokens []string
	for _, s := range got {
		tokens = append(tokens, s.SessionToken)
	}
	want := []string{"old-3", "old-2", "old-1"}
	if len(tokens) != len(want) {
		t.Fatalf("expired tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("expired tokens = %v, want %v", tokens, want)
			break
		}
	}

	got, err = lister.ListExpiredSessions(ctx, now, 2)
	if err != nil {
		t.Fatalf("ListExpiredSessions(limit) failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
