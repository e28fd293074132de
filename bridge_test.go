package docauth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	da "github.com/panyam/docauth"
	"github.com/panyam/docauth/stores/memory"
)

type countingMinter struct {
	calls atomic.Int32
}

func (m *countingMinter) Mint(ctx context.Context, req da.MintRequest) (string, error) {
	n := m.calls.Add(1)
	return fmt.Sprintf("cred-%d-%s", n, req.UserID), nil
}

type countingExchanger struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (e *countingExchanger) Exchange(ctx context.Context) (*da.Actor, error) {
	e.calls.Add(1)
	time.Sleep(e.delay)
	if e.err != nil {
		return nil, e.err
	}
	return &da.Actor{Subject: "svc@example.com"}, nil
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBridge(ex da.ActorExchanger) (*da.CredentialBridge, *memory.CredentialCache, *countingMinter, *testClock) {
	cache := memory.NewCredentialCache()
	minter := &countingMinter{}
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	bridge := da.NewCredentialBridge(cache, ex, minter)
	bridge.Now = clock.Now
	bridge.Logger = discardLogger()
	return bridge, cache, minter, clock
}

func TestBridge_ReusesCredentialWithinTTL(t *testing.T) {
	ex := &countingExchanger{}
	bridge, cache, minter, clock := newTestBridge(ex)
	ctx := context.Background()

	first, err := bridge.GetOrMint(ctx, "sess-1", "user-1", nil)
	if err != nil {
		t.Fatalf("GetOrMint failed: %v", err)
	}

	cached, _ := cache.GetCredential(ctx, "sess-1")
	if cached == nil || cached.Token != first || cached.UserID != "user-1" {
		t.Fatalf("cached credential = %+v", cached)
	}
	if want := clock.Now().Add(time.Hour); !cached.Expires.Equal(want) {
		t.Errorf("cached expiry = %v, want %v", cached.Expires, want)
	}

	clock.Advance(59 * time.Minute)
	again, err := bridge.GetOrMint(ctx, "sess-1", "user-1", nil)
	if err != nil {
		t.Fatalf("GetOrMint failed: %v", err)
	}
	if again != first {
		t.Errorf("expected the cached credential within the hour, got %q then %q", first, again)
	}

	clock.Advance(2 * time.Minute)
	renewed, err := bridge.GetOrMint(ctx, "sess-1", "user-1", nil)
	if err != nil {
		t.Fatalf("GetOrMint failed: %v", err)
	}
	if renewed == first {
		t.Error("expected a fresh credential after expiry")
	}
	if minter.calls.Load() != 2 {
		t.Errorf("minted %d times, want 2", minter.calls.Load())
	}
	if ex.calls.Load() != 1 {
		t.Errorf("exchanged %d times, want 1", ex.calls.Load())
	}
}

func TestBridge_CredentialPerSession(t *testing.T) {
	bridge, _, _, _ := newTestBridge(nil)
	ctx := context.Background()

	a, _ := bridge.GetOrMint(ctx, "sess-a", "user-1", nil)
	b, _ := bridge.GetOrMint(ctx, "sess-b", "user-1", nil)
	if a == "" || a == b {
		t.Errorf("expected distinct credentials per session, got %q and %q", a, b)
	}

	// Revoking one session leaves the other's credential in place
	if err := bridge.Revoke(ctx, "sess-a"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if again, _ := bridge.GetOrMint(ctx, "sess-b", "user-1", nil); again != b {
		t.Error("revoking sess-a changed sess-b's credential")
	}
	if again, _ := bridge.GetOrMint(ctx, "sess-a", "user-1", nil); again == a {
		t.Error("expected a new credential for the revoked session")
	}
}

func TestBridge_EmptySessionToken(t *testing.T) {
	bridge, _, minter, _ := newTestBridge(nil)
	if _, err := bridge.GetOrMint(context.Background(), "", "user-1", nil); !errors.Is(err, da.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if minter.calls.Load() != 0 {
		t.Error("nothing should be minted without a session")
	}
}

func TestBridge_InitRunsOnce(t *testing.T) {
	ex := &countingExchanger{delay: 20 * time.Millisecond}
	bridge, _, minter, _ := newTestBridge(ex)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := bridge.GetOrMint(context.Background(), fmt.Sprintf("sess-%d", i), "user-1", nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetOrMint failed: %v", err)
		}
	}
	if ex.calls.Load() != 1 {
		t.Errorf("exchanged %d times, want 1", ex.calls.Load())
	}
	if minter.calls.Load() != 20 {
		t.Errorf("minted %d times, want 20", minter.calls.Load())
	}
}

func TestBridge_InitFailureIsPermanent(t *testing.T) {
	ex := &countingExchanger{err: fmt.Errorf("%w: idp down", da.ErrExchangeFailed)}
	bridge, _, minter, _ := newTestBridge(ex)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := bridge.GetOrMint(ctx, "sess-1", "user-1", nil); !errors.Is(err, da.ErrExchangeFailed) {
			t.Fatalf("attempt %d: expected ErrExchangeFailed, got %v", i, err)
		}
	}
	if ex.calls.Load() != 1 {
		t.Errorf("exchanged %d times, want 1", ex.calls.Load())
	}
	if minter.calls.Load() != 0 {
		t.Errorf("minted %d times, want 0", minter.calls.Load())
	}
}

type recordingMetrics struct {
	hits, minted, failures atomic.Int32
}

func (m *recordingMetrics) RecordCredentialCacheHit()               { m.hits.Add(1) }
func (m *recordingMetrics) RecordCredentialMinted(time.Duration)     { m.minted.Add(1) }
func (m *recordingMetrics) RecordCredentialMintFailure()             { m.failures.Add(1) }
func (m *recordingMetrics) RecordSessionsReaped(deleted, failed int) {}

func TestBridge_RecordsMetrics(t *testing.T) {
	bridge, _, _, _ := newTestBridge(nil)
	m := &recordingMetrics{}
	bridge.Metrics = m
	ctx := context.Background()

	bridge.GetOrMint(ctx, "sess-1", "user-1", nil)
	bridge.GetOrMint(ctx, "sess-1", "user-1", nil)
	bridge.GetOrMint(ctx, "sess-1", "user-1", nil)

	if m.minted.Load() != 1 || m.hits.Load() != 2 || m.failures.Load() != 0 {
		t.Errorf("minted=%d hits=%d failures=%d", m.minted.Load(), m.hits.Load(), m.failures.Load())
	}
}
