package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/panyam/docauth"
)

// countingSource hands out tok-1, tok-2, ... and counts fetches
type countingSource struct {
	fetches atomic.Int32
	err     error
}

func (s *countingSource) Token(ctx context.Context) (string, error) {
	n := s.fetches.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("tok-%d", n), nil
}

func newTestProxy(source TokenSource) *AccessProxy {
	p := &AccessProxy{Source: source, RetryDelay: time.Millisecond}
	return p.EnsureDefaults()
}

func TestAccessProxy_SucceedsOnThirdAttempt(t *testing.T) {
	source := &countingSource{}
	proxy := newTestProxy(source)

	var attempts int
	var tokens []string
	got, err := Call(context.Background(), proxy, func(ctx context.Context, token string) (string, error) {
		attempts++
		tokens = append(tokens, token)
		if attempts < 3 {
			return "", docauth.ErrAuthorizationDenied
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Call() = %q, want ok", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	// Every rejection forces a new credential
	want := []string{"tok-1", "tok-2", "tok-3"}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("tokens = %v, want %v", tokens, want)
			break
		}
	}
}

func TestAccessProxy_ExhaustsAfterThreeAttempts(t *testing.T) {
	proxy := newTestProxy(&countingSource{})

	var attempts int
	err := proxy.Do(context.Background(), func(ctx context.Context, token string) error {
		attempts++
		return status.Error(codes.PermissionDenied, "missing or insufficient permissions")
	})
	if !errors.Is(err, docauth.ErrExhaustedRetry) {
		t.Fatalf("Do() error = %v, want ErrExhaustedRetry", err)
	}
	if !docauth.IsAuthorizationDenied(err) {
		t.Errorf("expected the last cause to be kept in %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want exactly 3", attempts)
	}
}

func TestAccessProxy_NonAuthErrorIsNotRetried(t *testing.T) {
	source := &countingSource{}
	proxy := newTestProxy(source)
	boom := errors.New("backend unavailable")

	var attempts int
	err := proxy.Do(context.Background(), func(ctx context.Context, token string) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	if errors.Is(err, docauth.ErrExhaustedRetry) {
		t.Error("non-authorization failure must not be reported as exhausted retry")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestAccessProxy_TokenFetchFailuresUseAttempts(t *testing.T) {
	source := &countingSource{err: docauth.ErrNoSession}
	proxy := newTestProxy(source)

	called := false
	err := proxy.Do(context.Background(), func(ctx context.Context, token string) error {
		called = true
		return nil
	})
	if !errors.Is(err, docauth.ErrExhaustedRetry) {
		t.Fatalf("Do() error = %v, want ErrExhaustedRetry", err)
	}
	if !errors.Is(err, docauth.ErrNoSession) {
		t.Errorf("expected ErrNoSession as the last cause, got %v", err)
	}
	if called {
		t.Error("operation must not run without a credential")
	}
	if n := source.fetches.Load(); n != 3 {
		t.Errorf("fetches = %d, want 3", n)
	}
}

func TestAccessProxy_ReusesCredentialAcrossCalls(t *testing.T) {
	source := &countingSource{}
	proxy := newTestProxy(source)

	for i := 0; i < 5; i++ {
		err := proxy.Do(context.Background(), func(ctx context.Context, token string) error {
			if token != "tok-1" {
				t.Errorf("call %d used %q, want tok-1", i, token)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if n := source.fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestAccessProxy_StopsOnContextCancel(t *testing.T) {
	proxy := &AccessProxy{Source: &countingSource{}, RetryDelay: 50 * time.Millisecond}
	proxy.EnsureDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	err := proxy.Do(ctx, func(ctx context.Context, token string) error {
		attempts++
		cancel()
		return docauth.ErrAuthorizationDenied
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
