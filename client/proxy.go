package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/panyam/docauth"
)

// Retry policy for scoped access
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 100 * time.Millisecond
)

// Operation is a store call made with a scoped credential
type Operation func(ctx context.Context, token string) error

// AccessProxy runs store operations with the current scoped credential.
// When the store rejects the credential, the proxy drops it, fetches a new
// one and retries, up to MaxAttempts attempts in total. Failing to fetch a
// credential also uses up an attempt. Errors that are not authorization
// failures are returned as is, without retrying. Once the budget is spent
// the proxy returns an error wrapping docauth.ErrExhaustedRetry and the last
// failure.
type AccessProxy struct {
	Source      TokenSource
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger

	mu    sync.Mutex
	token string
}

// NewAccessProxy creates a proxy drawing credentials from source
func NewAccessProxy(source TokenSource) *AccessProxy {
	p := &AccessProxy{Source: source}
	return p.EnsureDefaults()
}

func (p *AccessProxy) EnsureDefaults() *AccessProxy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// currentToken returns the held credential, fetching one if none is held
func (p *AccessProxy) currentToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	token, err := p.Source.Token(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	return token, nil
}

// invalidate drops token unless another caller already replaced it
func (p *AccessProxy) invalidate(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == token {
		p.token = ""
	}
}

// Do runs op through the proxy
func (p *AccessProxy) Do(ctx context.Context, op Operation) error {
	_, err := Call(ctx, p, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, op(ctx, token)
	})
	return err
}

// Call runs op through the proxy and returns its result
func Call[T any](ctx context.Context, p *AccessProxy, op func(ctx context.Context, token string) (T, error)) (T, error) {
	p.EnsureDefaults()

	var zero T
	attempt := 0
	permanent := false
	operation := func() (T, error) {
		attempt++
		token, err := p.currentToken(ctx)
		if err != nil {
			p.Logger.Warn("fetching scoped credential failed", "attempt", attempt, "err", err)
			return zero, err
		}
		result, err := op(ctx, token)
		if err == nil {
			return result, nil
		}
		if !docauth.IsAuthorizationDenied(err) {
			permanent = true
			return zero, backoff.Permanent(err)
		}
		p.Logger.Debug("scoped credential rejected", "attempt", attempt, "err", err)
		p.invalidate(token)
		return zero, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.RetryDelay)),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
	if err == nil {
		return result, nil
	}
	if permanent || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return zero, err
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", docauth.ErrExhaustedRetry, attempt, err)
}
