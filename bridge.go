package docauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CredentialBridge mints scoped credentials for sessions and caches them for
// their lifetime. Each session gets its own credential, so revoking one session
// leaves the others' access intact.
//
// Construct it with NewCredentialBridge; the zero value is not usable.
type CredentialBridge struct {
	Cache     CredentialCache
	Exchanger ActorExchanger
	Minter    Minter

	// TTL of minted credentials. Defaults to DefaultCredentialTTL.
	TTL time.Duration

	// Scopes granted to minted credentials. Defaults to DefaultScopes().
	Scopes []string

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics Metrics

	initOnce sync.Once
	actor    *Actor
	initErr  error
}

func NewCredentialBridge(cache CredentialCache, exchanger ActorExchanger, minter Minter) *CredentialBridge {
	return (&CredentialBridge{
		Cache:     cache,
		Exchanger: exchanger,
		Minter:    minter,
	}).EnsureDefaults()
}

func (b *CredentialBridge) EnsureDefaults() *CredentialBridge {
	if b.TTL <= 0 {
		b.TTL = DefaultCredentialTTL
	}
	if b.Scopes == nil {
		b.Scopes = DefaultScopes()
	}
	if b.Now == nil {
		b.Now = time.Now
	}
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	b.Metrics = metricsOrNoop(b.Metrics)
	return b
}

// Init performs the privileged actor exchange. It runs at most once for the
// lifetime of the bridge: concurrent callers wait for the single exchange and
// all see its result, including a failure. It cannot be cancelled once started.
func (b *CredentialBridge) Init(ctx context.Context) error {
	b.initOnce.Do(func() {
		if b.Exchanger == nil {
			b.actor = &Actor{}
			return
		}
		actor, err := b.Exchanger.Exchange(context.WithoutCancel(ctx))
		if err != nil {
			b.initErr = err
			b.Logger.Error("privileged identity exchange failed", "err", err)
			return
		}
		b.actor = actor
		b.Logger.Info("privileged identity exchange complete", "actor", actor.Subject)
	})
	return b.initErr
}

// GetOrMint returns the cached credential for sessionToken while it is still
// valid, otherwise mints a new one for userID and caches it for TTL.
//
// Concurrent calls for the same session may each mint; every one of those
// tokens is valid and the last write wins the cache slot.
func (b *CredentialBridge) GetOrMint(ctx context.Context, sessionToken, userID string, claims map[string]any) (string, error) {
	if sessionToken == "" {
		return "", ErrNoSession
	}
	now := b.Now()

	cached, err := b.Cache.GetCredential(ctx, sessionToken)
	if err != nil {
		return "", fmt.Errorf("reading cached credential: %w", err)
	}
	if cached.IsValidAt(now) {
		b.Metrics.RecordCredentialCacheHit()
		return cached.Token, nil
	}

	if err := b.Init(ctx); err != nil {
		b.Metrics.RecordCredentialMintFailure()
		return "", err
	}

	start := time.Now()
	expires := now.Add(b.TTL)
	token, err := b.Minter.Mint(ctx, MintRequest{
		Actor:     b.actor,
		UserID:    userID,
		SessionID: sessionToken,
		Scopes:    b.Scopes,
		Claims:    claims,
		IssuedAt:  now,
		ExpiresAt: expires,
	})
	if err != nil {
		b.Metrics.RecordCredentialMintFailure()
		return "", fmt.Errorf("minting scoped credential: %w", err)
	}
	b.Metrics.RecordCredentialMinted(time.Since(start))

	cred := &ScopedCredential{
		Key:     sessionToken,
		UserID:  userID,
		Token:   token,
		Expires: expires,
	}
	if err := b.Cache.PutCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("caching scoped credential: %w", err)
	}
	return token, nil
}

// Revoke drops the cached credential for a session. The token itself stays
// valid until it expires; it is just no longer handed out.
func (b *CredentialBridge) Revoke(ctx context.Context, sessionToken string) error {
	return b.Cache.DeleteCredential(ctx, sessionToken)
}
