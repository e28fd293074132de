// Package redis provides a Redis-backed docauth.CredentialCache. Entries are
// stored as JSON with a TTL ending at the credential's expiry, so Redis evicts
// them once they can no longer be served.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	da "github.com/panyam/docauth"
)

// DefaultKeyPrefix namespaces cache keys
const DefaultKeyPrefix = "docauth:tokens:"

type credentialRecord struct {
	UserID  string `json:"userId,omitempty"`
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// CredentialCache implements da.CredentialCache on Redis
type CredentialCache struct {
	client redis.UniversalClient
	prefix string
}

// NewCredentialCache creates a cache over an existing client. An empty
// prefix selects DefaultKeyPrefix.
func NewCredentialCache(client redis.UniversalClient, prefix string) *CredentialCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CredentialCache{client: client, prefix: prefix}
}

func (c *CredentialCache) key(sessionToken string) string {
	return c.prefix + sessionToken
}

func (c *CredentialCache) GetCredential(ctx context.Context, key string) (*da.ScopedCredential, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec credentialRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("credential cache: failed to unmarshal: %w", err)
	}
	return &da.ScopedCredential{
		Key:     key,
		UserID:  rec.UserID,
		Token:   rec.Token,
		Expires: time.UnixMilli(rec.Expires),
	}, nil
}

func (c *CredentialCache) PutCredential(ctx context.Context, cred *da.ScopedCredential) error {
	ttl := time.Until(cred.Expires)
	if ttl <= 0 {
		// Already expired, nothing worth caching
		return c.client.Del(ctx, c.key(cred.Key)).Err()
	}

	data, err := json.Marshal(credentialRecord{
		UserID:  cred.UserID,
		Token:   cred.Token,
		Expires: cred.ExpiresMillis(),
	})
	if err != nil {
		return fmt.Errorf("credential cache: failed to marshal: %w", err)
	}
	return c.client.Set(ctx, c.key(cred.Key), data, ttl).Err()
}

func (c *CredentialCache) DeleteCredential(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
