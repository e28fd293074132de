package memory

import (
	"context"
	"sync"

	da "github.com/panyam/docauth"
)

// CredentialCache implements da.CredentialCache in memory
type CredentialCache struct {
	mu    sync.Mutex
	creds map[string]da.ScopedCredential
}

func NewCredentialCache() *CredentialCache {
	return &CredentialCache{creds: make(map[string]da.ScopedCredential)}
}

func (c *CredentialCache) GetCredential(ctx context.Context, key string) (*da.ScopedCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, ok := c.creds[key]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (c *CredentialCache) PutCredential(ctx context.Context, cred *da.ScopedCredential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds[cred.Key] = *cred
	return nil
}

func (c *CredentialCache) DeleteCredential(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.creds, key)
	return nil
}

// Len is the number of cached entries
func (c *CredentialCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.creds)
}
