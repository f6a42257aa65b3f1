package cache

import (
	"context"
	"time"
)

// Cache exposes the minimal API needed for the decrypted-credential
// look-aside. Implementations must treat entries as an optimization only;
// the vault behaves correctly with the Nop cache installed.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CredentialKey is the look-aside key for a tenant's decrypted credential in
// one provider/environment scope. Writers and invalidators must agree on it.
func CredentialKey(tenantID, provider, env string) string {
	return tenantID + ":" + provider + ":" + env
}

// Nop cache returns misses and ignores writes.
type Nop struct{}

var _ Cache = (*Nop)(nil)

func (n *Nop) Get(ctx context.Context, key string) (any, bool, error) { return nil, false, nil }
func (n *Nop) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}
func (n *Nop) Delete(ctx context.Context, key string) error { return nil }
