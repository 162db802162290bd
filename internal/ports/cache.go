package ports

import (
	"context"
	"time"
)

// Cache is the low-latency advisory store for liveness signals. Values are
// last-writer-wins; the store remains the source of truth.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	// SAdd/SRem/SMembers back the pending-call sets; entries carry their
	// own TTL via the companion key written by Set.
	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Ping() error
	Close() error
}
