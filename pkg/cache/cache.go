// Package cache provides the process-local and Redis-backed caches used by
// the context engine's resolved-context cache and the facade's idempotency
// ledger. The interface and layering follow the teacher's pkg/cache:
// a narrow Cache contract, a Redis implementation, and a thin in-process
// LRU layered in front of it.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal key/value contract shared by every cache tier.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = Error{Message: "cache miss"}

// Error is a cache-specific error, kept distinct from I/O errors so callers
// can fall through to the authoritative store on ErrMiss without treating a
// genuine Redis outage the same way.
type Error struct {
	Message string
}

func (e Error) Error() string { return e.Message }
