// Package cache defines the cache collaborator consumed by the lifecycle
// core: JSON-serializable values under string keys with per-entry TTLs.
package cache

import (
	"context"
	"time"
)

// Cache is the narrow interface the lifecycle core depends on. Values are
// JSON-encoded by the caller.
type Cache interface {
	// Get returns the value and whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Stats returns counters for observability.
	Stats() Stats

	// Close releases background resources.
	Close() error
}

// Stats holds cache usage counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
}
