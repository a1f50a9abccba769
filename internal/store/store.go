// Package store persists compiled program artifacts keyed by their cache
// key. Backends share one interface so the daemon can swap between an
// in-process map, a cost-bounded in-process cache, redis and a disk
// directory through configuration alone.
package store

import (
	"context"
	"time"
)

// Store is the artifact cache boundary. Implementations must be safe for
// concurrent use.
//
// A miss is (nil, false, nil). Errors mean the backend itself failed;
// callers treat an error like a miss after logging it, because the cache
// is an accelerator and never a source of truth.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A non-positive ttl means the backend's
	// default retention.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources. The store is unusable afterwards.
	Close() error
}
