package store

import (
	"context"
	"fmt"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
)

// Ristretto is an in-process Store bounded by total artifact bytes rather
// than entry count. Cost equals the envelope size, so one oversized
// program body displaces many small ones instead of blowing the budget.
// Admission and eviction policy belong to ristretto; this wrapper only
// reports costs.
type Ristretto struct {
	cache *ristretto.Cache[string, []byte]
}

// NewRistretto creates a store holding at most maxBytes of envelopes.
func NewRistretto(maxBytes int64) (*Ristretto, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("store: ristretto max bytes must be positive, got %d", maxBytes)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e7, // number of keys to track frequency of.
		MaxCost:     maxBytes,
		BufferItems: 64, // number of keys per Get buffer.
	})
	if err != nil {
		return nil, fmt.Errorf("store: ristretto init: %w", err)
	}
	return &Ristretto{cache: cache}, nil
}

func (r *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (r *Ristretto) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if ttl > 0 {
		r.cache.SetWithTTL(key, value, cost, ttl)
	} else {
		r.cache.Set(key, value, cost)
	}
	// Writes pass through an async buffer; wait so a Set is visible to the
	// Get that follows it. Artifact writes are rare and large, the extra
	// latency is noise.
	r.cache.Wait()
	return nil
}

func (r *Ristretto) Delete(_ context.Context, key string) error {
	r.cache.Del(key)
	return nil
}

func (r *Ristretto) Close() error {
	r.cache.Close()
	return nil
}
