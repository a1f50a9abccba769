// Package lookup is the compilation cache's read path: turn a derived key
// into a store key, consult the store, and on a miss run the caller's
// compile callback exactly once per key no matter how many requests race.
package lookup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aotcache/internal/cachekey"
	"aotcache/internal/metrics"
	"aotcache/internal/registry"
	"aotcache/internal/store"
	"aotcache/pkg/logging"
)

// FullKey composes the store key for key. Requests without guaranteed
// constants are identified by the opaque prefix alone, so sessions share
// their compiled programs. Requests with constants append the session
// handle and the constants' fingerprint, because an identical program can
// carry different constant values in another session.
//
// This is the only place the deferred fingerprint is forced.
func FullKey(key cachekey.Key) string {
	if !key.HasGuaranteedConst {
		return key.Prefix
	}
	return key.Prefix + "|" + key.SessionHandle + "|" + key.GuaranteedConstFingerprint()
}

// CompileFunc produces the artifact for a cache miss. The cache never
// compiles anything itself.
type CompileFunc func(ctx context.Context) (store.Artifact, error)

// Cache binds a store and a registry into the lookup path.
type Cache struct {
	store store.Store
	reg   *registry.Registry
	ttl   time.Duration
	group singleflight.Group
}

// New builds a lookup cache. reg may be nil for embedders that do not
// need session eviction. ttl applies to artifacts written on misses.
func New(s store.Store, reg *registry.Registry, ttl time.Duration) *Cache {
	return &Cache{store: s, reg: reg, ttl: ttl}
}

// CompileIfAbsent returns the artifact for key, compiling it on a miss.
// Concurrent callers with the same full key share a single compile; the
// losers block until the winner's result is ready. hit reports whether
// the artifact came from the store.
//
// Store failures degrade to a miss: an unreachable backend slows callers
// down to compile speed but never fails them.
func (c *Cache) CompileIfAbsent(ctx context.Context, key cachekey.Key, compile CompileFunc) (artifact store.Artifact, hit bool, err error) {
	fullKey := FullKey(key)

	data, ok, err := c.store.Get(ctx, fullKey)
	if err != nil {
		logging.L(ctx).Warn("artifact store get degraded to miss",
			zap.String("cache_key", fullKey), zap.Error(err))
	} else if ok {
		a, decErr := store.DecodeArtifact(data)
		if decErr == nil {
			return a, true, nil
		}
		// A corrupt envelope is dropped and recompiled.
		logging.L(ctx).Warn("dropping corrupt cached artifact",
			zap.String("cache_key", fullKey), zap.Error(decErr))
		_ = c.store.Delete(ctx, fullKey)
	}

	v, err, shared := c.group.Do(fullKey, func() (any, error) {
		// Coalesced followers share this result, so the compile and the
		// store write must not die with the winning caller's context.
		ctx := context.WithoutCancel(ctx)

		start := time.Now()
		a, err := compile(ctx)
		if err != nil {
			return nil, fmt.Errorf("lookup: compile %s: %w", key.DebugString, err)
		}
		metrics.CompileSeconds.Observe(time.Since(start).Seconds())

		data, err := store.EncodeArtifact(a)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, fullKey, data, c.ttl); err != nil {
			// Best effort: the artifact is still usable this once.
			logging.L(ctx).Warn("artifact store set failed",
				zap.String("cache_key", fullKey), zap.Error(err))
		} else if c.reg != nil {
			if err := c.reg.Insert(registry.Entry{
				Key:           fullKey,
				Prefix:        key.Prefix,
				FunctionName:  a.FunctionName,
				SessionHandle: key.SessionHandle,
				SizeBytes:     int64(len(a.Program)),
				CreatedAt:     time.Now(),
			}); err != nil {
				logging.L(ctx).Warn("registry insert failed",
					zap.String("cache_key", fullKey), zap.Error(err))
			}
		}
		return a, nil
	})
	if err != nil {
		return store.Artifact{}, false, err
	}
	if shared {
		metrics.CompileCoalescedTotal.Inc()
	}
	return v.(store.Artifact), false, nil
}

// EvictSession drops every artifact registered under handle from both the
// registry and the store, returning how many were evicted. Store deletes
// are best effort; TTLs clean up whatever a flaky backend holds on to.
func (c *Cache) EvictSession(ctx context.Context, handle string) (int, error) {
	if c.reg == nil {
		return 0, nil
	}

	keys, err := c.reg.DeleteSession(handle)
	if err != nil {
		return 0, fmt.Errorf("lookup: evict session %s: %w", handle, err)
	}

	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			logging.L(ctx).Warn("session eviction store delete failed",
				zap.String("cache_key", k), zap.Error(err))
		}
	}

	metrics.SessionEvictionsTotal.Add(float64(len(keys)))
	logging.L(ctx).Info("session evicted",
		zap.String("session_handle", handle), zap.Int("artifacts", len(keys)))
	return len(keys), nil
}
