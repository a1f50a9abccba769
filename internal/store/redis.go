package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a shared redis instance, which is what lets
// every replica of the cache service see every compiled program.
type Redis struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

type RedisOptions struct {
	// Prefix namespaces every key, so one redis can serve several
	// deployments.
	Prefix string

	// DefaultTTL applies when Set is called without an explicit ttl. Zero
	// means entries persist until redis evicts them.
	DefaultTTL time.Duration
}

// NewRedis wraps an existing client. The caller owns the client's
// lifecycle; Close here is a no-op.
func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	return &Redis{
		client:     client,
		prefix:     opts.Prefix,
		defaultTTL: opts.DefaultTTL,
	}
}

// key builds the final redis key with the namespace prefix.
func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Get retrieves an artifact envelope. redis.Nil is a clean miss; any other
// error is returned so the caller can log and degrade to a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	res, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return res, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Exists checks for a key without transferring the artifact body.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}
	count, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return count > 0, nil
}

// Ping checks connection health. The daemon calls it once at startup to
// fail fast on a bad address.
func (r *Redis) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the daemon owns the redis client.
func (r *Redis) Close() error { return nil }
