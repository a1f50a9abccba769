package store

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects and sizes a backend. Field relevance depends on Backend:
// memory uses SweepPeriod, ristretto uses MaxBytes, redis uses Prefix,
// disk uses Dir. DefaultTTL applies everywhere except disk.
type Options struct {
	Backend     string
	DefaultTTL  time.Duration
	Prefix      string
	Dir         string
	MaxBytes    int64
	SweepPeriod time.Duration
}

// New builds the configured backend. redisClient is only consulted for the
// redis backend and may be nil otherwise.
func New(opts Options, redisClient *redis.Client) (Store, error) {
	switch opts.Backend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("store: redis backend selected without a client")
		}
		return NewRedis(redisClient, RedisOptions{
			Prefix:     opts.Prefix,
			DefaultTTL: opts.DefaultTTL,
		}), nil
	case "ristretto":
		return NewRistretto(opts.MaxBytes)
	case "disk":
		return NewDisk(opts.Dir)
	case "", "memory":
		return NewMemory(opts.DefaultTTL, opts.SweepPeriod), nil
	case "remote":
		// The remote client lives in internal/remote; the daemon constructs
		// it directly to keep this package free of HTTP machinery.
		return nil, fmt.Errorf("store: remote backend is wired by the daemon, not the factory")
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
}
