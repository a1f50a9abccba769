package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's full configuration tree.
type Config struct {
	Server ServerConfig `toml:"server"`
	Cache  CacheConfig  `toml:"cache"`
	Redis  RedisConfig  `toml:"redis"`
	Remote RemoteConfig `toml:"remote"`
	Mesh   MeshConfig   `toml:"mesh"`
}

type ServerConfig struct {
	Port           string   `toml:"port"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

type CacheConfig struct {
	// Backend selects the artifact store: memory, ristretto, redis, disk
	// or remote.
	Backend string `toml:"backend"`

	DefaultTTL Duration `toml:"default_ttl"`

	// SweepPeriod applies to the memory backend.
	SweepPeriod Duration `toml:"sweep_period"`

	// MaxBytes applies to the ristretto backend.
	MaxBytes int64 `toml:"max_bytes"`

	// Dir applies to the disk backend.
	Dir string `toml:"dir"`

	// Prefix namespaces keys in the redis backend.
	Prefix string `toml:"prefix"`
}

type RedisConfig struct {
	Addr string `toml:"addr"`
}

type RemoteConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

type MeshConfig struct {
	// Descriptor is the opaque device mesh encoding mixed into every
	// derived key, e.g. "2x2x1". Leave empty for single-host deployments.
	Descriptor string `toml:"descriptor"`
}

// Load reads configuration from the standard locations.
// Search order:
//  1. $AOTCACHE_CONFIG
//  2. /etc/aotcache/config.toml
//
// A set $AOTCACHE_CONFIG must name a readable file; a typo there is an
// error, not a silent fall-through to defaults. Without it, a missing
// /etc file returns DefaultConfig(). Environment overrides apply in
// every case.
func Load() (*Config, error) {
	if p := os.Getenv("AOTCACHE_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config: $AOTCACHE_CONFIG is set but unusable: %w", err)
		}
		return LoadFromFile(p)
	}
	const etcPath = "/etc/aotcache/config.toml"
	if _, err := os.Stat(etcPath); err == nil {
		return LoadFromFile(etcPath)
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader, layered over the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the defaults for a single-host deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			ReadTimeout:    Duration{10 * time.Second},
			WriteTimeout:   Duration{30 * time.Second},
			IdleTimeout:    Duration{60 * time.Second},
			RequestTimeout: Duration{15 * time.Second},
			MaxBodyBytes:   64 << 20, // program bodies run large
		},
		Cache: CacheConfig{
			Backend:     "memory",
			DefaultTTL:  Duration{24 * time.Hour},
			SweepPeriod: Duration{5 * time.Minute},
			MaxBytes:    1 << 30,
			Prefix:      "aotcache",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Remote: RemoteConfig{
			Timeout:    Duration{30 * time.Second},
			MaxRetries: 3,
		},
	}
}

// applyEnvOverrides checks environment variables and overrides config
// values, so containers can skip the file entirely.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = Duration{d}
		}
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("CACHE_PREFIX"); v != "" {
		cfg.Cache.Prefix = v
	}
	if v := os.Getenv("CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("MESH_DESCRIPTOR"); v != "" {
		cfg.Mesh.Descriptor = v
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "", "memory", "ristretto", "redis", "disk", "remote":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis backend needs redis.addr")
	}
	if c.Cache.Backend == "disk" && c.Cache.Dir == "" {
		return fmt.Errorf("config: disk backend needs cache.dir")
	}
	if c.Cache.Backend == "remote" && c.Remote.BaseURL == "" {
		return fmt.Errorf("config: remote backend needs remote.base_url")
	}
	return nil
}
