package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys inside a shared Redis database.
const DefaultRedisPrefix = "helix:cache:"

// ErrRedisAddrRequired is returned when neither an address nor a client is configured.
var ErrRedisAddrRequired = errors.New("redis address or client required")

// RedisCacheConfig configures a RedisCache.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	// Client reuses an existing client; the cache does not close it.
	Client *redis.Client
	// Prefix is prepended to every key (default DefaultRedisPrefix).
	Prefix string
}

// RedisCache stores entries as JSON values with a per-key expiry.
type RedisCache struct {
	client      *redis.Client
	prefix      string
	ownsClient  bool
	scanBatches int64
}

// NewRedisCache creates a Redis-backed cache. The connection is checked with PING.
func NewRedisCache(ctx context.Context, config *RedisCacheConfig) (*RedisCache, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	client := config.Client
	owns := false

	if client == nil {
		if config.Addr == "" {
			return nil, ErrRedisAddrRequired
		}

		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
		owns = true
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		if owns {
			_ = client.Close()
		}

		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisCache{client: client, prefix: prefix, ownsClient: owns, scanBatches: 100}, nil
}

// Get returns a fresh entry for key.
func (c *RedisCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}

		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	entry := &CacheEntry{}

	err = json.Unmarshal(data, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	if entry.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrEntryExpired, key)
	}

	return entry, nil
}

// Set stores entry under key, expiring it with the entry.
func (c *RedisCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	err = c.client.Set(ctx, c.prefix+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, c.prefix+key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64

	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", c.scanBatches).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			err = c.client.Del(ctx, keys...).Err()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}

		if next == 0 {
			return nil
		}

		cursor = next
	}
}

// Has reports whether key exists.
func (c *RedisCache) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()

	return err == nil && n > 0
}

// Close closes the Redis client when the cache created it.
func (c *RedisCache) Close() error {
	if !c.ownsClient {
		return nil
	}

	return c.client.Close()
}
