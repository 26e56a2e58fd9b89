package helix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Default NATS KV settings.
const (
	DefaultNATSBucket = "helix-cache"
	DefaultNATSTTL    = 5 * time.Minute
)

// ErrNATSConnectionRequired is returned when neither a URL nor a connection is configured.
var ErrNATSConnectionRequired = errors.New("NATS URL or connection required")

// NATSKVConfig configures a NATSKVCache.
type NATSKVConfig struct {
	// URL is dialed when Conn is nil.
	URL string
	// Conn reuses an existing connection; the cache does not close it.
	Conn *nats.Conn
	// Bucket is the key-value bucket name.
	Bucket string
	// TTL is the bucket-wide maximum age of an entry.
	TTL time.Duration
}

// NATSKVCache stores entries in a JetStream key-value bucket. Keys are hashed
// because bucket keys are restricted to a small alphabet.
type NATSKVCache struct {
	kv       jetstream.KeyValue
	conn     *nats.Conn
	ownsConn bool
}

// NewNATSKVCache connects to NATS and creates or updates the configured bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	conn := config.Conn
	ownsConn := false

	if conn == nil {
		if config.URL == "" {
			return nil, ErrNATSConnectionRequired
		}

		var err error

		conn, err = nats.Connect(config.URL, nats.Name("helix-cache"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}

		ownsConn = true
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = DefaultNATSBucket
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultNATSTTL
	}

	js, err := jetstream.New(conn)
	if err != nil {
		closeIfOwned(conn, ownsConn)

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "helix response cache",
		TTL:         ttl,
	})
	if err != nil {
		closeIfOwned(conn, ownsConn)

		return nil, fmt.Errorf("failed to create KV bucket %s: %w", bucket, err)
	}

	return &NATSKVCache{kv: kv, conn: conn, ownsConn: ownsConn}, nil
}

// Get returns a fresh entry for key.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	stored, err := c.kv.Get(ctx, natsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}

		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	entry := &CacheEntry{}

	err = json.Unmarshal(stored.Value(), entry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	if entry.IsExpired() {
		_ = c.Delete(ctx, key)

		return nil, fmt.Errorf("%w: %s", ErrEntryExpired, key)
	}

	return entry, nil
}

// Set stores entry under key.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = c.kv.Put(ctx, natsKey(key), data)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, natsKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// Clear purges every key in the bucket.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}

		return fmt.Errorf("failed to list keys: %w", err)
	}

	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		err = c.kv.Purge(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to purge %s: %w", key, err)
		}
	}

	return nil
}

// Has reports whether a fresh entry exists for key.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Close releases the NATS connection when the cache dialed it.
func (c *NATSKVCache) Close() {
	closeIfOwned(c.conn, c.ownsConn)
}

func natsKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

func closeIfOwned(conn *nats.Conn, owned bool) {
	if owned && conn != nil {
		conn.Close()
	}
}
