package helix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
)

// DefaultCacheSize is the entry bound of a MemoryCache built without one.
const DefaultCacheSize = constants.DefaultCacheSize

const cachePrincipalDigestBytes = 8

// Cache stores raw response bodies keyed by request.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// CacheEntry is one cached response body.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
	ETag      string    `json:"etag,omitempty"`
}

// IsExpired reports whether the entry has outlived its TTL.
func (e *CacheEntry) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// MemoryCache is a bounded in-process cache. When full, the entry closest to
// expiry is evicted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}

	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get returns a fresh entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	if entry.IsExpired() {
		_ = c.Delete(ctx, key)

		return nil, fmt.Errorf("%w: %s", ErrEntryExpired, key)
	}

	return entry, nil
}

// Set stores entry under key, evicting one entry if the cache is full.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = entry

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()

	return nil
}

// Has reports whether a fresh entry exists for key.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && !entry.IsExpired()
}

// Cleanup drops every expired entry.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *MemoryCache) evictLocked() {
	var (
		victim   string
		earliest time.Time
	)

	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)

			return
		}

		if victim == "" || entry.ExpiresAt.Before(earliest) {
			victim = key
			earliest = entry.ExpiresAt
		}
	}

	delete(c.entries, victim)
}

// CacheStats counts cache traffic seen by a CacheManager.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// GetHitRate returns hits / (hits + misses), or zero without traffic.
func (s *CacheStats) GetHitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// CacheManager fronts a Cache with key derivation and statistics.
type CacheManager struct {
	cache  Cache
	logger Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	failed atomic.Int64
}

// NewCacheManager creates a manager over cache. A nil cache disables caching.
func NewCacheManager(cache Cache, logger Logger) *CacheManager {
	if cache == nil {
		cache = NewNoOpCache()
	}

	return &CacheManager{cache: cache, logger: logger}
}

// GetCacheKey derives a cache key from the principal, method, URL and query.
// url.Values.Encode sorts by key, so equal queries map to equal keys. An empty
// principal is left out of the key.
func (m *CacheManager) GetCacheKey(principal, method, rawURL string, query url.Values) string {
	key := method + ":" + rawURL
	if principal != "" {
		key = principal + ":" + key
	}

	if len(query) == 0 {
		return key
	}

	return key + ":" + query.Encode()
}

// CachePrincipal identifies the credential a response was fetched with, so
// callers with different tokens never share cache entries. The token itself
// is reduced to a digest prefix and never appears in keys.
func CachePrincipal(clientID string, token *AccessToken) string {
	if token == nil {
		return clientID
	}

	sum := sha256.Sum256([]byte(token.AccessToken))

	return clientID + ":" + hex.EncodeToString(sum[:cachePrincipalDigestBytes])
}

// Get returns the cached body for key.
func (m *CacheManager) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := m.cache.Get(ctx, key)
	if err != nil {
		m.misses.Add(1)

		return nil, err
	}

	m.hits.Add(1)

	return entry.Data, nil
}

// Set stores data under key for ttl.
func (m *CacheManager) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return m.SetWithETag(ctx, key, data, "", ttl)
}

// SetWithETag stores data and its entity tag under key for ttl.
func (m *CacheManager) SetWithETag(ctx context.Context, key string, data []byte, etag string, ttl time.Duration) error {
	err := m.cache.Set(ctx, key, &CacheEntry{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
		ETag:      etag,
	})
	if err != nil {
		m.failed.Add(1)

		if m.logger != nil {
			m.logger.Warn("cache set failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}

		return err
	}

	m.sets.Add(1)

	return nil
}

// Invalidate removes key.
func (m *CacheManager) Invalidate(ctx context.Context, key string) error {
	return m.cache.Delete(ctx, key)
}

// GetStats returns a snapshot of the counters.
func (m *CacheManager) GetStats() CacheStats {
	return CacheStats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Sets:   m.sets.Load(),
		Errors: m.failed.Load(),
	}
}

// CachingPolicy decides which responses may be cached.
type CachingPolicy struct {
	CacheGET     bool
	CacheErrors  bool
	IncludePaths []string
	ExcludePaths []string
}

// DefaultCachingPolicy caches successful GET responses on every path.
func DefaultCachingPolicy() *CachingPolicy {
	return &CachingPolicy{CacheGET: true}
}

// ShouldCache reports whether a response to method on path with status may be stored.
func (p *CachingPolicy) ShouldCache(method, path string, status int) bool {
	if method != http.MethodGet || !p.CacheGET {
		return false
	}

	if status >= http.StatusMultipleChoices && !p.CacheErrors {
		return false
	}

	for _, excluded := range p.ExcludePaths {
		if matchesPath(path, excluded) {
			return false
		}
	}

	if len(p.IncludePaths) == 0 {
		return true
	}

	for _, included := range p.IncludePaths {
		if matchesPath(path, included) {
			return true
		}
	}

	return false
}

func matchesPath(path, prefix string) bool {
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return false
	}

	return len(path) == len(prefix) || path[len(prefix)] == '/' || path[len(prefix)] == '?'
}
