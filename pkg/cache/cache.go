package cache

import (
	"fmt"
	"sync"
	"time"
)

// Cache is a generic TTL cache.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache is a map-backed Cache with lazy and periodic expiry.
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache creates a cache whose entries default to defaultTTL.
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	cache := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
	}

	go cache.startCleanup()

	return cache
}

// Get returns the cached value if present and not expired.
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}

	if time.Now().After(item.expiresAt) {
		// expired entries are removed off the read path
		go c.Delete(key)
		var zero V
		return zero, false
	}

	return item.value, true
}

// Set stores value under key. ttl == 0 uses the cache default.
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *InMemoryCache[K, V]) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// CellKey buckets a coordinate onto a decimal grid. Three decimals is a
// ~110 m cell, one decimal a ~11 km cell.
func CellKey(lat, lon float64, decimals int) string {
	return fmt.Sprintf("%.*f,%.*f", decimals, lat, decimals, lon)
}

// GeoCache caches values per coordinate cell so fixes a few meters apart
// share an entry instead of each paying for a lookup.
type GeoCache[V any] struct {
	cache    *InMemoryCache[string, V]
	decimals int
}

// NewGeoCache creates a coordinate-keyed cache. decimals controls the cell
// size (see CellKey).
func NewGeoCache[V any](ttl time.Duration, decimals int) *GeoCache[V] {
	return &GeoCache[V]{
		cache:    NewInMemoryCache[string, V](ttl),
		decimals: decimals,
	}
}

// Get returns the value cached for the cell containing (lat, lon).
func (g *GeoCache[V]) Get(lat, lon float64) (V, bool) {
	return g.cache.Get(CellKey(lat, lon, g.decimals))
}

// Set stores value for the cell containing (lat, lon) with the default TTL.
func (g *GeoCache[V]) Set(lat, lon float64, value V) {
	g.cache.Set(CellKey(lat, lon, g.decimals), value, 0)
}

func (g *GeoCache[V]) Size() int {
	return g.cache.Size()
}
