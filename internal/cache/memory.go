package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process cache bounded by item count. When full, the
// least recently accessed item is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	now     func() time.Time

	hits, misses, evictions int64
}

type memoryItem struct {
	value      []byte
	expiration time.Time
	accessed   time.Time
}

// MemoryCacheStats reports cache counters.
type MemoryCacheStats struct {
	ItemCount     int   `json:"item_count"`
	MaxSize       int   `json:"max_size"`
	HitCount      int64 `json:"hit_count"`
	MissCount     int64 `json:"miss_count"`
	EvictionCount int64 `json:"eviction_count"`
}

// NewMemoryCache creates a cache holding at most maxSize items.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items[key]
	now := mc.now()
	if ok && !item.expiration.IsZero() && now.After(item.expiration) {
		delete(mc.items, key)
		ok = false
	}
	if !ok {
		mc.misses++
		return nil, false, nil
	}
	item.accessed = now
	mc.hits++
	return item.value, true, nil
}

// Set stores data; ttl <= 0 keeps it until evicted.
func (mc *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.purgeExpired(now)
		if len(mc.items) >= mc.maxSize {
			mc.evictLRU()
		}
	}
	item := &memoryItem{value: data, accessed: now}
	if ttl > 0 {
		item.expiration = now.Add(ttl)
	}
	mc.items[key] = item
	return nil
}

// Stats returns a snapshot of the counters.
func (mc *MemoryCache) Stats() MemoryCacheStats {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return MemoryCacheStats{
		ItemCount:     len(mc.items),
		MaxSize:       mc.maxSize,
		HitCount:      mc.hits,
		MissCount:     mc.misses,
		EvictionCount: mc.evictions,
	}
}

func (mc *MemoryCache) purgeExpired(now time.Time) {
	for k, item := range mc.items {
		if !item.expiration.IsZero() && now.After(item.expiration) {
			delete(mc.items, k)
		}
	}
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldest) {
			oldestKey, oldest = k, item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
		mc.evictions++
	}
}
