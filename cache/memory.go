package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryCache implements Cache in process memory. It is meant for tests and
// single-node development; entries are not shared between processes.
type MemoryCache struct {
	mu    sync.Mutex
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemoryCache creates a memory cache whose entries live for ttl since their last access.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		cache: gocache.New(ttl, memoryCleanupInterval),
		ttl:   ttl,
	}
}

// Get implements Cache.
// Refreshes the entry lifespan on every read.
func (c *MemoryCache) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := memoryKey(key)
	value, found := c.cache.Get(k)
	if !found {
		return nil, nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, nil
	}
	c.cache.Set(k, data, c.ttl)
	return clone(data), nil
}

// Put implements Cache.
func (c *MemoryCache) Put(ctx context.Context, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Set(memoryKey(key), clone(value), c.ttl)
	return nil
}

// PutIfAbsent implements Cache.
func (c *MemoryCache) PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cache.Add(memoryKey(key), clone(value), c.ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Remove implements Cache.
func (c *MemoryCache) Remove(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := memoryKey(key)
	_, found := c.cache.Get(k)
	c.cache.Delete(k)
	return found, nil
}

// Sessions implements Lister.
func (c *MemoryCache) Sessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	for k := range c.cache.Items() {
		if id, ok := strings.CutSuffix(k, "\x00"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of unexpired entries.
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	return nil
}

func memoryKey(k Key) string {
	return k.Session + "\x00" + k.Attribute
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Compile-time check that MemoryCache implements Cache and Lister
var (
	_ Cache  = (*MemoryCache)(nil)
	_ Lister = (*MemoryCache)(nil)
)
