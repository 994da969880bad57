package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionstore/cache"
	"github.com/creastat/sessionstore/events"
	"github.com/creastat/sessionstore/marshal"
)

// countingCache records every call made to the wrapped cache and can inject failures.
type countingCache struct {
	cache.Cache

	mu      sync.Mutex
	gets    int
	puts    []cache.Key
	removes []cache.Key
	getErr  error
	putErr  error
}

func (c *countingCache) Get(ctx context.Context, key cache.Key) ([]byte, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Cache.Get(ctx, key)
}

func (c *countingCache) Put(ctx context.Context, key cache.Key, value []byte) error {
	c.mu.Lock()
	c.puts = append(c.puts, key)
	err := c.putErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Cache.Put(ctx, key, value)
}

func (c *countingCache) Remove(ctx context.Context, key cache.Key) (bool, error) {
	c.mu.Lock()
	c.removes = append(c.removes, key)
	c.mu.Unlock()
	return c.Cache.Remove(ctx, key)
}

func (c *countingCache) Sessions(ctx context.Context) ([]string, error) {
	lister, ok := c.Cache.(cache.Lister)
	if !ok {
		return nil, cache.ErrNotSupported
	}
	return lister.Sessions(ctx)
}

func (c *countingCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = 0
	c.puts = nil
	c.removes = nil
}

func (c *countingCache) counts() (gets, puts, removes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets, len(c.puts), len(c.removes)
}

type published struct {
	Type events.EventType
	ID   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(eventType events.EventType, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Type: eventType, ID: id})
}

func (p *recordingPublisher) of(eventType events.EventType) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, e := range p.events {
		if e.Type == eventType {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequence returns an identifier factory handing out ids in order, then
// numbered fallbacks.
func sequence(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		if next <= len(ids) {
			return ids[next-1]
		}
		return fmt.Sprintf("gen-%d", next)
	}
}

type cart struct {
	Items []string `json:"items"`
	Total float64  `json:"total"`
}

type harness struct {
	repo      *Repository
	cache     *countingCache
	backing   *cache.MemoryCache
	publisher *recordingPublisher
	clock     *fakeClock
}

func newHarness(t *testing.T, g Granularity, opts ...func(*Config)) *harness {
	t.Helper()
	return newHarnessOn(t, cache.NewMemoryCache(time.Hour), g, opts...)
}

// newHarnessOn builds a repository over backing, so several repositories can
// share one cache the way nodes share a cluster.
func newHarnessOn(t *testing.T, backing *cache.MemoryCache, g Granularity, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		cache:     &countingCache{Cache: backing},
		backing:   backing,
		publisher: &recordingPublisher{},
		clock:     newFakeClock(),
	}

	cfg := DefaultConfig()
	cfg.Granularity = g
	cfg.Clock = h.clock.Now
	for _, opt := range opts {
		opt(&cfg)
	}

	repo, err := NewRepository(cfg, h.cache, h.publisher)
	require.NoError(t, err)
	h.repo = repo
	return h
}

func withMaxActive(n int) func(*Config) {
	return func(c *Config) {
		c.MaxActiveSessions = IntPtr(n)
	}
}

func withIDs(ids ...string) func(*Config) {
	return func(c *Config) {
		c.IdentifierFactory = sequence(ids...)
	}
}

func withCartType(t *testing.T) func(*Config) {
	t.Helper()
	types := marshal.NewContext()
	require.NoError(t, types.Register("test.cart", cart{}))
	return func(c *Config) {
		c.Types = types
	}
}
