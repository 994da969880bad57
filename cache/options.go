package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Option is a functional option for configuring a cache.
type Option func(*cacheConfig)

// cacheConfig holds configuration for cache drivers.
type cacheConfig struct {
	redisClient redis.UniversalClient
	namespace   string
	ttl         time.Duration
}

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *cacheConfig) {
		c.redisClient = client
	}
}

// WithNamespace prefixes every key, isolating caches that share a server.
func WithNamespace(namespace string) Option {
	return func(c *cacheConfig) {
		c.namespace = namespace
	}
}

// WithTTL sets the lifespan of entries. Reads refresh it.
func WithTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) {
		c.ttl = ttl
	}
}
