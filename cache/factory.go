package cache

import (
	"errors"
	"time"
)

// Type represents the kind of cache driver.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// DefaultTTL bounds how long an untouched entry survives in the remote cache.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidConfig = errors.New("cache: invalid configuration")
	ErrInvalidType   = errors.New("cache: invalid driver type")
	ErrNotSupported  = errors.New("cache: operation not supported")
)

// New creates a Cache of the given type.
// For Redis, requires WithRedisClient option.
func New(cacheType Type, opts ...Option) (Cache, error) {
	config := &cacheConfig{}
	for _, opt := range opts {
		opt(config)
	}

	ttl := config.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch cacheType {
	case TypeMemory:
		return NewMemoryCache(ttl), nil

	case TypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisCache(config.redisClient, config.namespace, ttl), nil

	default:
		return nil, ErrInvalidType
	}
}
