package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/creastat/sessionstore/internal/log"
)

const (
	// Redis key prefix for sessions
	sessionKeyPrefix = "session:"
	// Infix separating a session key from one of its attributes
	attributeInfix = ":attr:"
	// Keys requested per SCAN round trip
	scanBatch = 256
)

// RedisCache implements Cache using Redis. Session ids are wrapped in a hash
// tag so a session's entries land on the same cluster slot.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisCache creates a new Redis-based cache.
func NewRedisCache(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Get implements Cache.
// Returns nil if the key is not found (not an error).
// Refreshes TTL on every read.
func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, error) {
	k := c.key(key)
	val, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Refresh TTL on read
	if err := c.client.Expire(ctx, k, c.ttl).Err(); err != nil {
		log.Debug(log.CatCache, "ttl refresh failed", "key", k, "error", err)
	}

	return val, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key Key, value []byte) error {
	return c.client.Set(ctx, c.key(key), value, c.ttl).Err()
}

// PutIfAbsent implements Cache.
func (c *RedisCache) PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), value, c.ttl).Result()
}

// Remove implements Cache.
func (c *RedisCache) Remove(ctx context.Context, key Key) (bool, error) {
	n, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Sessions implements Lister by scanning the session keys of the namespace.
// On a cluster every master is scanned.
func (c *RedisCache) Sessions(ctx context.Context) ([]string, error) {
	prefix := strings.TrimSuffix(c.key(SessionKey("")), "}")
	match := escapeGlob(prefix) + "*}"

	cluster, ok := c.client.(*redis.ClusterClient)
	if !ok {
		return scanSessions(ctx, c.client, prefix, match)
	}

	var (
		mu  sync.Mutex
		ids []string
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		found, err := scanSessions(ctx, node, prefix, match)
		mu.Lock()
		ids = append(ids, found...)
		mu.Unlock()
		return err
	})
	return ids, err
}

func scanSessions(ctx context.Context, client redis.Cmdable, prefix, match string) ([]string, error) {
	var ids []string
	iter := client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		rest, ok := strings.CutPrefix(iter.Val(), prefix)
		if !ok {
			continue
		}
		id, ok := strings.CutSuffix(rest, "}")
		// Attribute keys whose name ends in '}' also match the pattern.
		if !ok || strings.Contains(id, "}"+attributeInfix) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, iter.Err()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// key constructs the Redis key for a cache key.
func (c *RedisCache) key(k Key) string {
	var b strings.Builder
	if c.namespace != "" {
		b.WriteString(c.namespace)
		b.WriteByte(':')
	}
	b.WriteString(sessionKeyPrefix)
	b.WriteByte('{')
	b.WriteString(k.Session)
	b.WriteByte('}')
	if k.IsAttribute() {
		b.WriteString(attributeInfix)
		b.WriteString(k.Attribute)
	}
	return b.String()
}

// NewRedisClient resolves a redis endpoint URI plus connection properties into a client.
// A "cluster_addrs" property (comma separated) selects a cluster client; the URI
// then only contributes credentials and TLS settings.
//
// Recognized properties: cluster_addrs, client_name, username, password,
// pool_size, min_idle_conns, max_retries, dial_timeout, read_timeout, write_timeout.
func NewRedisClient(uri *url.URL, props map[string]string) (redis.UniversalClient, error) {
	if uri == nil {
		return nil, fmt.Errorf("%w: redis uri is required", ErrInvalidConfig)
	}

	opts, err := redis.ParseURL(uri.String())
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis uri: %w", ErrInvalidConfig, err)
	}

	u := &redis.UniversalOptions{
		Addrs:      []string{opts.Addr},
		DB:         opts.DB,
		Username:   opts.Username,
		Password:   opts.Password,
		ClientName: opts.ClientName,
		TLSConfig:  opts.TLSConfig,
	}
	if err := applyProperties(u, props); err != nil {
		return nil, err
	}

	if len(u.Addrs) > 1 || props["cluster_addrs"] != "" {
		u.DB = 0
		return redis.NewClusterClient(u.Cluster()), nil
	}
	return redis.NewClient(u.Simple()), nil
}

func applyProperties(u *redis.UniversalOptions, props map[string]string) error {
	for name, raw := range props {
		var err error
		switch name {
		case "cluster_addrs":
			u.Addrs = nil
			for _, addr := range strings.Split(raw, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					u.Addrs = append(u.Addrs, addr)
				}
			}
		case "client_name":
			u.ClientName = raw
		case "username":
			u.Username = raw
		case "password":
			u.Password = raw
		case "pool_size":
			u.PoolSize, err = cast.ToIntE(raw)
		case "min_idle_conns":
			u.MinIdleConns, err = cast.ToIntE(raw)
		case "max_retries":
			u.MaxRetries, err = cast.ToIntE(raw)
		case "dial_timeout":
			u.DialTimeout, err = cast.ToDurationE(raw)
		case "read_timeout":
			u.ReadTimeout, err = cast.ToDurationE(raw)
		case "write_timeout":
			u.WriteTimeout, err = cast.ToDurationE(raw)
		default:
			log.Warn(log.CatConfig, "ignoring unknown redis property", "property", name)
		}
		if err != nil {
			return fmt.Errorf("%w: property %s: %w", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// Compile-time check that RedisCache implements Cache and Lister
var (
	_ Cache  = (*RedisCache)(nil)
	_ Lister = (*RedisCache)(nil)
)
