package session

import (
	"fmt"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/cache"
)

// Dial resolves cfg.URI and cfg.Properties into a Redis cache, namespaced by
// cfg.TemplateName, and builds a Repository over it.
func Dial(cfg Config, publisher Publisher) (*Repository, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := cache.NewRedisClient(cfg.URI, cfg.Properties)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sessionstore.ErrConfiguration, err)
	}

	c, err := cache.New(cache.TypeRedis,
		cache.WithRedisClient(client),
		cache.WithNamespace(cfg.TemplateName),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", sessionstore.ErrConfiguration, err)
	}

	r, err := NewRepository(cfg, cache.WithTracing(c, cfg.Tracer), publisher)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return r, nil
}
