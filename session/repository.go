// Package session stores HTTP sessions in a remote key-value cache.
//
// A Repository creates, loads, saves and deletes sessions. Loaded sessions are
// returned as request-scoped *Session handles that track their own changes, so
// Save writes only what the request touched. How attributes map onto cache
// entries is fixed per repository by its Granularity.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/cache"
	"github.com/creastat/sessionstore/events"
	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/marshal"
)

// maxIdentifierAttempts bounds id generation when generated ids collide.
const maxIdentifierAttempts = 10

// strategy maps sessions onto cache entries for one Granularity.
type strategy interface {
	// create stores a new empty session unless id is taken.
	create(ctx context.Context, id string, meta Metadata) (bool, error)
	// read returns nil if the session does not exist.
	read(ctx context.Context, id string) (*Session, error)
	write(ctx context.Context, s *Session) error
	// remove reports whether the session existed.
	remove(ctx context.Context, id string) (bool, error)
}

// Repository coordinates session persistence against a remote cache.
// It is safe for concurrent use; the Sessions it returns are not.
type Repository struct {
	cache       cache.Cache
	strategy    strategy
	marshaller  *marshal.Marshaller
	newID       func() string
	publisher   Publisher
	maxActive   *int
	maxInactive time.Duration
	tracker     *tracker
	now         func() time.Time
}

// NewRepository validates cfg and builds a repository over c.
// Configuration problems are reported as sessionstore.ErrConfiguration.
func NewRepository(cfg Config, c cache.Cache, publisher Publisher) (*Repository, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: cache is required", sessionstore.ErrConfiguration)
	}
	if publisher == nil {
		return nil, fmt.Errorf("%w: event publisher is required", sessionstore.ErrConfiguration)
	}

	types := cfg.Types
	if types == nil {
		types = marshal.NewContext()
	}
	m, err := cfg.MarshallerFactory(types)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaller: %w", sessionstore.ErrConfiguration, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: marshaller factory returned nil", sessionstore.ErrConfiguration)
	}

	r := &Repository{
		cache:       c,
		marshaller:  m,
		newID:       cfg.IdentifierFactory,
		publisher:   publisher,
		maxActive:   cfg.MaxActiveSessions,
		maxInactive: cfg.MaxInactiveInterval,
		tracker:     newTracker(),
		now:         cfg.Clock,
	}
	if r.newID == nil {
		r.newID = DefaultConfig().IdentifierFactory
	}
	if r.maxInactive == 0 {
		r.maxInactive = DefaultMaxInactiveInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.maxActive != nil {
		limit := *r.maxActive
		r.maxActive = &limit
	}

	switch cfg.Granularity {
	case Coarse:
		r.strategy = &coarseStrategy{cache: c, marshaller: m}
	case Fine:
		r.strategy = &fineStrategy{cache: c, marshaller: m}
	}

	log.Debug(log.CatSession, "repository ready", "granularity", cfg.Granularity, "max_inactive", r.maxInactive)
	return r, nil
}

// Create stores a new empty session under a fresh identifier and announces it.
// A generated id that already exists in the cache is discarded and another
// one is drawn, up to a bounded number of attempts. Capacity is then enforced
// against the other tracked sessions; the new session is never evicted by its
// own creation.
func (r *Repository) Create(ctx context.Context) (*Session, error) {
	now := r.now()
	meta := Metadata{
		CreationTime:        now,
		LastAccessedTime:    now,
		MaxInactiveInterval: r.maxInactive,
	}

	for attempt := 1; attempt <= maxIdentifierAttempts; attempt++ {
		id := r.newID()
		stored, err := r.strategy.create(ctx, id, meta)
		if err != nil {
			return nil, err
		}
		if !stored {
			log.Warn(log.CatSession, "session id collision", "session", id, "attempt", attempt)
			continue
		}

		r.tracker.touch(id, now)
		r.publisher.Publish(events.SessionCreated, id)
		log.Debug(log.CatSession, "session created", "session", id)

		if err := r.enforceCapacity(ctx, id); err != nil {
			log.ErrorErr(log.CatCapacity, "capacity enforcement failed", err, "session", id)
		}
		return newSession(id, meta, true), nil
	}

	return nil, fmt.Errorf("%w: %d ids collided", sessionstore.ErrIdentifierExhausted, maxIdentifierAttempts)
}

// Load returns the session stored under id, or nil if there is none.
// Sessions idle past their max inactive interval are removed, announced as
// expired and reported as absent. Attributes that fail to decode are left out
// of the returned session and reported by its DecodeErrors.
func (r *Repository) Load(ctx context.Context, id string) (*Session, error) {
	s, err := r.strategy.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		r.tracker.forget(id)
		return nil, nil
	}

	now := r.now()
	if s.meta.IsExpired(now) {
		found, err := r.strategy.remove(ctx, id)
		if err != nil {
			return nil, err
		}
		r.tracker.forget(id)
		if found {
			log.Debug(log.CatSession, "session expired", "session", id)
			r.publisher.Publish(events.SessionExpired, id)
		}
		return nil, nil
	}

	s.meta.LastAccessedTime = now
	r.tracker.touch(id, now)
	return s, nil
}

// Save writes the changes recorded by s. Metadata is always rewritten, so a
// save without changes still records the access. After a successful Save the
// handle is closed.
func (r *Repository) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("session: save of nil session")
	}
	if s.closed {
		return ErrSessionClosed
	}

	if err := r.strategy.write(ctx, s); err != nil {
		return err
	}
	s.closed = true
	r.tracker.touch(s.id, s.meta.LastAccessedTime)
	return nil
}

// Delete removes the session stored under id. Deleting an absent session is
// not an error and announces nothing.
func (r *Repository) Delete(ctx context.Context, id string) error {
	found, err := r.strategy.remove(ctx, id)
	if err != nil {
		return err
	}
	r.tracker.forget(id)
	if found {
		log.Debug(log.CatSession, "session destroyed", "session", id)
		r.publisher.Publish(events.SessionDestroyed, id)
	}
	return nil
}

// Marshaller returns the attribute codec in use.
func (r *Repository) Marshaller() *marshal.Marshaller {
	return r.marshaller
}

// Close closes the underlying cache.
func (r *Repository) Close() error {
	return r.cache.Close()
}
