package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/cache"
	"github.com/creastat/sessionstore/events"
	"github.com/creastat/sessionstore/internal/log"
)

// tracker remembers the last access of every session this repository has
// created, loaded, saved or discovered.
type tracker struct {
	mu       sync.Mutex
	sessions map[string]time.Time
}

func newTracker() *tracker {
	return &tracker{sessions: make(map[string]time.Time)}
}

func (t *tracker) touch(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = at
}

// seed records at for id unless id is already tracked.
func (t *tracker) seed(id string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; ok {
		return false
	}
	t.sessions[id] = at
	return true
}

func (t *tracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

func (t *tracker) has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	return ok
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// overflow returns the sessions beyond limit, least recently accessed first.
// Equal access times evict the lexicographically smaller id first. The keep
// id still counts toward the limit but is never returned.
func (t *tracker) overflow(limit int, keep string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	excess := len(t.sessions) - limit
	if excess <= 0 {
		return nil
	}

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(t.sessions))
	for id, at := range t.sessions {
		if id == keep {
			continue
		}
		entries = append(entries, entry{id: id, at: at})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	victims := make([]string, min(excess, len(entries)))
	for i := range victims {
		victims[i] = entries[i].id
	}
	return victims
}

// ActiveSessions returns the number of sessions currently tracked for capacity.
func (r *Repository) ActiveSessions() int {
	return r.tracker.len()
}

// EnforceCapacity evicts least recently accessed sessions until no more than
// MaxActiveSessions are tracked. Evicted sessions are removed from the cache
// like Delete, but announced as expired.
func (r *Repository) EnforceCapacity(ctx context.Context) error {
	return r.enforceCapacity(ctx, "")
}

// enforceCapacity evicts like EnforceCapacity but never evicts keep.
func (r *Repository) enforceCapacity(ctx context.Context, keep string) error {
	if r.maxActive == nil {
		return nil
	}

	for _, id := range r.tracker.overflow(*r.maxActive, keep) {
		found, err := r.strategy.remove(ctx, id)
		if err != nil {
			return err
		}
		r.tracker.forget(id)
		if found {
			log.Info(log.CatCapacity, "evicted session", "session", id, "max_active", *r.maxActive)
			r.publisher.Publish(events.SessionExpired, id)
		}
	}
	return nil
}

// Discover tracks the sessions stored in the cache that this repository has
// not seen yet, at their stored last access time, so EnforceCapacity also
// weighs sessions created through other repositories. Expired sessions found
// on the way are removed and announced as expired. It returns the number of
// sessions added. Caches that cannot list sessions yield cache.ErrNotSupported.
func (r *Repository) Discover(ctx context.Context) (int, error) {
	lister, ok := r.cache.(cache.Lister)
	if !ok {
		return 0, cache.ErrNotSupported
	}
	ids, err := lister.Sessions(ctx)
	if errors.Is(err, cache.ErrNotSupported) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %w", sessionstore.ErrConnectivity, err)
	}

	now := r.now()
	added := 0
	for _, id := range ids {
		if r.tracker.has(id) {
			continue
		}
		meta, err := r.readMetadata(ctx, id)
		if err != nil {
			if errors.Is(err, sessionstore.ErrConnectivity) {
				return added, err
			}
			log.Warn(log.CatCapacity, "skipping unreadable session", "session", id, "error", err)
			continue
		}
		if meta == nil {
			continue
		}
		if meta.IsExpired(now) {
			found, err := r.strategy.remove(ctx, id)
			if err != nil {
				return added, err
			}
			if found {
				r.publisher.Publish(events.SessionExpired, id)
			}
			continue
		}
		if r.tracker.seed(id, meta.LastAccessedTime) {
			added++
		}
	}
	if added > 0 {
		log.Debug(log.CatCapacity, "discovered sessions", "count", added, "tracked", r.tracker.len())
	}
	return added, nil
}

// readMetadata decodes only the header of a stored session entry.
// Returns nil if the session does not exist.
func (r *Repository) readMetadata(ctx context.Context, id string) (*Metadata, error) {
	data, err := r.cache.Get(ctx, cache.SessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", sessionstore.ErrConnectivity, id, err)
	}
	if data == nil {
		return nil, nil
	}
	_, _, meta, err := readEntryHeader(r.marshaller, data)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return &meta, nil
}

// Sweep discovers stored sessions and enforces capacity every interval until
// ctx is done. Discovery is skipped for caches that cannot list sessions, in
// which case only sessions this repository has handled are weighed. Failures
// are logged and retried on the next tick.
func (r *Repository) Sweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	discover := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if discover {
				_, err := r.Discover(ctx)
				switch {
				case errors.Is(err, cache.ErrNotSupported):
					log.Warn(log.CatCapacity, "cache cannot list sessions, sweeping tracked sessions only")
					discover = false
				case err != nil:
					log.ErrorErr(log.CatCapacity, "session discovery failed", err)
				}
			}
			if err := r.EnforceCapacity(ctx); err != nil {
				log.ErrorErr(log.CatCapacity, "capacity sweep failed", err)
			}
		}
	}
}
