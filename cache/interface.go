// Package cache adapts remote key-value caches to the byte-level primitives the
// session repository needs.
package cache

import "context"

// Key addresses a cache entry: a whole session (Attribute empty) or one
// attribute of a session.
type Key struct {
	Session   string
	Attribute string
}

// SessionKey returns the key of a session entry.
func SessionKey(id string) Key {
	return Key{Session: id}
}

// AttributeKey returns the key of a per-attribute entry.
func AttributeKey(id, name string) Key {
	return Key{Session: id, Attribute: name}
}

// IsAttribute reports whether k addresses a per-attribute entry.
func (k Key) IsAttribute() bool {
	return k.Attribute != ""
}

func (k Key) String() string {
	if k.IsAttribute() {
		return k.Session + "/" + k.Attribute
	}
	return k.Session
}

// Cache defines the remote cache operations used by the session repository.
// Implementations must be safe for concurrent use and honor ctx cancellation.
type Cache interface {
	// Get returns the bytes stored under key.
	// Returns nil if the key is absent (not an error).
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key Key, value []byte) error

	// PutIfAbsent stores value only if key is absent and reports whether it did.
	PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error)

	// Remove deletes key and reports whether an entry existed.
	Remove(ctx context.Context, key Key) (bool, error)

	// Close releases any resources held by the cache client.
	Close() error
}

// Lister is implemented by caches that can enumerate the sessions they hold.
type Lister interface {
	// Sessions returns the ids of all stored session entries, in no particular order.
	Sessions(ctx context.Context) ([]string, error)
}
