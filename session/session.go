package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/marshal"
)

type set map[string]struct{}

func (s set) add(name string) {
	s[name] = struct{}{}
}

func (s set) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s set) sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// fetchFunc loads a single attribute on first access.
type fetchFunc func(ctx context.Context, name string) (any, bool, error)

// Session is the request-scoped handle on a stored session. It records which
// attributes were read, written and removed so that Save transmits only what
// changed. A Session is not safe for concurrent use and must not be reused
// after Save.
type Session struct {
	id    string
	meta  Metadata
	isNew bool

	values  map[string]any
	names   set
	pending set

	// Undecodable coarse attributes, kept verbatim with the version that wrote them.
	raw        map[string][]byte
	rawVersion marshal.Version

	read    set
	written set
	removed set

	fetch      fetchFunc
	decodeErrs []error
	closed     bool
}

func newSession(id string, meta Metadata, isNew bool) *Session {
	return &Session{
		id:      id,
		meta:    meta,
		isNew:   isNew,
		values:  make(map[string]any),
		names:   make(set),
		pending: make(set),
		raw:     make(map[string][]byte),
		read:    make(set),
		written: make(set),
		removed: make(set),
	}
}

// ID returns the immutable session identifier.
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether the session was created by this handle's request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// CreationTime returns when the session was created.
func (s *Session) CreationTime() time.Time {
	return s.meta.CreationTime
}

// LastAccessedTime returns when the session was last loaded or created.
func (s *Session) LastAccessedTime() time.Time {
	return s.meta.LastAccessedTime
}

// MaxInactiveInterval returns how long the session may stay idle before it
// expires. Non-positive never expires.
func (s *Session) MaxInactiveInterval() time.Duration {
	return s.meta.MaxInactiveInterval
}

// SetMaxInactiveInterval changes the idle timeout. Non-positive never expires.
// It is ignored after Save.
func (s *Session) SetMaxInactiveInterval(d time.Duration) {
	if s.closed {
		return
	}
	s.meta.MaxInactiveInterval = d
}

// Metadata returns a copy of the session metadata.
func (s *Session) Metadata() Metadata {
	return s.meta
}

// Get returns the value of name. Under Fine granularity the first access of an
// attribute reads it from the cache; an attribute listed in the metadata but
// missing or undecodable in the cache reads as absent, and the decode failure
// is reported through DecodeErrors.
func (s *Session) Get(ctx context.Context, name string) (any, bool, error) {
	if s.closed {
		return nil, false, ErrSessionClosed
	}
	s.read.add(name)

	if s.removed.has(name) {
		return nil, false, nil
	}
	if v, ok := s.values[name]; ok {
		return v, true, nil
	}
	if !s.pending.has(name) || s.fetch == nil {
		return nil, false, nil
	}

	v, found, err := s.fetch(ctx, name)
	if err != nil {
		var attrErr *AttributeError
		if !errors.As(err, &attrErr) {
			return nil, false, err
		}
		delete(s.pending, name)
		s.recordDecodeError(attrErr)
		return nil, false, nil
	}

	delete(s.pending, name)
	if !found {
		delete(s.names, name)
		return nil, false, nil
	}
	s.values[name] = v
	return v, true, nil
}

// Set stores value under name. A nil value removes the attribute.
// Set is ignored after Save.
func (s *Session) Set(name string, value any) {
	if s.closed {
		return
	}
	if value == nil {
		s.Remove(name)
		return
	}
	s.values[name] = value
	s.names.add(name)
	s.written.add(name)
	delete(s.removed, name)
	delete(s.pending, name)
	delete(s.raw, name)
}

// Remove deletes name. A later Set of the same name cancels the removal.
// Remove is ignored after Save.
func (s *Session) Remove(name string) {
	if s.closed || !s.names.has(name) && !s.written.has(name) {
		return
	}
	delete(s.values, name)
	delete(s.names, name)
	delete(s.pending, name)
	delete(s.raw, name)
	delete(s.written, name)
	s.removed.add(name)
}

// AttributeNames returns the sorted names of all attributes, loaded or not.
func (s *Session) AttributeNames() []string {
	return s.names.sorted()
}

// DecodeErrors returns the attributes that could not be decoded, joined, or nil.
func (s *Session) DecodeErrors() error {
	return errors.Join(s.decodeErrs...)
}

// IsExpired reports whether the session is idle past its max inactive interval at now.
func (s *Session) IsExpired(now time.Time) bool {
	return s.meta.IsExpired(now)
}

func (s *Session) recordDecodeError(err *AttributeError) {
	s.decodeErrs = append(s.decodeErrs, err)
	log.Warn(log.CatCodec, "attribute could not be decoded", "session", s.id, "attribute", err.Name, "error", err.Err)
}
