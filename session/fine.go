package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/cache"
	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/marshal"
)

// fineStrategy keeps one entry per attribute plus a metadata entry listing the
// attribute names. Saves transmit only touched attributes and write the
// metadata last, so a reader that finds a listed attribute missing treats just
// that attribute as absent.
type fineStrategy struct {
	cache      cache.Cache
	marshaller *marshal.Marshaller
}

func (f *fineStrategy) create(ctx context.Context, id string, meta Metadata) (bool, error) {
	w := newEntryWriter(f.marshaller.Current(), meta)
	writeNames(w, nil)

	stored, err := f.cache.PutIfAbsent(ctx, cache.SessionKey(id), w.Bytes())
	if err != nil {
		return false, fmt.Errorf("%w: create session %s: %w", sessionstore.ErrWriteFailed, id, err)
	}
	return stored, nil
}

func (f *fineStrategy) readNames(ctx context.Context, id string) ([]string, *Metadata, error) {
	data, err := f.cache.Get(ctx, cache.SessionKey(id))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read session %s: %w", sessionstore.ErrConnectivity, id, err)
	}
	if data == nil {
		return nil, nil, nil
	}

	_, r, meta, err := readEntryHeader(f.marshaller, data)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", id, err)
	}
	names, err := readNames(r)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", id, err)
	}
	return names, &meta, nil
}

func (f *fineStrategy) read(ctx context.Context, id string) (*Session, error) {
	names, meta, err := f.readNames(ctx, id)
	if err != nil || meta == nil {
		return nil, err
	}

	s := newSession(id, *meta, false)
	for _, name := range names {
		s.names.add(name)
		s.pending.add(name)
	}
	s.fetch = func(ctx context.Context, name string) (any, bool, error) {
		return f.attribute(ctx, id, name)
	}
	return s, nil
}

func (f *fineStrategy) attribute(ctx context.Context, id, name string) (any, bool, error) {
	data, err := f.cache.Get(ctx, cache.AttributeKey(id, name))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read attribute %q of session %s: %w", sessionstore.ErrConnectivity, name, id, err)
	}
	if data == nil {
		log.Debug(log.CatSession, "listed attribute missing from cache", "session", id, "attribute", name)
		return nil, false, nil
	}

	v, err := f.marshaller.Unmarshal(data)
	if err != nil {
		return nil, false, &AttributeError{Name: name, Err: err}
	}
	return v, true, nil
}

func (f *fineStrategy) write(ctx context.Context, s *Session) error {
	written := s.written.sorted()

	// Encode everything first so an unsupported value aborts before any write.
	encoded := make([][]byte, len(written))
	for i, name := range written {
		data, err := f.marshaller.Marshal(s.values[name])
		if err != nil {
			return fmt.Errorf("session %s: encode attribute %q: %w", s.id, name, err)
		}
		encoded[i] = data
	}

	w := newEntryWriter(f.marshaller.Current(), s.meta)
	writeNames(w, s.names.sorted())

	for i, name := range written {
		if err := f.cache.Put(ctx, cache.AttributeKey(s.id, name), encoded[i]); err != nil {
			return fmt.Errorf("%w: save attribute %q of session %s: %w", sessionstore.ErrWriteFailed, name, s.id, err)
		}
	}
	for _, name := range s.removed.sorted() {
		if _, err := f.cache.Remove(ctx, cache.AttributeKey(s.id, name)); err != nil {
			return fmt.Errorf("%w: remove attribute %q of session %s: %w", sessionstore.ErrWriteFailed, name, s.id, err)
		}
	}

	if err := f.cache.Put(ctx, cache.SessionKey(s.id), w.Bytes()); err != nil {
		return fmt.Errorf("%w: save session %s: %w", sessionstore.ErrWriteFailed, s.id, err)
	}
	return nil
}

// remove deletes every listed attribute, then the metadata. Attributes written
// by a save that never committed its metadata are not listed and stay behind
// as unreachable entries until the cache expires them.
func (f *fineStrategy) remove(ctx context.Context, id string) (bool, error) {
	names, meta, err := f.readNames(ctx, id)
	switch {
	case errors.Is(err, sessionstore.ErrDeserialization):
		log.Warn(log.CatSession, "removing session with unreadable metadata", "session", id, "error", err)
		names = nil
	case err != nil:
		return false, fmt.Errorf("%w: %w", sessionstore.ErrWriteFailed, err)
	case meta == nil:
		return false, nil
	}

	for _, name := range names {
		if _, err := f.cache.Remove(ctx, cache.AttributeKey(id, name)); err != nil {
			return false, fmt.Errorf("%w: remove attribute %q of session %s: %w", sessionstore.ErrWriteFailed, name, id, err)
		}
	}

	found, err := f.cache.Remove(ctx, cache.SessionKey(id))
	if err != nil {
		return false, fmt.Errorf("%w: remove session %s: %w", sessionstore.ErrWriteFailed, id, err)
	}
	return found, nil
}
