package session

import (
	"context"
	"fmt"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/cache"
	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/marshal"
)

// coarseStrategy keeps the whole session in a single entry, so every save is
// one put and readers never observe a partially updated attribute set.
type coarseStrategy struct {
	cache      cache.Cache
	marshaller *marshal.Marshaller
}

func (c *coarseStrategy) create(ctx context.Context, id string, meta Metadata) (bool, error) {
	w := newEntryWriter(c.marshaller.Current(), meta)
	w.Uvarint(0)

	stored, err := c.cache.PutIfAbsent(ctx, cache.SessionKey(id), w.Bytes())
	if err != nil {
		return false, fmt.Errorf("%w: create session %s: %w", sessionstore.ErrWriteFailed, id, err)
	}
	return stored, nil
}

func (c *coarseStrategy) read(ctx context.Context, id string) (*Session, error) {
	data, err := c.cache.Get(ctx, cache.SessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", sessionstore.ErrConnectivity, id, err)
	}
	if data == nil {
		return nil, nil
	}

	codec, r, meta, err := readEntryHeader(c.marshaller, data)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	n, err := r.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, corruptEntry(err))
	}

	s := newSession(id, meta, false)
	s.rawVersion = codec.Version()
	for range n {
		name, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, corruptEntry(err))
		}
		encoded, err := r.LenBytes()
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, corruptEntry(err))
		}

		s.names.add(name)
		v, err := codec.Decode(encoded)
		if err != nil {
			s.raw[name] = append([]byte(nil), encoded...)
			s.recordDecodeError(&AttributeError{Name: name, Err: err})
			continue
		}
		s.values[name] = v
	}
	return s, nil
}

func (c *coarseStrategy) write(ctx context.Context, s *Session) error {
	codec := c.marshaller.Current()

	type attr struct {
		name    string
		encoded []byte
	}
	attrs := make([]attr, 0, len(s.names))
	for _, name := range s.names.sorted() {
		if raw, ok := s.raw[name]; ok {
			if s.rawVersion != codec.Version() {
				log.Warn(log.CatCodec, "dropping undecodable attribute written by another version",
					"session", s.id, "attribute", name, "version", s.rawVersion)
				continue
			}
			attrs = append(attrs, attr{name: name, encoded: raw})
			continue
		}
		encoded, err := codec.Encode(s.values[name])
		if err != nil {
			return fmt.Errorf("session %s: encode attribute %q: %w", s.id, name, err)
		}
		attrs = append(attrs, attr{name: name, encoded: encoded})
	}

	w := newEntryWriter(codec, s.meta)
	w.Uvarint(uint64(len(attrs)))
	for _, a := range attrs {
		w.String(a.name)
		w.LenBytes(a.encoded)
	}

	if err := c.cache.Put(ctx, cache.SessionKey(s.id), w.Bytes()); err != nil {
		return fmt.Errorf("%w: save session %s: %w", sessionstore.ErrWriteFailed, s.id, err)
	}
	return nil
}

func (c *coarseStrategy) remove(ctx context.Context, id string) (bool, error) {
	found, err := c.cache.Remove(ctx, cache.SessionKey(id))
	if err != nil {
		return false, fmt.Errorf("%w: remove session %s: %w", sessionstore.ErrWriteFailed, id, err)
	}
	return found, nil
}

