package session

import (
	"fmt"
	"time"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/internal/wire"
	"github.com/creastat/sessionstore/marshal"
)

// Every session entry starts with the version tag of the codec that wrote it,
// followed by the metadata:
//
//	version byte | creation varint | last-accessed varint | max-inactive varint | payload
//
// The payload is the attribute map (Coarse) or the attribute names (Fine).

func newEntryWriter(codec *marshal.Codec, meta Metadata) *wire.Writer {
	w := wire.NewWriter(64)
	w.Byte(byte(codec.Version()))
	w.Varint(meta.CreationTime.UnixNano())
	w.Varint(meta.LastAccessedTime.UnixNano())
	w.Varint(int64(meta.MaxInactiveInterval))
	return w
}

// readEntryHeader selects the codec from the stored version tag and decodes the metadata.
func readEntryHeader(m *marshal.Marshaller, data []byte) (*marshal.Codec, *wire.Reader, Metadata, error) {
	var meta Metadata
	r := wire.NewReader(data)

	tag, err := r.Byte()
	if err != nil {
		return nil, nil, meta, corruptEntry(err)
	}
	codec, err := m.Codec(marshal.Version(tag))
	if err != nil {
		return nil, nil, meta, err
	}

	created, err := r.Varint()
	if err != nil {
		return nil, nil, meta, corruptEntry(err)
	}
	accessed, err := r.Varint()
	if err != nil {
		return nil, nil, meta, corruptEntry(err)
	}
	maxInactive, err := r.Varint()
	if err != nil {
		return nil, nil, meta, corruptEntry(err)
	}

	meta = Metadata{
		CreationTime:        time.Unix(0, created),
		LastAccessedTime:    time.Unix(0, accessed),
		MaxInactiveInterval: time.Duration(maxInactive),
	}
	return codec, r, meta, nil
}

func writeNames(w *wire.Writer, names []string) {
	w.Uvarint(uint64(len(names)))
	for _, name := range names {
		w.String(name)
	}
}

func readNames(r *wire.Reader) ([]string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, corruptEntry(err)
	}
	if n > uint64(r.Len()) {
		return nil, corruptEntry(fmt.Errorf("name count %d exceeds entry", n))
	}
	names := make([]string, 0, n)
	for range n {
		name, err := r.String()
		if err != nil {
			return nil, corruptEntry(err)
		}
		names = append(names, name)
	}
	return names, nil
}

func corruptEntry(err error) error {
	return fmt.Errorf("%w: session entry: %w", sessionstore.ErrDeserialization, err)
}
