package marshal

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/creastat/sessionstore/internal/wire"
)

// TableEntry describes one type of a compact type table. Ids of a released
// Version never change.
type TableEntry struct {
	ID    uint64
	Type  reflect.Type
	Write func(c *Codec, w *wire.Writer, v any) error
	Read  func(c *Codec, r *wire.Reader) (any, error)
}

// TypeTable assigns short ids to frequent attribute types.
type TypeTable struct {
	byID   map[uint64]TableEntry
	byType map[reflect.Type]TableEntry
}

// NewTypeTable indexes entries. It panics on a duplicate id or type, since tables are static.
func NewTypeTable(entries ...TableEntry) *TypeTable {
	t := &TypeTable{
		byID:   make(map[uint64]TableEntry, len(entries)),
		byType: make(map[reflect.Type]TableEntry, len(entries)),
	}
	for _, e := range entries {
		if _, dup := t.byID[e.ID]; dup {
			panic(fmt.Sprintf("marshal: duplicate table id %d", e.ID))
		}
		if _, dup := t.byType[e.Type]; dup {
			panic(fmt.Sprintf("marshal: duplicate table type %s", e.Type))
		}
		t.byID[e.ID] = e
		t.byType[e.Type] = e
	}
	return t
}

func (t *TypeTable) lookupType(typ reflect.Type) (TableEntry, bool) {
	e, ok := t.byType[typ]
	return e, ok
}

func (t *TypeTable) lookupID(id uint64) (TableEntry, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// entry builds a TableEntry for a concrete type T.
func entry[T any](id uint64, write func(c *Codec, w *wire.Writer, v T) error, read func(c *Codec, r *wire.Reader) (T, error)) TableEntry {
	return TableEntry{
		ID:   id,
		Type: reflect.TypeFor[T](),
		Write: func(c *Codec, w *wire.Writer, v any) error {
			return write(c, w, v.(T))
		},
		Read: func(c *Codec, r *wire.Reader) (any, error) {
			return read(c, r)
		},
	}
}

func version1Types() []TableEntry {
	return []TableEntry{
		entry(1, func(_ *Codec, w *wire.Writer, v bool) error {
			if v {
				w.Byte(1)
			} else {
				w.Byte(0)
			}
			return nil
		}, func(_ *Codec, r *wire.Reader) (bool, error) {
			b, err := r.Byte()
			return b != 0, err
		}),
		entry(2, func(_ *Codec, w *wire.Writer, v string) error {
			w.String(v)
			return nil
		}, func(_ *Codec, r *wire.Reader) (string, error) {
			return r.String()
		}),
		signed[int](3),
		signed[int8](4),
		signed[int16](5),
		signed[int32](6),
		signed[int64](7),
		unsigned[uint](8),
		unsigned[uint8](9),
		unsigned[uint16](10),
		unsigned[uint32](11),
		unsigned[uint64](12),
		entry(13, func(_ *Codec, w *wire.Writer, v float32) error {
			w.Float64(float64(v))
			return nil
		}, func(_ *Codec, r *wire.Reader) (float32, error) {
			f, err := r.Float64()
			return float32(f), err
		}),
		entry(14, func(_ *Codec, w *wire.Writer, v float64) error {
			w.Float64(v)
			return nil
		}, func(_ *Codec, r *wire.Reader) (float64, error) {
			return r.Float64()
		}),
		entry(15, func(_ *Codec, w *wire.Writer, v []byte) error {
			if v == nil {
				w.Uvarint(0)
				return nil
			}
			w.Uvarint(uint64(len(v)) + 1)
			w.Raw(v)
			return nil
		}, readBytes),
		entry(16, func(_ *Codec, w *wire.Writer, v time.Time) error {
			b, err := v.MarshalBinary()
			if err != nil {
				return err
			}
			w.LenBytes(b)
			return nil
		}, func(_ *Codec, r *wire.Reader) (time.Time, error) {
			var t time.Time
			b, err := r.LenBytes()
			if err != nil {
				return t, err
			}
			err = t.UnmarshalBinary(b)
			return t, err
		}),
		entry(17, func(_ *Codec, w *wire.Writer, v time.Duration) error {
			w.Varint(int64(v))
			return nil
		}, func(_ *Codec, r *wire.Reader) (time.Duration, error) {
			n, err := r.Varint()
			return time.Duration(n), err
		}),
		entry(18, func(_ *Codec, w *wire.Writer, v []string) error {
			if v == nil {
				w.Uvarint(0)
				return nil
			}
			w.Uvarint(uint64(len(v)) + 1)
			for _, s := range v {
				w.String(s)
			}
			return nil
		}, func(_ *Codec, r *wire.Reader) ([]string, error) {
			n, err := readCount(r)
			if err != nil || n < 0 {
				return nil, err
			}
			out := make([]string, 0, n)
			for range n {
				s, err := r.String()
				if err != nil {
					return nil, err
				}
				out = append(out, s)
			}
			return out, nil
		}),
		entry(19, func(c *Codec, w *wire.Writer, v []any) error {
			if v == nil {
				w.Uvarint(0)
				return nil
			}
			w.Uvarint(uint64(len(v)) + 1)
			for _, item := range v {
				if err := c.write(w, item); err != nil {
					return err
				}
			}
			return nil
		}, func(c *Codec, r *wire.Reader) ([]any, error) {
			n, err := readCount(r)
			if err != nil || n < 0 {
				return nil, err
			}
			out := make([]any, 0, n)
			for range n {
				item, err := c.read(r)
				if err != nil {
					return nil, err
				}
				out = append(out, item)
			}
			return out, nil
		}),
		entry(20, func(c *Codec, w *wire.Writer, v map[string]any) error {
			if v == nil {
				w.Uvarint(0)
				return nil
			}
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			slices.Sort(keys)

			w.Uvarint(uint64(len(v)) + 1)
			for _, k := range keys {
				w.String(k)
				if err := c.write(w, v[k]); err != nil {
					return fmt.Errorf("key %q: %w", k, err)
				}
			}
			return nil
		}, func(c *Codec, r *wire.Reader) (map[string]any, error) {
			n, err := readCount(r)
			if err != nil || n < 0 {
				return nil, err
			}
			out := make(map[string]any, n)
			for range n {
				k, err := r.String()
				if err != nil {
					return nil, err
				}
				v, err := c.read(r)
				if err != nil {
					return nil, err
				}
				out[k] = v
			}
			return out, nil
		}),
	}
}

type signedInt interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsignedInt interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func signed[T signedInt](id uint64) TableEntry {
	return entry(id, func(_ *Codec, w *wire.Writer, v T) error {
		w.Varint(int64(v))
		return nil
	}, func(_ *Codec, r *wire.Reader) (T, error) {
		n, err := r.Varint()
		return T(n), err
	})
}

func unsigned[T unsignedInt](id uint64) TableEntry {
	return entry(id, func(_ *Codec, w *wire.Writer, v T) error {
		w.Uvarint(uint64(v))
		return nil
	}, func(_ *Codec, r *wire.Reader) (T, error) {
		n, err := r.Uvarint()
		return T(n), err
	})
}

// readCount reads a collection length written as len+1, returning -1 for nil.
func readCount(r *wire.Reader) (int, error) {
	n, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.Len())+1 {
		return 0, fmt.Errorf("marshal: collection length %d exceeds input", n-1)
	}
	return int(n) - 1, nil
}

func readBytes(_ *Codec, r *wire.Reader) ([]byte, error) {
	n, err := readCount(r)
	if err != nil || n < 0 {
		return nil, err
	}
	b, err := r.Next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
