package marshal

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/internal/wire"
)

// ErrUnsupportedType is returned when no layer of a Configuration can encode a value.
var ErrUnsupportedType = errors.New("marshal: unsupported type")

const (
	kindNil byte = iota
	kindTable
	kindExtension
	kindNamed
)

// Configuration is the fully composed codec setup of one Version.
// It is immutable once built and safe for concurrent use.
type Configuration struct {
	Resolver   *Resolver
	Table      *TypeTable
	Extensions *ExtensionTable
}

// Codec encodes and decodes single values with one Version's Configuration.
// Encoded values carry no version tag; callers frame them.
type Codec struct {
	version Version
	config  *Configuration
}

// NewCodec binds a configuration to its version.
func NewCodec(v Version, cfg *Configuration) *Codec {
	return &Codec{version: v, config: cfg}
}

// Version returns the version this codec writes.
func (c *Codec) Version() Version {
	return c.version
}

// Encode returns the untagged encoding of v.
func (c *Codec) Encode(v any) ([]byte, error) {
	w := wire.NewWriter(32)
	if err := c.write(w, v); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode reverses Encode. Trailing bytes are an error.
func (c *Codec) Decode(data []byte) (any, error) {
	r := wire.NewReader(data)
	v, err := c.read(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", sessionstore.ErrDeserialization, r.Len())
	}
	return v, nil
}

// write tries the compact table first, then extensions, then resolver-named types.
func (c *Codec) write(w *wire.Writer, v any) error {
	if v == nil {
		w.Byte(kindNil)
		return nil
	}

	typ := reflect.TypeOf(v)
	if e, ok := c.config.Table.lookupType(typ); ok {
		w.Byte(kindTable)
		w.Uvarint(e.ID)
		return e.Write(c, w, v)
	}

	id, data, ok, err := c.config.Extensions.encode(v)
	if err != nil {
		return fmt.Errorf("marshal: extension %q: %w", id, err)
	}
	if ok {
		w.Byte(kindExtension)
		w.String(id)
		w.LenBytes(data)
		return nil
	}

	if name, ok := c.config.Resolver.lookup(v); ok {
		data, err := c.config.Resolver.encode(v)
		if err != nil {
			return fmt.Errorf("marshal: %s: %w", name, err)
		}
		w.Byte(kindNamed)
		w.String(name)
		w.LenBytes(data)
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
}

func (c *Codec) read(r *wire.Reader) (any, error) {
	kind, err := r.Byte()
	if err != nil {
		return nil, corrupt(err)
	}

	switch kind {
	case kindNil:
		return nil, nil

	case kindTable:
		id, err := r.Uvarint()
		if err != nil {
			return nil, corrupt(err)
		}
		e, ok := c.config.Table.lookupID(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown table id %d in %s", sessionstore.ErrDeserialization, id, c.version)
		}
		v, err := e.Read(c, r)
		if err != nil {
			return nil, corrupt(err)
		}
		return v, nil

	case kindExtension:
		id, err := r.String()
		if err != nil {
			return nil, corrupt(err)
		}
		data, err := r.LenBytes()
		if err != nil {
			return nil, corrupt(err)
		}
		return c.config.Extensions.decode(id, data)

	case kindNamed:
		name, err := r.String()
		if err != nil {
			return nil, corrupt(err)
		}
		data, err := r.LenBytes()
		if err != nil {
			return nil, corrupt(err)
		}
		return c.config.Resolver.decode(name, data)

	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", sessionstore.ErrDeserialization, kind)
	}
}

func corrupt(err error) error {
	if errors.Is(err, sessionstore.ErrDeserialization) {
		return err
	}
	return fmt.Errorf("%w: %w", sessionstore.ErrDeserialization, err)
}
