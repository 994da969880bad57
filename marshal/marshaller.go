package marshal

import (
	"fmt"

	"github.com/creastat/sessionstore"
)

// Factory builds a Marshaller for a type context. Default is the stock factory.
type Factory func(ctx *Context) (*Marshaller, error)

// Default builds a Marshaller over DefaultRegistry.
func Default(ctx *Context) (*Marshaller, error) {
	return NewMarshaller(DefaultRegistry, ctx)
}

// Marshaller holds one Codec per known Version.
type Marshaller struct {
	codecs  map[Version]*Codec
	current *Codec
}

// NewMarshaller builds every version of reg for ctx. Any builder failure is a
// configuration error, reported here rather than on first use.
func NewMarshaller(reg *Registry, ctx *Context) (*Marshaller, error) {
	if reg == nil || ctx == nil {
		return nil, fmt.Errorf("%w: marshaller requires a registry and a context", sessionstore.ErrConfiguration)
	}

	m := &Marshaller{codecs: make(map[Version]*Codec)}
	for _, v := range reg.Versions() {
		build, err := reg.Resolve(v)
		if err != nil {
			return nil, err
		}
		cfg, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: build %s: %w", sessionstore.ErrConfiguration, v, err)
		}
		m.codecs[v] = NewCodec(v, cfg)
	}
	m.current = m.codecs[reg.Current()]
	return m, nil
}

// Current returns the codec used for encoding.
func (m *Marshaller) Current() *Codec {
	return m.current
}

// Codec returns the codec of v. Stored bytes naming an unknown version cannot be decoded.
func (m *Marshaller) Codec(v Version) (*Codec, error) {
	c, ok := m.codecs[v]
	if !ok {
		return nil, fmt.Errorf("%w: %w %s", sessionstore.ErrDeserialization, ErrUnknownVersion, v)
	}
	return c, nil
}

// Marshal encodes v with the current codec, prefixed by its version tag.
func (m *Marshaller) Marshal(v any) ([]byte, error) {
	data, err := m.current.Encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, byte(m.current.version))
	return append(out, data...), nil
}

// Unmarshal decodes bytes produced by Marshal of any known version.
func (m *Marshaller) Unmarshal(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", sessionstore.ErrDeserialization)
	}
	c, err := m.Codec(Version(data[0]))
	if err != nil {
		return nil, err
	}
	return c.Decode(data[1:])
}
