// Package marshal turns session attribute values into cache-storable bytes.
//
// Every stored value is prefixed with the Version that wrote it. A Marshaller
// knows every Version of its Registry and always decodes with the Version found
// in the bytes, so nodes running a newer Version keep reading entries written by
// older nodes during a rolling upgrade. Only the encode path follows Current.
package marshal

import (
	"errors"
	"fmt"
	"slices"

	"github.com/creastat/sessionstore"
)

// Version tags a codec configuration. Tags are never reused or removed.
type Version uint8

const (
	Version1 Version = 1
)

// Current is the Version written by DefaultRegistry.
const Current = Version1

// ErrUnknownVersion is wrapped by errors about a Version missing from a Registry.
var ErrUnknownVersion = errors.New("unknown marshalling version")

func (v Version) String() string {
	return fmt.Sprintf("VERSION_%d", uint8(v))
}

// Builder produces the codec configuration of one Version for a type context.
type Builder func(ctx *Context) (*Configuration, error)

// Registry maps versions to builders and designates one of them as current.
type Registry struct {
	builders map[Version]Builder
	current  Version
}

// DefaultRegistry knows every Version shipped by this package.
var DefaultRegistry = mustRegistry(Current, map[Version]Builder{
	Version1: buildVersion1,
})

// NewRegistry returns a registry whose encode path uses current.
func NewRegistry(current Version, builders map[Version]Builder) (*Registry, error) {
	if _, ok := builders[current]; !ok {
		return nil, fmt.Errorf("%w: current %w %s", sessionstore.ErrConfiguration, ErrUnknownVersion, current)
	}
	copied := make(map[Version]Builder, len(builders))
	for v, b := range builders {
		if b == nil {
			return nil, fmt.Errorf("%w: nil builder for %s", sessionstore.ErrConfiguration, v)
		}
		copied[v] = b
	}
	return &Registry{builders: copied, current: current}, nil
}

func mustRegistry(current Version, builders map[Version]Builder) *Registry {
	r, err := NewRegistry(current, builders)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the builder of v. An unknown version is a configuration error.
func (r *Registry) Resolve(v Version) (Builder, error) {
	b, ok := r.builders[v]
	if !ok {
		return nil, fmt.Errorf("%w: %w %s", sessionstore.ErrConfiguration, ErrUnknownVersion, v)
	}
	return b, nil
}

// Current returns the version used for encoding.
func (r *Registry) Current() Version {
	return r.current
}

// Versions returns every known version in ascending order.
func (r *Registry) Versions() []Version {
	versions := make([]Version, 0, len(r.builders))
	for v := range r.builders {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

// buildVersion1 composes resolver, compact table and extension table, in that order.
func buildVersion1(ctx *Context) (*Configuration, error) {
	return &Configuration{
		Resolver:   NewResolver(ctx),
		Table:      NewTypeTable(version1Types()...),
		Extensions: NewExtensionTable(ctx),
	}, nil
}
