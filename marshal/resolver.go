package marshal

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/creastat/sessionstore"
)

// Resolver maps application types registered on a Context to stable names.
// Values are carried as JSON.
type Resolver struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewResolver snapshots the named types of ctx.
func NewResolver(ctx *Context) *Resolver {
	types := ctx.snapshotTypes()
	r := &Resolver{
		byName: types,
		byType: make(map[reflect.Type]string, len(types)),
	}
	for name, typ := range types {
		r.byType[typ] = name
	}
	return r
}

func (r *Resolver) lookup(v any) (string, bool) {
	name, ok := r.byType[reflect.TypeOf(v)]
	return name, ok
}

func (r *Resolver) encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (r *Resolver) decode(name string, data []byte) (any, error) {
	typ, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unresolvable type %q", sessionstore.ErrDeserialization, name)
	}

	if typ.Kind() == reflect.Pointer {
		ptr := reflect.New(typ.Elem())
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", sessionstore.ErrDeserialization, name, err)
		}
		return ptr.Interface(), nil
	}

	ptr := reflect.New(typ)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", sessionstore.ErrDeserialization, name, err)
	}
	return ptr.Elem().Interface(), nil
}
