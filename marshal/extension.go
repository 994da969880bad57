package marshal

import (
	"fmt"
	"reflect"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/creastat/sessionstore"
)

const protoPrefix = "proto:"

// Extension encodes one type outside the compact table under a stable id.
type Extension struct {
	ID     string
	Type   reflect.Type
	Encode func(v any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

// NewExtension builds a typed Extension for values of type T.
func NewExtension[T any](id string, encode func(T) ([]byte, error), decode func([]byte) (T, error)) Extension {
	return Extension{
		ID:   id,
		Type: reflect.TypeFor[T](),
		Encode: func(v any) ([]byte, error) {
			t, ok := v.(T)
			if !ok {
				return nil, fmt.Errorf("marshal: extension %q cannot encode %T", id, v)
			}
			return encode(t)
		},
		Decode: func(data []byte) (any, error) {
			return decode(data)
		},
	}
}

// ExtensionTable resolves extension types registered on a Context plus any
// protobuf message known to the Context's ProtoResolver.
type ExtensionTable struct {
	byID   map[string]Extension
	byType map[reflect.Type]Extension
	protos ProtoResolver
}

// NewExtensionTable snapshots the extensions of ctx.
func NewExtensionTable(ctx *Context) *ExtensionTable {
	exts, protos := ctx.snapshotExtensions()
	t := &ExtensionTable{
		byID:   exts,
		byType: make(map[reflect.Type]Extension, len(exts)),
		protos: protos,
	}
	for _, ext := range exts {
		t.byType[ext.Type] = ext
	}
	return t
}

func (t *ExtensionTable) encode(v any) (string, []byte, bool, error) {
	if ext, ok := t.byType[reflect.TypeOf(v)]; ok {
		data, err := ext.Encode(v)
		return ext.ID, data, true, err
	}
	if m, ok := v.(proto.Message); ok && t.protos != nil {
		name := m.ProtoReflect().Descriptor().FullName()
		data, err := proto.MarshalOptions{Deterministic: true}.Marshal(m)
		return protoPrefix + string(name), data, true, err
	}
	return "", nil, false, nil
}

func (t *ExtensionTable) decode(id string, data []byte) (any, error) {
	if ext, ok := t.byID[id]; ok {
		v, err := ext.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: extension %q: %w", sessionstore.ErrDeserialization, id, err)
		}
		return v, nil
	}

	name, ok := strings.CutPrefix(id, protoPrefix)
	if !ok || t.protos == nil {
		return nil, fmt.Errorf("%w: unknown extension %q", sessionstore.ErrDeserialization, id)
	}
	mt, err := t.protos.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("%w: protobuf message %q: %w", sessionstore.ErrDeserialization, name, err)
	}
	m := mt.New().Interface()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: protobuf message %q: %w", sessionstore.ErrDeserialization, name, err)
	}
	return m, nil
}
