package marshal

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"pgregory.net/rapid"

	"github.com/creastat/sessionstore"
)

type point struct {
	X, Y int
}

type cart struct {
	Items []string `json:"items"`
	Total float64  `json:"total"`
}

func pointExtension() Extension {
	return NewExtension("test.point", func(p point) ([]byte, error) {
		b := binary.AppendVarint(nil, int64(p.X))
		return binary.AppendVarint(b, int64(p.Y)), nil
	}, func(data []byte) (point, error) {
		x, n := binary.Varint(data)
		y, _ := binary.Varint(data[n:])
		return point{X: int(x), Y: int(y)}, nil
	})
}

func newTestMarshaller(t *testing.T) *Marshaller {
	t.Helper()
	ctx := NewContext()
	require.NoError(t, ctx.RegisterExtension(pointExtension()))
	require.NoError(t, ctx.Register("test.cart", cart{}))
	require.NoError(t, ctx.Register("test.cart-ptr", &cart{}))

	m, err := Default(ctx)
	require.NoError(t, err)
	return m
}

func roundTrip(t *testing.T, m *Marshaller, v any) any {
	t.Helper()
	data, err := m.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, byte(m.Current().Version()), data[0], "version tag must lead")

	out, err := m.Unmarshal(data)
	require.NoError(t, err)
	return out
}

func TestRegistry_ResolveUnknownVersion(t *testing.T) {
	_, err := DefaultRegistry.Resolve(Version(42))
	require.ErrorIs(t, err, sessionstore.ErrConfiguration)
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestRegistry_CurrentMustBeKnown(t *testing.T) {
	_, err := NewRegistry(Version(2), map[Version]Builder{Version1: buildVersion1})
	require.ErrorIs(t, err, sessionstore.ErrConfiguration)
}

func TestRegistry_Defaults(t *testing.T) {
	require.Equal(t, Version1, DefaultRegistry.Current())
	require.Equal(t, []Version{Version1}, DefaultRegistry.Versions())
	require.Equal(t, "VERSION_1", Version1.String())
}

func TestMarshaller_RequiresContext(t *testing.T) {
	_, err := NewMarshaller(DefaultRegistry, nil)
	require.ErrorIs(t, err, sessionstore.ErrConfiguration)
}

func TestCodec_TableTypes(t *testing.T) {
	m := newTestMarshaller(t)
	when := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

	values := []any{
		nil,
		true,
		false,
		"",
		"hello",
		int(-7),
		int8(-8),
		int16(300),
		int32(-70000),
		int64(1 << 40),
		uint(7),
		uint8(255),
		uint16(65535),
		uint32(1 << 31),
		uint64(1 << 63),
		float32(1.5),
		float64(-2.25),
		[]byte{0, 1, 2},
		[]byte{},
		[]byte(nil),
		time.Minute,
		[]string{"a", "b"},
		[]string(nil),
		[]any{"a", 1, nil, []any{true}},
		map[string]any{"k": "v", "n": int64(2), "nested": map[string]any{"x": 1.5}},
		map[string]any(nil),
	}

	for _, v := range values {
		require.Equal(t, v, roundTrip(t, m, v), "value %#v", v)
	}

	got := roundTrip(t, m, when)
	require.True(t, when.Equal(got.(time.Time)))
}

func TestCodec_ExtensionAndResolver(t *testing.T) {
	m := newTestMarshaller(t)

	require.Equal(t, point{X: 3, Y: -4}, roundTrip(t, m, point{X: 3, Y: -4}))
	require.Equal(t, cart{Items: []string{"a"}, Total: 9.5}, roundTrip(t, m, cart{Items: []string{"a"}, Total: 9.5}))
	require.Equal(t, &cart{Items: []string{"b"}}, roundTrip(t, m, &cart{Items: []string{"b"}}))

	nested := []any{point{X: 1, Y: 2}, map[string]any{"p": point{X: 5}}}
	require.Equal(t, nested, roundTrip(t, m, nested))
}

func TestCodec_ProtobufMessages(t *testing.T) {
	m := newTestMarshaller(t)

	for _, msg := range []proto.Message{
		wrapperspb.String("session"),
		timestamppb.New(time.Date(2023, 1, 2, 3, 4, 5, 6, time.UTC)),
	} {
		got := roundTrip(t, m, msg)
		gotMsg, ok := got.(proto.Message)
		require.True(t, ok)
		assert.True(t, proto.Equal(msg, gotMsg), "%v != %v", msg, gotMsg)
	}
}

func TestCodec_ProtobufDisabled(t *testing.T) {
	ctx := NewContext()
	ctx.SetProtoResolver(nil)
	m, err := Default(ctx)
	require.NoError(t, err)

	_, err = m.Marshal(wrapperspb.Int64(5))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCodec_UnsupportedType(t *testing.T) {
	m := newTestMarshaller(t)

	_, err := m.Marshal(struct{ A int }{A: 1})
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = m.Marshal([]any{1, struct{}{}})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCodec_UnknownTypesFailDecoding(t *testing.T) {
	writer := newTestMarshaller(t)
	reader, err := Default(NewContext())
	require.NoError(t, err)

	for _, v := range []any{point{X: 1}, cart{Total: 1}} {
		data, err := writer.Marshal(v)
		require.NoError(t, err)

		_, err = reader.Unmarshal(data)
		require.ErrorIs(t, err, sessionstore.ErrDeserialization, "value %#v", v)
	}
}

func TestCodec_CorruptInput(t *testing.T) {
	m := newTestMarshaller(t)

	data, err := m.Marshal("a longer string value")
	require.NoError(t, err)

	_, err = m.Unmarshal(data[:len(data)-3])
	require.ErrorIs(t, err, sessionstore.ErrDeserialization)

	_, err = m.Unmarshal(nil)
	require.ErrorIs(t, err, sessionstore.ErrDeserialization)

	_, err = m.Unmarshal([]byte{byte(Version1), 99})
	require.ErrorIs(t, err, sessionstore.ErrDeserialization)

	_, err = m.Unmarshal(append(data, 0))
	require.ErrorIs(t, err, sessionstore.ErrDeserialization)
}

// shiftedVersion builds a table whose ids differ from Version1, standing in for a later format.
func shiftedVersion(ctx *Context) (*Configuration, error) {
	entries := version1Types()
	for i := range entries {
		entries[i].ID += 100
	}
	return &Configuration{
		Resolver:   NewResolver(ctx),
		Table:      NewTypeTable(entries...),
		Extensions: NewExtensionTable(ctx),
	}, nil
}

func TestMarshaller_BackwardCompatibility(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.RegisterExtension(pointExtension()))

	oldNode, err := NewMarshaller(DefaultRegistry, ctx)
	require.NoError(t, err)

	upgraded, err := NewRegistry(Version(2), map[Version]Builder{
		Version1:   buildVersion1,
		Version(2): shiftedVersion,
	})
	require.NoError(t, err)
	newNode, err := NewMarshaller(upgraded, ctx)
	require.NoError(t, err)

	value := map[string]any{"user": "alice", "p": point{X: 1, Y: 1}, "hits": int64(3)}

	oldBytes, err := oldNode.Marshal(value)
	require.NoError(t, err)
	require.Equal(t, byte(Version1), oldBytes[0])

	decoded, err := newNode.Unmarshal(oldBytes)
	require.NoError(t, err)
	require.Equal(t, value, decoded)

	newBytes, err := newNode.Marshal(value)
	require.NoError(t, err)
	require.Equal(t, byte(2), newBytes[0])

	decoded, err = newNode.Unmarshal(newBytes)
	require.NoError(t, err)
	require.Equal(t, value, decoded)

	// A node that never learned Version 2 reports it instead of misreading it.
	_, err = oldNode.Unmarshal(newBytes)
	require.ErrorIs(t, err, sessionstore.ErrDeserialization)
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestContext_DuplicateRegistration(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Register("thing", cart{}))
	require.NoError(t, ctx.Register("thing", cart{}))
	require.ErrorIs(t, ctx.Register("thing", point{}), ErrDuplicateName)

	require.NoError(t, ctx.RegisterExtension(pointExtension()))
	dup := NewExtension("test.point", func(cart) ([]byte, error) { return nil, nil },
		func([]byte) (cart, error) { return cart{}, nil })
	require.ErrorIs(t, ctx.RegisterExtension(dup), ErrDuplicateName)

	require.Error(t, ctx.RegisterExtension(Extension{ID: "empty"}))
	require.Error(t, ctx.Register("", cart{}))
}

func TestContext_SnapshotIsolation(t *testing.T) {
	ctx := NewContext()
	m, err := Default(ctx)
	require.NoError(t, err)

	require.NoError(t, ctx.Register("test.cart", cart{}))

	_, err = m.Marshal(cart{})
	require.ErrorIs(t, err, ErrUnsupportedType, "configurations must not observe later registrations")
}

func TestCodec_RoundTripProperties(t *testing.T) {
	m := newTestMarshaller(t)

	rapid.Check(t, func(rt *rapid.T) {
		attrs := map[string]any{
			"s":   rapid.String().Draw(rt, "s"),
			"i":   rapid.Int().Draw(rt, "i"),
			"i64": rapid.Int64().Draw(rt, "i64"),
			"u64": rapid.Uint64().Draw(rt, "u64"),
			"f":   rapid.Float64Range(-1e12, 1e12).Draw(rt, "f"),
			"b":   rapid.Bool().Draw(rt, "b"),
			"raw": rapid.SliceOf(rapid.Byte()).Draw(rt, "raw"),
			"ss":  rapid.SliceOf(rapid.String()).Draw(rt, "ss"),
			"p": point{
				X: rapid.IntRange(-1<<30, 1<<30).Draw(rt, "x"),
				Y: rapid.IntRange(-1<<30, 1<<30).Draw(rt, "y"),
			},
		}

		data, err := m.Marshal(attrs)
		if err != nil {
			rt.Fatalf("marshal: %v", err)
		}
		got, err := m.Unmarshal(data)
		if err != nil {
			rt.Fatalf("unmarshal: %v", err)
		}
		if !assert.ObjectsAreEqual(attrs, got) {
			rt.Fatalf("round trip mismatch:\n%#v\n%#v", attrs, got)
		}
	})
}
