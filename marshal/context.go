package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// ErrDuplicateName is returned when a name or extension id is bound twice to different types.
var ErrDuplicateName = errors.New("marshal: name already registered")

// ProtoResolver finds protobuf message types by full name.
// *protoregistry.Types implements it.
type ProtoResolver interface {
	FindMessageByName(protoreflect.FullName) (protoreflect.MessageType, error)
}

// Context is the type-resolution scope a Marshaller is built for. Applications
// register their own attribute types on it before constructing a Marshaller;
// configurations take a snapshot, so later registrations do not affect them.
type Context struct {
	mu         sync.RWMutex
	types      map[string]reflect.Type
	extensions map[string]Extension
	protos     ProtoResolver
}

// NewContext returns an empty context resolving protobuf messages from the global registry.
func NewContext() *Context {
	return &Context{
		types:      make(map[string]reflect.Type),
		extensions: make(map[string]Extension),
		protos:     protoregistry.GlobalTypes,
	}
}

// Register binds name to the dynamic type of sample. Values of that type are
// encoded as JSON under name. Registering the same pair twice is a no-op.
func (c *Context) Register(name string, sample any) error {
	if name == "" || sample == nil {
		return fmt.Errorf("marshal: register requires a name and a non-nil sample")
	}
	typ := reflect.TypeOf(sample)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.types[name]; ok && existing != typ {
		return fmt.Errorf("%w: %q is bound to %s", ErrDuplicateName, name, existing)
	}
	c.types[name] = typ
	return nil
}

// RegisterExtension adds an extension to the dynamic extension table.
func (c *Context) RegisterExtension(ext Extension) error {
	if ext.ID == "" || ext.Type == nil || ext.Encode == nil || ext.Decode == nil {
		return fmt.Errorf("marshal: incomplete extension %q", ext.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.extensions[ext.ID]; ok && existing.Type != ext.Type {
		return fmt.Errorf("%w: extension %q is bound to %s", ErrDuplicateName, ext.ID, existing.Type)
	}
	c.extensions[ext.ID] = ext
	return nil
}

// SetProtoResolver replaces the protobuf type source. A nil resolver disables
// protobuf messages.
func (c *Context) SetProtoResolver(r ProtoResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protos = r
}

func (c *Context) snapshotTypes() map[string]reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make(map[string]reflect.Type, len(c.types))
	for name, typ := range c.types {
		types[name] = typ
	}
	return types
}

func (c *Context) snapshotExtensions() (map[string]Extension, ProtoResolver) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	exts := make(map[string]Extension, len(c.extensions))
	for id, ext := range c.extensions {
		exts[id] = ext
	}
	return exts, c.protos
}
