package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names and attributes recorded by WithTracing.
const (
	SpanPrefix = "cache."

	AttrSession   = "session.id"
	AttrAttribute = "session.attribute"
	AttrFound     = "cache.found"
	AttrStored    = "cache.stored"
	AttrBytes     = "cache.bytes"
	AttrSessions  = "cache.sessions"
)

type tracedCache struct {
	next   Cache
	tracer trace.Tracer
}

// WithTracing wraps c so that every call runs inside a span.
// If tracer is nil, c is returned unchanged.
func WithTracing(c Cache, tracer trace.Tracer) Cache {
	if tracer == nil {
		return c
	}
	return &tracedCache{next: c, tracer: tracer}
}

func (c *tracedCache) start(ctx context.Context, op string, key Key) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, SpanPrefix+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(AttrSession, key.Session))
	if key.IsAttribute() {
		span.SetAttributes(attribute.String(AttrAttribute, key.Attribute))
	}
	return ctx, span
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (c *tracedCache) Get(ctx context.Context, key Key) ([]byte, error) {
	ctx, span := c.start(ctx, "get", key)
	value, err := c.next.Get(ctx, key)
	span.SetAttributes(attribute.Bool(AttrFound, value != nil), attribute.Int(AttrBytes, len(value)))
	end(span, err)
	return value, err
}

func (c *tracedCache) Put(ctx context.Context, key Key, value []byte) error {
	ctx, span := c.start(ctx, "put", key)
	span.SetAttributes(attribute.Int(AttrBytes, len(value)))
	err := c.next.Put(ctx, key, value)
	end(span, err)
	return err
}

func (c *tracedCache) PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error) {
	ctx, span := c.start(ctx, "put_if_absent", key)
	span.SetAttributes(attribute.Int(AttrBytes, len(value)))
	stored, err := c.next.PutIfAbsent(ctx, key, value)
	span.SetAttributes(attribute.Bool(AttrStored, stored))
	end(span, err)
	return stored, err
}

func (c *tracedCache) Remove(ctx context.Context, key Key) (bool, error) {
	ctx, span := c.start(ctx, "remove", key)
	found, err := c.next.Remove(ctx, key)
	span.SetAttributes(attribute.Bool(AttrFound, found))
	end(span, err)
	return found, err
}

// Sessions forwards to the wrapped cache when it implements Lister.
func (c *tracedCache) Sessions(ctx context.Context) ([]string, error) {
	lister, ok := c.next.(Lister)
	if !ok {
		return nil, ErrNotSupported
	}
	ctx, span := c.tracer.Start(ctx, SpanPrefix+"sessions", trace.WithSpanKind(trace.SpanKindClient))
	ids, err := lister.Sessions(ctx)
	span.SetAttributes(attribute.Int(AttrSessions, len(ids)))
	end(span, err)
	return ids, err
}

func (c *tracedCache) Close() error {
	return c.next.Close()
}
