// Package events publishes session lifecycle notifications to subscribers.
package events

import (
	"context"
	"time"
)

// EventType represents the kind of lifecycle transition.
type EventType string

const (
	// SessionCreated follows a successful Create.
	SessionCreated EventType = "created"
	// SessionDestroyed follows an explicit Delete of an existing session.
	SessionDestroyed EventType = "destroyed"
	// SessionExpired follows inactivity expiry or capacity eviction.
	SessionExpired EventType = "expired"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
