package events

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionstore/internal/log"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
		return Event[T]{}
	}
}

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(SessionCreated, "s1")

	event := receive(t, ch)
	require.Equal(t, "s1", event.Payload)
	require.Equal(t, SessionCreated, event.Type)
	require.False(t, event.Timestamp.IsZero())
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx := context.Background()
	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)
	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(SessionExpired, "s2")

	for _, ch := range []<-chan Event[string]{ch1, ch2} {
		event := receive(t, ch)
		require.Equal(t, SessionExpired, event.Type)
		require.Equal(t, "s2", event.Payload)
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_NonBlocking(t *testing.T) {
	broker := NewBrokerWithBuffer[string](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		broker.Publish(SessionCreated, "a")
		broker.Publish(SessionCreated, "b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "publish blocked on a full subscriber")
	}

	require.Equal(t, "a", receive(t, ch).Payload)
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ch := broker.Subscribe(context.Background())

	broker.Close()
	broker.Close()

	_, ok := <-ch
	require.False(t, ok)

	late := broker.Subscribe(context.Background())
	_, ok = <-late
	require.False(t, ok)

	require.NotPanics(t, func() { broker.Publish(SessionDestroyed, "s") })
	require.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_SlowSubscriberMissesEvents(t *testing.T) {
	var buf bytes.Buffer
	log.Init(&buf, log.LevelDebug)
	t.Cleanup(func() { log.SetEnabled(false) })

	broker := NewBrokerWithBuffer[string](1)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(SessionCreated, "s1")
	broker.Publish(SessionExpired, "s1")

	event := receive(t, ch)
	require.Equal(t, SessionCreated, event.Type)
	select {
	case event := <-ch:
		require.Failf(t, "unexpected event", "%s %s", event.Type, event.Payload)
	default:
	}

	require.Contains(t, buf.String(), "dropped event for slow subscriber")
	require.Contains(t, buf.String(), "category=events")
	require.Contains(t, buf.String(), "type=expired")
}
