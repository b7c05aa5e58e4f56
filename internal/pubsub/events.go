// Package pubsub provides a generic publish/subscribe event system used for
// log entries, metadata lifecycle events and command log events.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// CreatedEvent marks a new entry (log lines, first computation of an artifact).
	CreatedEvent EventType = "created"
	// UpdatedEvent marks a recomputation or a processed command.
	UpdatedEvent EventType = "updated"
	// DeletedEvent marks an eviction.
	DeletedEvent EventType = "deleted"
	// NotifiedEvent marks a change notification delivered to a listener.
	NotifiedEvent EventType = "notified"
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

// Listen calls fn for every event received on ch until ctx is cancelled or
// ch is closed. It blocks; run it in its own goroutine.
func Listen[T any](ctx context.Context, ch <-chan Event[T], fn func(Event[T])) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fn(event)
		}
	}
}
