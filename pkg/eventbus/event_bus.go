// Package eventbus carries lifecycle events between the API and the background workers.
package eventbus

import (
	"context"

	"github.com/dukex/drafts/pkg/events"
)

// Event is a draft or record lifecycle event.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event on the lifecycle topic. Events sharing a key, the parent ID of
	// a lineage, are delivered in publish order.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.DraftPublished.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
