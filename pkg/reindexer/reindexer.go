// Package reindexer keeps the search index in step with lifecycle events, so that index
// updates lost by the API after a commit are eventually repaired.
package reindexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drafts/pkg/eventbus"
	"github.com/dukex/drafts/pkg/events"
)

// Reindexer is the part of the workflow service this package needs.
type Reindexer interface {
	Reindex(ctx context.Context, id string) error
}

type affected interface {
	AffectedIDs() []string
}

var handledEvents = []events.EventType{
	events.DraftCreatedEvent,
	events.DraftUpdatedEvent,
	events.DraftEditedEvent,
	events.DraftPublishedEvent,
	events.DraftNewVersionEvent,
	events.DraftDeletedEvent,
}

type Handler struct {
	reindexer Reindexer
	logger    *slog.Logger
}

func New(reindexer Reindexer, logger *slog.Logger) *Handler {
	return &Handler{
		reindexer: reindexer,
		logger:    logger.With("module", "reindexer"),
	}
}

// Register subscribes the handler to every lifecycle event.
func (h *Handler) Register(bus eventbus.EventSubscriber) error {
	for _, eventType := range handledEvents {
		if err := bus.Handle(eventType, h.HandleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s events: %w", eventType, err)
		}
	}

	h.logger.Info("Event subscriptions configured successfully", "events", len(handledEvents))

	return nil
}

// HandleEvent reindexes every UUID the event reports as affected.
func (h *Handler) HandleEvent(ctx context.Context, eventData any) error {
	event, ok := eventData.(affected)
	if !ok {
		return fmt.Errorf("invalid event type for reindexing: %T", eventData)
	}

	var errs []error

	for _, id := range event.AffectedIDs() {
		if err := h.reindexer.Reindex(ctx, id); err != nil {
			h.logger.ErrorContext(ctx, "Failed to reindex", "id", id, "error", err)

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
