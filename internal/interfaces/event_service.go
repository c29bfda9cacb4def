package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// ProjectEvent is the unit published through the event service: one
// project event tagged with the owning project id.
type ProjectEvent struct {
	ProjectID string       `json:"project_id"`
	Event     models.Event `json:"event"`
}

// EventHandler processes a published event. Handlers must tolerate
// concurrent invocation.
type EventHandler func(ctx context.Context, event ProjectEvent) error

// EventService provides publish/subscribe for project events
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType models.EventType, handler EventHandler)

	// Publish delivers an event to subscribers asynchronously
	Publish(ctx context.Context, event ProjectEvent) error

	// PublishSync delivers an event and waits for all handlers to finish,
	// preserving inter-event ordering for a single publisher
	PublishSync(ctx context.Context, event ProjectEvent) error

	// Close shuts down the service and drops all subscriptions
	Close() error
}

// EventPublisher is the narrow publishing surface handed to components
// that emit project events but never subscribe.
type EventPublisher interface {
	PublishEvent(projectID string, event models.Event)
}
