package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Service is an in-process pub/sub hub for project events. Handlers
// are keyed by event type; a published event fans out to every handler
// registered for its type.
type Service struct {
	mu       sync.RWMutex
	handlers map[models.EventType][]interfaces.EventHandler
	logger   arbor.ILogger
	closed   bool
}

// NewService creates an event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		handlers: make(map[models.EventType][]interfaces.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType models.EventType, handler interfaces.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn().Str("event_type", string(eventType)).Msg("Subscribe called on closed event service")
		return
	}

	s.handlers[eventType] = append(s.handlers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("handler_count", len(s.handlers[eventType])).
		Msg("Event handler subscribed")
}

// Publish delivers an event to subscribers asynchronously. Handler
// errors are logged and never propagate to the publisher.
func (s *Service) Publish(ctx context.Context, event interfaces.ProjectEvent) error {
	handlers := s.handlersFor(event.Event.Type)
	if handlers == nil {
		return nil
	}

	for _, handler := range handlers {
		go s.invoke(ctx, handler, event)
	}
	return nil
}

// PublishSync delivers an event and waits for all handlers to finish.
// A single publisher calling PublishSync repeatedly observes its events
// delivered in order.
func (s *Service) PublishSync(ctx context.Context, event interfaces.ProjectEvent) error {
	handlers := s.handlersFor(event.Event.Type)
	if handlers == nil {
		return nil
	}

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			s.invoke(ctx, h, event)
		}(handler)
	}
	wg.Wait()
	return nil
}

// Close shuts down the service and drops all subscriptions
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.handlers = make(map[models.EventType][]interfaces.EventHandler)

	s.logger.Debug().Msg("Event service closed")
	return nil
}

func (s *Service) handlersFor(eventType models.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	registered := s.handlers[eventType]
	if len(registered) == 0 {
		return nil
	}
	handlers := make([]interfaces.EventHandler, len(registered))
	copy(handlers, registered)
	return handlers
}

func (s *Service) invoke(ctx context.Context, handler interfaces.EventHandler, event interfaces.ProjectEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event_type", string(event.Event.Type)).
				Str("project_id", event.ProjectID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Event handler panicked")
		}
	}()

	if err := handler(ctx, event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(event.Event.Type)).
			Str("project_id", event.ProjectID).
			Msg("Event handler returned error")
	}
}
