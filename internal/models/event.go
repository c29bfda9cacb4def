package models

import "time"

// EventType identifies the kind of project event flowing through the
// event service and out to websocket observers.
type EventType string

const (
	EventProjectStatus    EventType = "project_status"
	EventEmployeesUpdated EventType = "employees_updated"
	EventMessage          EventType = "message"
	EventThinking         EventType = "thinking"
	EventAgentStatus      EventType = "agent_status"
	EventLLMCall          EventType = "llm_call"
	EventToolUsage        EventType = "tool_usage"
	EventCostUpdate       EventType = "cost_update"

	// EventConnected is sent once per websocket connection as the
	// initial snapshot. It is never appended to project history.
	EventConnected EventType = "connected"
)

// Event is a single timestamped project event. Payload keys depend on
// the event type; consumers treat unknown keys as opaque.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
