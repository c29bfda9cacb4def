package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/projects"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// broadcastEventTypes is every event type observers may receive live
var broadcastEventTypes = []models.EventType{
	models.EventProjectStatus,
	models.EventEmployeesUpdated,
	models.EventMessage,
	models.EventThinking,
	models.EventAgentStatus,
	models.EventLLMCall,
	models.EventToolUsage,
	models.EventCostUpdate,
}

// WebSocketHandler maintains per-project observer sets and relays
// project events to them. Observers that fail a write are dropped
// silently; broadcasting never blocks a run.
type WebSocketHandler struct {
	logger        arbor.ILogger
	registry      *projects.Registry
	mu            sync.RWMutex
	clients       map[string]map[*websocket.Conn]bool
	clientMutex   map[*websocket.Conn]*sync.Mutex
	allowedEvents map[string]bool                  // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[models.EventType]*rate.Limiter // Rate limiters for high-frequency events
}

// NewWebSocketHandler creates the handler and subscribes it to every
// broadcast event type on the event service.
func NewWebSocketHandler(registry *projects.Registry, eventService interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		registry:    registry,
		clients:     make(map[string]map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
		throttlers:  make(map[models.EventType]*rate.Limiter),
	}

	// Whitelist pattern: empty list allows all events
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Nil throttler = no throttling (disabled)
	if config != nil {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - throttler disabled")
				continue
			}
			h.throttlers[models.EventType(eventType)] = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler initialized")
		}
	}

	if eventService != nil {
		for _, eventType := range broadcastEventTypes {
			eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.ProjectEvent) error {
				h.broadcast(event.ProjectID, event.Event)
				return nil
			})
		}
	}

	return h
}

// HandleWebSocket handles GET /ws/{projectID}. Unknown projects are
// refused before the upgrade. On connect the client receives a
// snapshot, then the full event history in order, then live events.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if projectID == "" || strings.Contains(projectID, "/") {
		http.Error(w, "Project id required", http.StatusBadRequest)
		return
	}

	project, err := h.registry.Get(projectID)
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	if h.clients[projectID] == nil {
		h.clients[projectID] = make(map[*websocket.Conn]bool)
	}
	h.clients[projectID][conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	total := len(h.clients[projectID])
	h.mu.Unlock()

	h.logger.Debug().
		Str("project_id", projectID).
		Msgf("WebSocket client connected (project observers: %d)", total)

	h.sendSnapshot(conn, project)
	h.sendHistory(conn, project)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		if observers, ok := h.clients[projectID]; ok {
			delete(observers, conn)
			if len(observers) == 0 {
				delete(h.clients, projectID)
			}
		}
		delete(h.clientMutex, conn)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().
			Str("project_id", projectID).
			Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendSnapshot sends the connected frame with current status and roster
func (h *WebSocketHandler) sendSnapshot(conn *websocket.Conn, project *models.Project) {
	snapshot := project.Snapshot()
	event := models.NewEvent(models.EventConnected, map[string]interface{}{
		"project_id": snapshot.ID,
		"status":     string(snapshot.Status),
		"employees":  snapshot.Employees,
		"total_cost": snapshot.TotalCost,
	})
	h.sendToConn(conn, event)
}

// sendHistory replays the project's event history in order
func (h *WebSocketHandler) sendHistory(conn *websocket.Conn, project *models.Project) {
	for _, event := range project.History() {
		if !h.sendToConn(conn, event) {
			return
		}
	}
}

// broadcast relays one live event to the project's observers
func (h *WebSocketHandler) broadcast(projectID string, event models.Event) {
	// Check whitelist (empty allowedEvents = allow all)
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return
	}

	// Throttle high-frequency events to prevent WebSocket flooding
	if throttler, ok := h.throttlers[event.Type]; ok && !throttler.Allow() {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[projectID]))
	mutexes := make([]*sync.Mutex, 0, len(h.clients[projectID]))
	for conn := range h.clients[projectID] {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			// Dead observers are dropped by their read loop; just skip
			h.logger.Debug().Err(err).Str("project_id", projectID).Msg("Failed to send event to observer")
		}
	}
}

// sendToConn writes one event to a single connection. Returns false
// when the write failed.
func (h *WebSocketHandler) sendToConn(conn *websocket.Conn, event models.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event")
		return false
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return false
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("Failed to send event to client")
		return false
	}
	return true
}

// ObserverCount returns how many observers are attached to a project
func (h *WebSocketHandler) ObserverCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}
