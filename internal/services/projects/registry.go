package projects

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

var (
	// ErrProjectNotFound indicates the project id is not registered
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectRunning indicates the operation is rejected while a run is active
	ErrProjectRunning = errors.New("project is running")
	// ErrProjectNotRunning indicates no run is active for the project
	ErrProjectNotRunning = errors.New("project is not running")
)

// Registry is the in-memory store of project records plus the run
// handles of active runs. It is also the event spine: PublishEvent
// applies event side effects to the project record, appends to its
// history and fans out through the event service.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	handles  map[string]context.CancelFunc
	events   interfaces.EventService
	logger   arbor.ILogger
}

// NewRegistry creates an empty registry publishing through the event
// service. A nil event service disables fan-out (used in tests).
func NewRegistry(events interfaces.EventService, logger arbor.ILogger) *Registry {
	return &Registry{
		projects: make(map[string]*models.Project),
		handles:  make(map[string]context.CancelFunc),
		events:   events,
		logger:   logger,
	}
}

// Create registers a new project in the created state
func (r *Registry) Create(config models.ProjectConfig) *models.Project {
	project := models.NewProject(common.NewProjectID(), config)

	r.mu.Lock()
	r.projects[project.ID()] = project
	r.mu.Unlock()

	r.logger.Info().
		Str("project_id", project.ID()).
		Str("name", config.Name).
		Msg("Project created")

	return project
}

// Get returns the project by id
func (r *Registry) Get(id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	project, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// List returns all projects ordered by creation time
func (r *Registry) List() []*models.Project {
	r.mu.RLock()
	projects := make([]*models.Project, 0, len(r.projects))
	for _, project := range r.projects {
		projects = append(projects, project)
	}
	r.mu.RUnlock()

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt().Before(projects[j].CreatedAt())
	})
	return projects
}

// Update applies a config update. Rejected while the project is running.
func (r *Registry) Update(id string, update models.ProjectUpdate) (*models.Project, error) {
	project, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if project.Status() == models.ProjectStatusRunning {
		return nil, ErrProjectRunning
	}
	project.ApplyUpdate(update)

	r.logger.Info().
		Str("project_id", id).
		Msg("Project updated")

	return project, nil
}

// Delete removes a project. Rejected while a run handle is registered,
// which covers both running and paused runs.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[id]; !ok {
		return ErrProjectNotFound
	}
	if _, active := r.handles[id]; active {
		return ErrProjectRunning
	}
	delete(r.projects, id)

	r.logger.Info().
		Str("project_id", id).
		Msg("Project deleted")

	return nil
}

// RegisterHandle stores the cancel function of a starting run. Fails
// when a run is already registered for the project.
func (r *Registry) RegisterHandle(id string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, active := r.handles[id]; active {
		return ErrProjectRunning
	}
	r.handles[id] = cancel
	return nil
}

// ReleaseHandle drops the run handle without cancelling. No-op when
// absent.
func (r *Registry) ReleaseHandle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// CancelHandle cancels and drops the run handle. Returns false when no
// run is registered.
func (r *Registry) CancelHandle(id string) bool {
	r.mu.Lock()
	cancel, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// IsRunning reports whether a run handle is registered for the project
func (r *Registry) IsRunning(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, active := r.handles[id]
	return active
}

// RunningCount returns how many runs are active
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Count returns how many projects are registered
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

// PublishEvent applies the event's side effects to the project record,
// appends it to the project history and fans it out to subscribers.
// Events for unknown projects are dropped.
func (r *Registry) PublishEvent(projectID string, event models.Event) {
	project, err := r.Get(projectID)
	if err != nil {
		r.logger.Warn().
			Str("project_id", projectID).
			Str("event_type", string(event.Type)).
			Msg("Dropping event for unknown project")
		return
	}

	switch event.Type {
	case models.EventAgentStatus:
		name := payloadString(event.Payload, "agent_name")
		status := payloadString(event.Payload, "status")
		if name != "" {
			project.SetEmployeeIdle(name, status == "idle")
		}
	case models.EventCostUpdate:
		if totalCost, ok := payloadFloat(event.Payload, "total_cost"); ok {
			project.SetTotalCost(totalCost)
		}
	}

	project.AppendEvent(event)

	if r.events != nil {
		// Synchronous fan-out keeps per-project event ordering for
		// websocket observers
		_ = r.events.PublishSync(context.Background(), interfaces.ProjectEvent{
			ProjectID: projectID,
			Event:     event,
		})
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
