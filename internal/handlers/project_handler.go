package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/calls"
	"github.com/ternarybob/atelier/internal/services/projects"
)

// ProjectHandler serves the project CRUD and lifecycle endpoints
type ProjectHandler struct {
	registry  *projects.Registry
	scheduler *projects.Scheduler
	store     *calls.Store
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewProjectHandler creates a project handler
func NewProjectHandler(registry *projects.Registry, scheduler *projects.Scheduler, store *calls.Store, logger arbor.ILogger) *ProjectHandler {
	return &ProjectHandler{
		registry:  registry,
		scheduler: scheduler,
		store:     store,
		validate:  validator.New(),
		logger:    logger,
	}
}

// ListProjectsHandler handles GET /api/projects
func (h *ProjectHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records := h.registry.List()
	summaries := make([]models.ProjectSummary, 0, len(records))
	for _, project := range records {
		summaries = append(summaries, project.Summary())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"projects": summaries,
		"count":    len(summaries),
	})
}

// CreateProjectHandler handles POST /api/projects
func (h *ProjectHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var config models.ProjectConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(config); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	project := h.registry.Create(config)
	WriteJSON(w, http.StatusCreated, project.Snapshot())
}

// GetProjectHandler handles GET /api/projects/{id}
func (h *ProjectHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	project, err := h.registry.Get(projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project.Snapshot())
}

// UpdateProjectHandler handles PUT /api/projects/{id}
func (h *ProjectHandler) UpdateProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var update models.ProjectUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(update); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	project, err := h.registry.Update(projectID, update)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project.Snapshot())
}

// DeleteProjectHandler handles DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	if err := h.registry.Delete(projectID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, "Project deleted")
}

// StartProjectHandler handles POST /api/projects/{id}/start
func (h *ProjectHandler) StartProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.scheduler.Start(projectID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteStarted(w, "Project run started")
}

// StopProjectHandler handles POST /api/projects/{id}/stop
func (h *ProjectHandler) StopProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.scheduler.Stop(projectID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, "Project run stopped")
}

// PauseProjectHandler handles POST /api/projects/{id}/pause
func (h *ProjectHandler) PauseProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.scheduler.Pause(projectID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, "Project run paused")
}

// ResumeProjectHandler handles POST /api/projects/{id}/resume
func (h *ProjectHandler) ResumeProjectHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.scheduler.Resume(projectID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, "Project run resumed")
}

// MessagesHandler handles GET /api/projects/{id}/messages
func (h *ProjectHandler) MessagesHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	project, err := h.registry.Get(projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	history := project.History()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"project_id": projectID,
		"messages":   history,
		"count":      len(history),
	})
}

// ListCallsHandler handles GET /api/projects/{id}/llm-calls
func (h *ProjectHandler) ListCallsHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	project, err := h.registry.Get(projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	summaries, err := h.store.List(project)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", projectID).Msg("Failed to list call records")
		WriteError(w, http.StatusInternalServerError, "Failed to list call records")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"project_id":  projectID,
		"calls":       summaries,
		"total_count": len(summaries),
	})
}

// GetCallHandler handles GET /api/projects/{id}/llm-calls/{callID}
func (h *ProjectHandler) GetCallHandler(w http.ResponseWriter, r *http.Request, projectID, callID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	project, err := h.registry.Get(projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	detail, err := h.store.Detail(project, callID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// writeServiceError maps service errors onto HTTP status codes
func (h *ProjectHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound):
		WriteError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, calls.ErrCallNotFound):
		WriteError(w, http.StatusNotFound, "Call record not found")
	case errors.Is(err, projects.ErrProjectRunning),
		errors.Is(err, projects.ErrProjectNotRunning),
		errors.Is(err, models.ErrInvalidTransition):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
