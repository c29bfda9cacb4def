package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/services/projects"
)

// APIHandler serves the service-level endpoints
type APIHandler struct {
	registry *projects.Registry
	logger   arbor.ILogger
}

// NewAPIHandler creates an API handler
func NewAPIHandler(registry *projects.Registry, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		registry: registry,
		logger:   logger,
	}
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  common.GetVersion(),
		"projects": h.registry.Count(),
		"running":  h.registry.RunningCount(),
	})
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// NotFoundHandler handles unmatched /api/ routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Endpoint not found: "+r.URL.Path)
}
