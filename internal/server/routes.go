package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/atelier/internal/handlers"
)

// setupRoutes builds the HTTP route table
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Project collection
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.app.ProjectHandler.ListProjectsHandler(w, r)
		case http.MethodPost:
			s.app.ProjectHandler.CreateProjectHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Project sub-routes
	mux.HandleFunc("/api/projects/", s.handleProjectRoutes)

	// Service endpoints
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	// Per-project event stream
	mux.HandleFunc("/ws/", s.app.WSHandler.HandleWebSocket)

	return mux
}

// handleProjectRoutes dispatches /api/projects/{id}[/...] requests
func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		handlers.WriteError(w, http.StatusBadRequest, "Project id required")
		return
	}
	projectID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.app.ProjectHandler.GetProjectHandler(w, r, projectID)
		case http.MethodPut:
			s.app.ProjectHandler.UpdateProjectHandler(w, r, projectID)
		case http.MethodDelete:
			s.app.ProjectHandler.DeleteProjectHandler(w, r, projectID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case len(parts) == 2:
		switch parts[1] {
		case "start":
			s.app.ProjectHandler.StartProjectHandler(w, r, projectID)
		case "stop":
			s.app.ProjectHandler.StopProjectHandler(w, r, projectID)
		case "pause":
			s.app.ProjectHandler.PauseProjectHandler(w, r, projectID)
		case "resume":
			s.app.ProjectHandler.ResumeProjectHandler(w, r, projectID)
		case "messages":
			s.app.ProjectHandler.MessagesHandler(w, r, projectID)
		case "llm-calls":
			s.app.ProjectHandler.ListCallsHandler(w, r, projectID)
		default:
			handlers.WriteError(w, http.StatusNotFound, "Endpoint not found: "+r.URL.Path)
		}

	case len(parts) == 3 && parts[1] == "llm-calls":
		s.app.ProjectHandler.GetCallHandler(w, r, projectID, parts[2])

	default:
		handlers.WriteError(w, http.StatusNotFound, "Endpoint not found: "+r.URL.Path)
	}
}
