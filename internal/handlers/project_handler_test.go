package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/calls"
	"github.com/ternarybob/atelier/internal/services/projects"
)

// stubLLMService answers every chat instantly
type stubLLMService struct{}

func (s *stubLLMService) Chat(ctx context.Context, messages []models.ChatMessage) (*interfaces.ChatResult, error) {
	return &interfaces.ChatResult{Text: "ok", PromptTokens: 1, CompletionTokens: 1}, nil
}
func (s *stubLLMService) Model() string                         { return "stub-model" }
func (s *stubLLMService) Provider() string                      { return "stub" }
func (s *stubLLMService) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLLMService) Close() error                          { return nil }

func newTestHandler(t *testing.T) (*ProjectHandler, *projects.Registry, *calls.Store) {
	t.Helper()
	logger := common.GetLogger()
	registry := projects.NewRegistry(nil, logger)
	workspace, err := projects.NewWorkspace(t.TempDir(), logger)
	require.NoError(t, err)
	store := calls.NewStore(workspace.Root(), logger)
	scheduler := projects.NewScheduler(registry, store, workspace, &stubLLMService{}, projects.SchedulerOptions{
		MaxIdleRounds: 2,
		PausePoll:     10 * time.Millisecond,
	}, logger)
	return NewProjectHandler(registry, scheduler, store, logger), registry, store
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateProjectHandler(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	t.Run("Valid payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects",
			strings.NewReader(`{"name":"Tetris","idea":"build tetris","investment":3.0,"max_rounds":5}`))
		rec := httptest.NewRecorder()
		handler.CreateProjectHandler(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Tetris", body["name"])
		assert.Equal(t, string(models.ProjectStatusCreated), body["status"])
		assert.NotEmpty(t, body["id"])
		assert.Len(t, body["employees"], 5)
	})

	t.Run("Missing idea rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects",
			strings.NewReader(`{"name":"NoIdea"}`))
		rec := httptest.NewRecorder()
		handler.CreateProjectHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "error", body["status"])
	})

	t.Run("Invalid JSON rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{broken`))
		rec := httptest.NewRecorder()
		handler.CreateProjectHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Invalid mode rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects",
			strings.NewReader(`{"name":"X","idea":"y","mode":"chaos"}`))
		rec := httptest.NewRecorder()
		handler.CreateProjectHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Wrong method rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
		rec := httptest.NewRecorder()
		handler.CreateProjectHandler(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestListProjectsHandler(t *testing.T) {
	handler, registry, _ := newTestHandler(t)

	t.Run("Empty registry", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
		rec := httptest.NewRecorder()
		handler.ListProjectsHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(0), body["count"])
	})

	registry.Create(models.ProjectConfig{Name: "One", Idea: "a"})
	registry.Create(models.ProjectConfig{Name: "Two", Idea: "b"})

	t.Run("Two projects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
		rec := httptest.NewRecorder()
		handler.ListProjectsHandler(rec, req)

		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["count"])
		summaries := body["projects"].([]interface{})
		first := summaries[0].(map[string]interface{})
		assert.Equal(t, "One", first["name"])
	})
}

func TestGetProjectHandler(t *testing.T) {
	handler, registry, _ := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Tetris", Idea: "build"})

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID(), nil)
		rec := httptest.NewRecorder()
		handler.GetProjectHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, project.ID(), body["id"])
	})

	t.Run("Not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/missing1", nil)
		rec := httptest.NewRecorder()
		handler.GetProjectHandler(rec, req, "missing1")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "error", body["status"])
	})
}

func TestUpdateProjectHandler(t *testing.T) {
	handler, registry, _ := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Old", Idea: "build"})

	t.Run("Applies fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/projects/"+project.ID(),
			strings.NewReader(`{"name":"New","investment":7.5}`))
		rec := httptest.NewRecorder()
		handler.UpdateProjectHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "New", body["name"])
		assert.Equal(t, 7.5, body["investment"])
		assert.Equal(t, "build", body["idea"])
	})

	t.Run("Rejected while running", func(t *testing.T) {
		require.NoError(t, project.BeginRun())
		defer project.MarkStopped()

		req := httptest.NewRequest(http.MethodPut, "/api/projects/"+project.ID(),
			strings.NewReader(`{"name":"Blocked"}`))
		rec := httptest.NewRecorder()
		handler.UpdateProjectHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDeleteProjectHandler(t *testing.T) {
	handler, registry, _ := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Doomed", Idea: "x"})

	t.Run("Rejected while a run is registered", func(t *testing.T) {
		require.NoError(t, registry.RegisterHandle(project.ID(), func() {}))
		req := httptest.NewRequest(http.MethodDelete, "/api/projects/"+project.ID(), nil)
		rec := httptest.NewRecorder()
		handler.DeleteProjectHandler(rec, req, project.ID())
		assert.Equal(t, http.StatusConflict, rec.Code)
		registry.ReleaseHandle(project.ID())
	})

	t.Run("Succeeds when idle", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/projects/"+project.ID(), nil)
		rec := httptest.NewRecorder()
		handler.DeleteProjectHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, 0, registry.Count())
	})
}

func TestLifecycleHandlers(t *testing.T) {
	handler, registry, _ := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Run", Idea: "go", MaxRounds: 2})

	t.Run("Start", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID()+"/start", nil)
		rec := httptest.NewRecorder()
		handler.StartProjectHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "started", body["status"])
	})

	t.Run("Double start conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID()+"/start", nil)
		rec := httptest.NewRecorder()
		handler.StartProjectHandler(rec, req, project.ID())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	// Wait for the short run to finish
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && registry.IsRunning(project.ID()) {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, registry.IsRunning(project.ID()), "run should have finished")

	t.Run("Stop without a run conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID()+"/stop", nil)
		rec := httptest.NewRecorder()
		handler.StopProjectHandler(rec, req, project.ID())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Pause without a run conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID()+"/pause", nil)
		rec := httptest.NewRecorder()
		handler.PauseProjectHandler(rec, req, project.ID())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Unknown project", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/missing1/start", nil)
		rec := httptest.NewRecorder()
		handler.StartProjectHandler(rec, req, "missing1")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMessagesHandler(t *testing.T) {
	handler, registry, _ := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Msgs", Idea: "x"})
	project.AppendEvent(models.NewEvent(models.EventMessage, map[string]interface{}{"content": "hello"}))

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID()+"/messages", nil)
	rec := httptest.NewRecorder()
	handler.MessagesHandler(rec, req, project.ID())

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, project.ID(), body["project_id"])
}

func TestCallHandlers(t *testing.T) {
	handler, registry, store := newTestHandler(t)
	project := registry.Create(models.ProjectConfig{Name: "Calls", Idea: "x"})

	_, err := store.Save(project, &models.CallRecord{AgentName: "Alice", Model: "stub-model", Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	_, err = store.Save(project, &models.CallRecord{AgentName: "Bob", Model: "stub-model", Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID()+"/llm-calls", nil)
		rec := httptest.NewRecorder()
		handler.ListCallsHandler(rec, req, project.ID())

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["total_count"])
	})

	t.Run("Detail with navigation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID()+"/llm-calls/0001", nil)
		rec := httptest.NewRecorder()
		handler.GetCallHandler(rec, req, project.ID(), "0001")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Alice", body["agent_name"])
		assert.Equal(t, false, body["has_prev"])
		assert.Equal(t, true, body["has_next"])
		assert.Equal(t, "0002", body["next_id"])
	})

	t.Run("Unknown call", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID()+"/llm-calls/0042", nil)
		rec := httptest.NewRecorder()
		handler.GetCallHandler(rec, req, project.ID(), "0042")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
