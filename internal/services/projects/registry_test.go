package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/events"
)

func newTestRegistry() *Registry {
	return NewRegistry(nil, common.GetLogger())
}

func testConfig() models.ProjectConfig {
	return models.ProjectConfig{Name: "Test", Idea: "build something", Investment: 3.0, MaxRounds: 5}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	registry := newTestRegistry()

	project := registry.Create(testConfig())
	if project.ID() == "" {
		t.Fatal("Expected a project id")
	}
	if project.Status() != models.ProjectStatusCreated {
		t.Errorf("Expected created status, got %s", project.Status())
	}

	got, err := registry.Get(project.ID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != project {
		t.Error("Get must return the registered record")
	}

	if _, err := registry.Get("missing1"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Expected ErrProjectNotFound, got %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	registry := newTestRegistry()

	first := registry.Create(testConfig())
	second := registry.Create(testConfig())

	list := registry.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 projects, got %d", len(list))
	}
	if list[0].ID() != first.ID() || list[1].ID() != second.ID() {
		t.Error("Expected projects ordered by creation time")
	}
	if registry.Count() != 2 {
		t.Errorf("Expected count 2, got %d", registry.Count())
	}
}

func TestRegistry_Update(t *testing.T) {
	registry := newTestRegistry()
	project := registry.Create(testConfig())

	name := "Renamed"
	updated, err := registry.Update(project.ID(), models.ProjectUpdate{Name: &name})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name() != "Renamed" {
		t.Errorf("Expected renamed project, got %s", updated.Name())
	}

	t.Run("Rejected while running", func(t *testing.T) {
		if err := project.BeginRun(); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		_, err := registry.Update(project.ID(), models.ProjectUpdate{Name: &name})
		if !errors.Is(err, ErrProjectRunning) {
			t.Errorf("Expected ErrProjectRunning, got %v", err)
		}
	})

	t.Run("Unknown project", func(t *testing.T) {
		_, err := registry.Update("missing1", models.ProjectUpdate{Name: &name})
		if !errors.Is(err, ErrProjectNotFound) {
			t.Errorf("Expected ErrProjectNotFound, got %v", err)
		}
	})
}

func TestRegistry_Delete(t *testing.T) {
	registry := newTestRegistry()
	project := registry.Create(testConfig())

	t.Run("Rejected while a run handle exists", func(t *testing.T) {
		if err := registry.RegisterHandle(project.ID(), func() {}); err != nil {
			t.Fatalf("RegisterHandle failed: %v", err)
		}
		if err := registry.Delete(project.ID()); !errors.Is(err, ErrProjectRunning) {
			t.Errorf("Expected ErrProjectRunning, got %v", err)
		}
		registry.ReleaseHandle(project.ID())
	})

	t.Run("Succeeds when idle", func(t *testing.T) {
		if err := registry.Delete(project.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := registry.Get(project.ID()); !errors.Is(err, ErrProjectNotFound) {
			t.Error("Expected project removed")
		}
	})

	t.Run("Unknown project", func(t *testing.T) {
		if err := registry.Delete("missing1"); !errors.Is(err, ErrProjectNotFound) {
			t.Errorf("Expected ErrProjectNotFound, got %v", err)
		}
	})
}

func TestRegistry_Handles(t *testing.T) {
	registry := newTestRegistry()
	project := registry.Create(testConfig())

	cancelled := false
	if err := registry.RegisterHandle(project.ID(), func() { cancelled = true }); err != nil {
		t.Fatalf("RegisterHandle failed: %v", err)
	}
	if !registry.IsRunning(project.ID()) {
		t.Error("Expected IsRunning true")
	}
	if registry.RunningCount() != 1 {
		t.Errorf("Expected 1 running, got %d", registry.RunningCount())
	}

	t.Run("Second handle rejected", func(t *testing.T) {
		if err := registry.RegisterHandle(project.ID(), func() {}); !errors.Is(err, ErrProjectRunning) {
			t.Errorf("Expected ErrProjectRunning, got %v", err)
		}
	})

	t.Run("CancelHandle cancels and drops", func(t *testing.T) {
		if !registry.CancelHandle(project.ID()) {
			t.Fatal("Expected CancelHandle to find the handle")
		}
		if !cancelled {
			t.Error("Expected cancel function invoked")
		}
		if registry.IsRunning(project.ID()) {
			t.Error("Expected handle dropped")
		}
		if registry.CancelHandle(project.ID()) {
			t.Error("Second CancelHandle must return false")
		}
	})

	t.Run("ReleaseHandle drops without cancelling", func(t *testing.T) {
		cancelled = false
		if err := registry.RegisterHandle(project.ID(), func() { cancelled = true }); err != nil {
			t.Fatalf("RegisterHandle failed: %v", err)
		}
		registry.ReleaseHandle(project.ID())
		if cancelled {
			t.Error("ReleaseHandle must not cancel")
		}
		if registry.IsRunning(project.ID()) {
			t.Error("Expected handle dropped")
		}
	})
}

func TestRegistry_PublishEvent(t *testing.T) {
	registry := newTestRegistry()
	project := registry.Create(testConfig())

	t.Run("Appends to history", func(t *testing.T) {
		registry.PublishEvent(project.ID(), models.NewEvent(models.EventMessage, map[string]interface{}{
			"content": "hello",
		}))
		history := project.History()
		if len(history) != 1 || history[0].Type != models.EventMessage {
			t.Errorf("Expected one message event in history, got %+v", history)
		}
	})

	t.Run("Agent status side effect", func(t *testing.T) {
		registry.PublishEvent(project.ID(), models.NewEvent(models.EventAgentStatus, map[string]interface{}{
			"agent_name": "Alice",
			"status":     "working",
		}))
		for _, e := range project.Employees() {
			if e.Name == "Alice" && e.IsIdle {
				t.Error("Expected Alice marked busy")
			}
		}

		registry.PublishEvent(project.ID(), models.NewEvent(models.EventAgentStatus, map[string]interface{}{
			"agent_name": "Alice",
			"status":     "idle",
		}))
		found := false
		for _, e := range project.Employees() {
			if e.Name == "Alice" {
				found = e.IsIdle
			}
		}
		if !found {
			t.Error("Expected Alice marked idle")
		}
	})

	t.Run("Cost update side effect", func(t *testing.T) {
		registry.PublishEvent(project.ID(), models.NewEvent(models.EventCostUpdate, map[string]interface{}{
			"total_cost": 1.25,
		}))
		if project.TotalCost() != 1.25 {
			t.Errorf("Expected total cost 1.25, got %f", project.TotalCost())
		}
	})

	t.Run("Unknown project dropped", func(t *testing.T) {
		registry.PublishEvent("missing1", models.NewEvent(models.EventMessage, nil))
	})
}

func TestRegistry_PublishEventFanOut(t *testing.T) {
	eventService := events.NewService(common.GetLogger())
	defer eventService.Close()

	registry := NewRegistry(eventService, common.GetLogger())
	project := registry.Create(testConfig())

	received := make([]interfaces.ProjectEvent, 0, 2)
	eventService.Subscribe(models.EventMessage, func(ctx context.Context, event interfaces.ProjectEvent) error {
		received = append(received, event)
		return nil
	})

	registry.PublishEvent(project.ID(), models.NewEvent(models.EventMessage, map[string]interface{}{"content": "a"}))
	registry.PublishEvent(project.ID(), models.NewEvent(models.EventMessage, map[string]interface{}{"content": "b"}))

	// PublishEvent fans out synchronously, so delivery order is fixed
	if len(received) != 2 {
		t.Fatalf("Expected 2 delivered events, got %d", len(received))
	}
	if received[0].Event.Payload["content"] != "a" || received[1].Event.Payload["content"] != "b" {
		t.Error("Expected events delivered in publish order")
	}
	if received[0].ProjectID != project.ID() {
		t.Errorf("Expected project id tag, got %s", received[0].ProjectID)
	}
}
