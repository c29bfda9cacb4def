package models

import (
	"errors"
	"testing"
)

func newTestProject() *Project {
	return NewProject("abc12345", ProjectConfig{
		Name:       "Test Project",
		Idea:       "build a CLI tetris game",
		Investment: 3.0,
		MaxRounds:  5,
	})
}

func TestNewProject(t *testing.T) {
	p := newTestProject()

	if p.Status() != ProjectStatusCreated {
		t.Errorf("Expected status created, got %s", p.Status())
	}
	if p.Mode() != ModeLeader {
		t.Errorf("Expected default mode leader, got %s", p.Mode())
	}
	if len(p.Employees()) != 5 {
		t.Errorf("Expected default roster of 5, got %d", len(p.Employees()))
	}
	if p.TotalCost() != 0 {
		t.Errorf("Expected zero cost, got %f", p.TotalCost())
	}

	p2 := NewProject("def67890", ProjectConfig{Name: "Flat", Idea: "x", Mode: ModeFlat})
	if p2.Mode() != ModeFlat {
		t.Errorf("Expected mode flat, got %s", p2.Mode())
	}
}

func TestProject_BeginRun(t *testing.T) {
	t.Run("From created", func(t *testing.T) {
		p := newTestProject()
		if err := p.BeginRun(); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		if p.Status() != ProjectStatusRunning {
			t.Errorf("Expected running, got %s", p.Status())
		}
	})

	t.Run("Rejected while running", func(t *testing.T) {
		p := newTestProject()
		if err := p.BeginRun(); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		err := p.BeginRun()
		if err == nil {
			t.Fatal("Expected error starting a running project")
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Rejected while paused", func(t *testing.T) {
		p := newTestProject()
		if err := p.BeginRun(); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		if err := p.Pause(); err != nil {
			t.Fatalf("Pause failed: %v", err)
		}
		if err := p.BeginRun(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Restart resets run state", func(t *testing.T) {
		p := newTestProject()
		if err := p.BeginRun(); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		p.SetTotalCost(1.23)
		p.AppendEvent(NewEvent(EventMessage, map[string]interface{}{"content": "hello"}))
		p.MarkFailed("provider timeout")

		if err := p.BeginRun(); err != nil {
			t.Fatalf("Restart after failure should succeed: %v", err)
		}
		if p.TotalCost() != 0 {
			t.Errorf("Expected cost reset, got %f", p.TotalCost())
		}
		if len(p.History()) != 0 {
			t.Errorf("Expected history reset, got %d events", len(p.History()))
		}
		if p.ErrorMessage() != "" {
			t.Errorf("Expected error message cleared, got %q", p.ErrorMessage())
		}
	})
}

func TestProject_PauseResume(t *testing.T) {
	p := newTestProject()

	if err := p.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition pausing a created project, got %v", err)
	}
	if err := p.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition resuming a created project, got %v", err)
	}

	if err := p.BeginRun(); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if p.Status() != ProjectStatusPaused {
		t.Errorf("Expected paused, got %s", p.Status())
	}
	if !p.IsPaused() {
		t.Error("Expected IsPaused true")
	}

	if err := p.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition pausing twice, got %v", err)
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if p.Status() != ProjectStatusRunning {
		t.Errorf("Expected running, got %s", p.Status())
	}
	if p.IsPaused() {
		t.Error("Expected IsPaused false after resume")
	}
}

func TestProject_TerminalStates(t *testing.T) {
	p := newTestProject()
	if err := p.BeginRun(); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	p.MarkCompleted(0.42)
	if p.Status() != ProjectStatusCompleted {
		t.Errorf("Expected completed, got %s", p.Status())
	}
	if p.TotalCost() != 0.42 {
		t.Errorf("Expected final cost 0.42, got %f", p.TotalCost())
	}

	p.MarkFailed("boom")
	if p.Status() != ProjectStatusFailed {
		t.Errorf("Expected failed, got %s", p.Status())
	}
	if p.ErrorMessage() != "boom" {
		t.Errorf("Expected error message recorded, got %q", p.ErrorMessage())
	}

	p.MarkStopped()
	if p.Status() != ProjectStatusStopped {
		t.Errorf("Expected stopped, got %s", p.Status())
	}
}

func TestProject_SetProjectDir(t *testing.T) {
	p := newTestProject()

	if !p.SetProjectDir("/workspace/tetris_game") {
		t.Fatal("First SetProjectDir should succeed")
	}
	if p.SetProjectDir("/workspace/other") {
		t.Error("Second SetProjectDir should be ignored")
	}
	if p.ProjectDir() != "/workspace/tetris_game" {
		t.Errorf("Expected first directory kept, got %s", p.ProjectDir())
	}
}

func TestProject_NextCallIndex(t *testing.T) {
	p := newTestProject()

	if idx := p.NextCallIndex(); idx != 1 {
		t.Errorf("Expected first index 1, got %d", idx)
	}
	if idx := p.NextCallIndex(); idx != 2 {
		t.Errorf("Expected second index 2, got %d", idx)
	}
	if p.CallCount() != 2 {
		t.Errorf("Expected call count 2, got %d", p.CallCount())
	}
}

func TestProject_SetEmployeeIdle(t *testing.T) {
	p := newTestProject()

	p.SetEmployeeIdle("Alice", false)
	for _, e := range p.Employees() {
		if e.Name == "Alice" && e.IsIdle {
			t.Error("Expected Alice not idle")
		}
	}

	// Unknown names are ignored
	p.SetEmployeeIdle("Nobody", true)
}

func TestProject_ApplyUpdate(t *testing.T) {
	p := newTestProject()

	name := "Renamed"
	investment := 9.5
	p.ApplyUpdate(ProjectUpdate{Name: &name, Investment: &investment})

	if p.Name() != "Renamed" {
		t.Errorf("Expected renamed project, got %s", p.Name())
	}
	if p.Investment() != 9.5 {
		t.Errorf("Expected investment 9.5, got %f", p.Investment())
	}
	if p.Idea() != "build a CLI tetris game" {
		t.Errorf("Nil fields must not change, got idea %q", p.Idea())
	}
	if p.MaxRounds() != 5 {
		t.Errorf("Nil fields must not change, got max rounds %d", p.MaxRounds())
	}
}

func TestProject_SnapshotAndSummary(t *testing.T) {
	p := newTestProject()
	p.SetProjectDir("/workspace/tetris_game")
	p.SetTotalCost(0.5)

	info := p.Snapshot()
	if info.ID != "abc12345" || info.Name != "Test Project" {
		t.Errorf("Snapshot identity mismatch: %+v", info)
	}
	if info.ProjectDir != "/workspace/tetris_game" {
		t.Errorf("Expected project dir in snapshot, got %q", info.ProjectDir)
	}
	if len(info.Employees) != 5 {
		t.Errorf("Expected roster in snapshot, got %d", len(info.Employees))
	}

	summary := p.Summary()
	if summary.ID != "abc12345" || summary.TotalCost != 0.5 {
		t.Errorf("Summary mismatch: %+v", summary)
	}
}
