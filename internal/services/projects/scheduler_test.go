package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/calls"
)

// fakeLLMService is a scripted chat provider for run-loop tests
type fakeLLMService struct {
	response string
	tokens   interfaces.ChatResult
	err      error
	block    bool // wait for ctx cancellation instead of answering
}

func (f *fakeLLMService) Chat(ctx context.Context, messages []models.ChatMessage) (*interfaces.ChatResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	result := f.tokens
	result.Text = f.response
	return &result, nil
}

func (f *fakeLLMService) Model() string                      { return "fake-model" }
func (f *fakeLLMService) Provider() string                   { return "fake" }
func (f *fakeLLMService) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLLMService) Close() error                       { return nil }

func newTestScheduler(t *testing.T, service interfaces.LLMService, opts SchedulerOptions) (*Scheduler, *Registry) {
	t.Helper()
	ws := newTestWorkspace(t)
	store := calls.NewStore(ws.Root(), common.GetLogger())
	registry := NewRegistry(nil, common.GetLogger())
	if opts.PausePoll == 0 {
		opts.PausePoll = 10 * time.Millisecond
	}
	return NewScheduler(registry, store, ws, service, opts, common.GetLogger()), registry
}

func waitForTerminal(t *testing.T, project *models.Project) models.ProjectStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		switch status := project.Status(); status {
		case models.ProjectStatusCompleted, models.ProjectStatusFailed, models.ProjectStatusStopped:
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Run did not finish, status %s", project.Status())
	return ""
}

func waitForHandleRelease(t *testing.T, registry *Registry, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !registry.IsRunning(id) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Run handle was not released")
}

func TestScheduler_RunCompletesWhenTeamIdles(t *testing.T) {
	service := &fakeLLMService{
		response: "PRD drafted",
		tokens:   interfaces.ChatResult{PromptTokens: 10, CompletionTokens: 20},
	}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{
		MaxIdleRounds:   2,
		PromptPrice:     0.003,
		CompletionPrice: 0.015,
	})

	project := registry.Create(models.ProjectConfig{
		Name: "Tetris", Idea: "build tetris", Investment: 3.0, MaxRounds: 20,
	})

	require.NoError(t, scheduler.Start(project.ID()))

	status := waitForTerminal(t, project)
	assert.Equal(t, models.ProjectStatusCompleted, status)
	waitForHandleRelease(t, registry, project.ID())

	assert.Greater(t, project.TotalCost(), 0.0, "cost accrues from the leader turn")

	history := project.History()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, models.EventProjectStatus, last.Type)
	assert.Equal(t, string(models.ProjectStatusCompleted), last.Payload["status"])

	var sawLLMCall, sawThinking, sawMessage bool
	for _, e := range history {
		switch e.Type {
		case models.EventLLMCall:
			sawLLMCall = true
		case models.EventThinking:
			sawThinking = true
		case models.EventMessage:
			sawMessage = true
		}
	}
	assert.True(t, sawLLMCall, "llm_call event expected in history")
	assert.True(t, sawThinking, "thinking event expected in history")
	assert.True(t, sawMessage, "message event expected in history")
}

func TestScheduler_MaxRoundsBackstop(t *testing.T) {
	service := &fakeLLMService{response: "ok"}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{
		MaxIdleRounds: 100, // idling never ends the run here
	})

	project := registry.Create(models.ProjectConfig{
		Name: "Backstop", Idea: "loop forever", Investment: 3.0, MaxRounds: 3,
	})

	require.NoError(t, scheduler.Start(project.ID()))
	status := waitForTerminal(t, project)
	assert.Equal(t, models.ProjectStatusCompleted, status)
}

func TestScheduler_BudgetGate(t *testing.T) {
	service := &fakeLLMService{
		response: "expensive answer",
		tokens:   interfaces.ChatResult{PromptTokens: 1000, CompletionTokens: 1000},
	}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{
		MaxIdleRounds:   100,
		PromptPrice:     1.0, // one call costs 2 dollars
		CompletionPrice: 1.0,
	})

	project := registry.Create(models.ProjectConfig{
		Name: "Budget", Idea: "spend it all", Investment: 0.5, MaxRounds: 20,
	})

	require.NoError(t, scheduler.Start(project.ID()))
	status := waitForTerminal(t, project)
	require.Equal(t, models.ProjectStatusCompleted, status)

	history := project.History()
	last := history[len(history)-1]
	assert.Contains(t, last.Payload["message"], "budget exhausted")

	var sawCostUpdate bool
	for _, e := range history {
		if e.Type == models.EventCostUpdate {
			sawCostUpdate = true
		}
	}
	assert.True(t, sawCostUpdate, "cost_update event expected in history")
}

func TestScheduler_TurnErrorFailsRun(t *testing.T) {
	service := &fakeLLMService{err: errors.New("provider down")}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{MaxIdleRounds: 3})

	project := registry.Create(models.ProjectConfig{
		Name: "Failing", Idea: "doomed", Investment: 3.0, MaxRounds: 5,
	})

	require.NoError(t, scheduler.Start(project.ID()))
	status := waitForTerminal(t, project)
	assert.Equal(t, models.ProjectStatusFailed, status)
	assert.Contains(t, project.ErrorMessage(), "provider down")
	waitForHandleRelease(t, registry, project.ID())
}

func TestScheduler_StopMarksStopped(t *testing.T) {
	service := &fakeLLMService{block: true}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{MaxIdleRounds: 3})

	project := registry.Create(models.ProjectConfig{
		Name: "Stoppable", Idea: "wait forever", Investment: 3.0, MaxRounds: 5,
	})

	require.NoError(t, scheduler.Start(project.ID()))

	// Let the leader turn enter the blocking model call
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, scheduler.Stop(project.ID()))

	status := waitForTerminal(t, project)
	assert.Equal(t, models.ProjectStatusStopped, status)
	assert.Empty(t, project.ErrorMessage(), "a stop is not a failure")
	waitForHandleRelease(t, registry, project.ID())
}

func TestScheduler_TurnTimeout(t *testing.T) {
	service := &fakeLLMService{block: true}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{
		MaxIdleRounds: 3,
		TurnTimeout:   30 * time.Millisecond,
	})

	project := registry.Create(models.ProjectConfig{
		Name: "Slow", Idea: "never answers", Investment: 3.0, MaxRounds: 5,
	})

	require.NoError(t, scheduler.Start(project.ID()))
	status := waitForTerminal(t, project)
	assert.Equal(t, models.ProjectStatusFailed, status)
	assert.Contains(t, project.ErrorMessage(), "turn failed")
}

func TestScheduler_StartGuards(t *testing.T) {
	service := &fakeLLMService{block: true}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{MaxIdleRounds: 3})

	t.Run("Unknown project", func(t *testing.T) {
		err := scheduler.Start("missing1")
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})

	t.Run("Double start rejected", func(t *testing.T) {
		project := registry.Create(models.ProjectConfig{
			Name: "Guarded", Idea: "x", Investment: 3.0, MaxRounds: 5,
		})
		require.NoError(t, scheduler.Start(project.ID()))
		err := scheduler.Start(project.ID())
		assert.ErrorIs(t, err, ErrProjectRunning)

		require.NoError(t, scheduler.Stop(project.ID()))
		waitForTerminal(t, project)
	})

	t.Run("Stop without a run", func(t *testing.T) {
		project := registry.Create(models.ProjectConfig{
			Name: "Idle", Idea: "x", Investment: 3.0, MaxRounds: 5,
		})
		err := scheduler.Stop(project.ID())
		assert.ErrorIs(t, err, ErrProjectNotRunning)
	})
}

func TestScheduler_PauseResume(t *testing.T) {
	service := &fakeLLMService{response: "ok"}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{MaxIdleRounds: 3})

	project := registry.Create(models.ProjectConfig{
		Name: "Pausable", Idea: "x", Investment: 3.0, MaxRounds: 5,
	})

	t.Run("Pause requires a running project", func(t *testing.T) {
		err := scheduler.Pause(project.ID())
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	require.NoError(t, project.BeginRun())
	require.NoError(t, scheduler.Pause(project.ID()))
	assert.Equal(t, models.ProjectStatusPaused, project.Status())

	t.Run("Resume requires a paused project", func(t *testing.T) {
		require.NoError(t, scheduler.Resume(project.ID()))
		assert.Equal(t, models.ProjectStatusRunning, project.Status())
		err := scheduler.Resume(project.ID())
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("Status events published", func(t *testing.T) {
		var sawPaused, sawResumed bool
		for _, e := range project.History() {
			if e.Type != models.EventProjectStatus {
				continue
			}
			switch e.Payload["status"] {
			case string(models.ProjectStatusPaused):
				sawPaused = true
			case string(models.ProjectStatusRunning):
				sawResumed = true
			}
		}
		assert.True(t, sawPaused)
		assert.True(t, sawResumed)
	})
}

func TestScheduler_WaitWhilePaused(t *testing.T) {
	service := &fakeLLMService{response: "ok"}
	scheduler, registry := newTestScheduler(t, service, SchedulerOptions{
		MaxIdleRounds: 3,
		PausePoll:     5 * time.Millisecond,
	})

	project := registry.Create(models.ProjectConfig{
		Name: "Waiter", Idea: "x", Investment: 3.0, MaxRounds: 5,
	})
	require.NoError(t, project.BeginRun())
	require.NoError(t, project.Pause())

	t.Run("Returns when resumed", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = project.Resume()
		}()
		stopped := scheduler.waitWhilePaused(context.Background(), project)
		assert.False(t, stopped)
	})

	t.Run("Returns true on cancellation", func(t *testing.T) {
		require.NoError(t, project.Pause())
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		stopped := scheduler.waitWhilePaused(ctx, project)
		assert.True(t, stopped)
	})
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple", "Tetris", "tetris"},
		{"Spaces", "Snake Game", "snake_game"},
		{"Punctuation dropped", "My App! (v2)", "my_app_v2"},
		{"Empty", "", "project"},
		{"Only punctuation", "!!!", "project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slugify(tt.in))
		})
	}
}
