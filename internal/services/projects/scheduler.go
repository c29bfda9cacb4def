package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/agents"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/calls"
	"github.com/ternarybob/atelier/internal/services/llm"
)

const thinkingPreviewLimit = 1000

// SchedulerOptions tunes the round loop
type SchedulerOptions struct {
	MaxIdleRounds     int           // Consecutive all-idle rounds before completion
	PausePoll         time.Duration // Poll interval while paused
	TurnTimeout       time.Duration // Wall-clock limit per role turn, 0 disables
	DefaultInvestment float64       // Budget when the project omits one
	DefaultMaxRounds  int           // Round cap when the project omits one
	PromptPrice       float64       // Dollars per 1k prompt tokens
	CompletionPrice   float64       // Dollars per 1k completion tokens
}

// SchedulerOptionsFromConfig converts the validated config section
func SchedulerOptionsFromConfig(config *common.Config) SchedulerOptions {
	pausePoll, _ := time.ParseDuration(config.Scheduler.PausePoll)
	turnTimeout, _ := time.ParseDuration(config.Scheduler.TurnTimeout)
	return SchedulerOptions{
		MaxIdleRounds:     config.Scheduler.MaxIdleRounds,
		PausePoll:         pausePoll,
		TurnTimeout:       turnTimeout,
		DefaultInvestment: config.Scheduler.DefaultInvestment,
		DefaultMaxRounds:  config.Scheduler.DefaultMaxRounds,
		PromptPrice:       config.LLM.PromptPrice,
		CompletionPrice:   config.LLM.CompletionPrice,
	}
}

// Scheduler drives project runs. Each run gets its own goroutine, its
// own team of roles and its own cost manager; the scheduler itself is
// stateless across runs.
type Scheduler struct {
	registry  *Registry
	store     *calls.Store
	workspace *Workspace
	llm       interfaces.LLMService
	opts      SchedulerOptions
	logger    arbor.ILogger
}

// NewScheduler creates a scheduler
func NewScheduler(registry *Registry, store *calls.Store, workspace *Workspace, llmService interfaces.LLMService, opts SchedulerOptions, logger arbor.ILogger) *Scheduler {
	if opts.MaxIdleRounds <= 0 {
		opts.MaxIdleRounds = 3
	}
	if opts.PausePoll <= 0 {
		opts.PausePoll = 500 * time.Millisecond
	}
	if opts.DefaultMaxRounds <= 0 {
		opts.DefaultMaxRounds = 10
	}
	return &Scheduler{
		registry:  registry,
		store:     store,
		workspace: workspace,
		llm:       llmService,
		opts:      opts,
		logger:    logger,
	}
}

// Start transitions the project to running and launches its run loop.
// Fails when the project is unknown or a run is already active.
func (s *Scheduler) Start(id string) error {
	project, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.registry.RegisterHandle(id, cancel); err != nil {
		cancel()
		return err
	}
	if err := project.BeginRun(); err != nil {
		s.registry.ReleaseHandle(id)
		cancel()
		return err
	}

	go s.run(ctx, project)

	s.logger.Info().
		Str("project_id", id).
		Msg("Project run started")
	return nil
}

// Stop cancels the active run. The run loop marks the project stopped
// when it observes the cancellation.
func (s *Scheduler) Stop(id string) error {
	if _, err := s.registry.Get(id); err != nil {
		return err
	}
	if !s.registry.CancelHandle(id) {
		return ErrProjectNotRunning
	}
	s.logger.Info().
		Str("project_id", id).
		Msg("Project run cancelled")
	return nil
}

// Pause suspends a running project between rounds
func (s *Scheduler) Pause(id string) error {
	project, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if err := project.Pause(); err != nil {
		return err
	}
	s.publishStatus(project, models.ProjectStatusPaused, "Project run paused")
	return nil
}

// Resume continues a paused project
func (s *Scheduler) Resume(id string) error {
	project, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if err := project.Resume(); err != nil {
		return err
	}
	s.publishStatus(project, models.ProjectStatusRunning, "Project run resumed")
	return nil
}

// run is the round loop for one project. It owns the project's status
// for the duration of the run and always releases the run handle.
func (s *Scheduler) run(ctx context.Context, project *models.Project) {
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("run panicked: %v", r)
			s.logger.Error().
				Str("project_id", project.ID()).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Project run panicked")
			project.MarkFailed(message)
			s.publishStatus(project, models.ProjectStatusFailed, "Project run failed: "+message)
		}
		s.registry.ReleaseHandle(project.ID())
	}()

	investment := project.Investment()
	if investment <= 0 {
		investment = s.opts.DefaultInvestment
	}
	maxRounds := project.MaxRounds()
	if maxRounds <= 0 {
		maxRounds = s.opts.DefaultMaxRounds
	}

	cost := llm.NewCostManager(s.opts.PromptPrice, s.opts.CompletionPrice, investment)
	team := s.buildTeam(project, cost)

	s.publishStatus(project, models.ProjectStatusRunning, "Project run started")
	s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventEmployeesUpdated, map[string]interface{}{
		"employees": project.Employees(),
	}))

	// Seed the team leader with the user requirement
	leader := team.Leader()
	if leader != nil {
		leader.Deliver(interfaces.AgentMessage{
			Content:  project.Idea(),
			Role:     "user",
			CauseBy:  "user_requirement",
			SentFrom: "User",
			SendTo:   []string{leader.Name()},
		})
		s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventMessage, map[string]interface{}{
			"agent_name": "User",
			"role":       "user",
			"content":    project.Idea(),
		}))
	}

	consecutiveIdle := 0
	budgetExhausted := false

	for round := 1; round <= maxRounds; round++ {
		if stopped := s.waitWhilePaused(ctx, project); stopped {
			s.finishStopped(project)
			return
		}

		if cost.Exceeded() {
			s.logger.Warn().
				Str("project_id", project.ID()).
				Float64("total_cost", cost.TotalCost()).
				Float64("budget", cost.MaxBudget()).
				Msg("Budget exhausted, ending run")
			s.publishCost(project, cost)
			budgetExhausted = true
			break
		}

		if err := s.runRound(ctx, project, team, round); err != nil {
			if errors.Is(err, context.Canceled) {
				s.finishStopped(project)
				return
			}
			s.logger.Error().
				Err(err).
				Str("project_id", project.ID()).
				Int("round", round).
				Msg("Round failed")
			project.MarkFailed(err.Error())
			s.publishStatus(project, models.ProjectStatusFailed, "Project run failed: "+err.Error())
			return
		}

		s.publishCost(project, cost)

		if team.IsIdle() {
			consecutiveIdle++
			if consecutiveIdle >= s.opts.MaxIdleRounds {
				s.logger.Info().
					Str("project_id", project.ID()).
					Int("round", round).
					Msg("Team idle, ending run")
				break
			}
		} else {
			consecutiveIdle = 0
		}
	}

	project.MarkCompleted(cost.TotalCost())
	message := "Project run completed"
	if budgetExhausted {
		message = "Project run completed (budget exhausted)"
	}
	payload := map[string]interface{}{
		"status":     string(models.ProjectStatusCompleted),
		"message":    message,
		"total_cost": cost.TotalCost(),
	}
	if dir := project.ProjectDir(); dir != "" {
		payload["project_dir"] = dir
	}
	s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventProjectStatus, payload))
}

// runRound runs every non-idle role concurrently and joins the turns.
// The first turn error fails the round; remaining turns still finish.
func (s *Scheduler) runRound(ctx context.Context, project *models.Project, team *agents.Team, round int) error {
	active := team.ActiveRoles()
	s.logger.Debug().
		Str("project_id", project.ID()).
		Int("round", round).
		Int("active_roles", len(active)).
		Msg("Round started")
	if len(active) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(active))
	for _, agent := range active {
		wg.Add(1)
		go func(a interfaces.Agent) {
			defer wg.Done()
			if err := s.runTurn(ctx, project, team, a); err != nil {
				errCh <- err
			}
		}(agent)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// runTurn drives one role turn with status events around it
func (s *Scheduler) runTurn(ctx context.Context, project *models.Project, team *agents.Team, agent interfaces.Agent) error {
	s.publishAgentStatus(project, agent, "working", "")

	turnCtx := ctx
	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}

	result, err := agent.RunTurn(turnCtx)
	if err != nil {
		s.publishAgentStatus(project, agent, "error", err.Error())
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("role %s turn failed: %w", agent.Name(), err)
	}

	if result != nil && result.Content != "" {
		s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventThinking, map[string]interface{}{
			"agent_name": agent.Name(),
			"profile":    agent.Profile(),
			"action":     result.CauseBy,
			"content":    common.Truncate(result.Content, thinkingPreviewLimit),
		}))
		s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventMessage, map[string]interface{}{
			"agent_name": agent.Name(),
			"role":       "assistant",
			"content":    result.Content,
		}))

		// Route results back to the leader so it can react next round
		leader := team.Leader()
		if project.Mode() == models.ModeLeader && leader != nil && leader.Name() != agent.Name() {
			leader.Deliver(interfaces.AgentMessage{
				Content: fmt.Sprintf("[%s %s completed a task]\n%s",
					agent.Profile(), agent.Name(), common.Truncate(result.Content, responsePreviewLimit)),
				Role:     "user",
				CauseBy:  "task_result",
				SentFrom: agent.Name(),
				SendTo:   []string{leader.Name()},
			})
		}
	}

	s.publishAgentStatus(project, agent, "idle", "")
	return nil
}

// buildTeam hires the project roster and composes the per-role
// interceptors around each capability.
func (s *Scheduler) buildTeam(project *models.Project, cost *llm.CostManager) *agents.Team {
	team := agents.NewTeam(cost, s.logger)
	workdir := slugify(project.Name())

	for _, employee := range project.Employees() {
		invoker := llm.NewInvoker(s.llm, cost, s.logger)
		role := agents.NewRole(employee.Name, employee.Profile, employee.Goal, invoker, s.logger)
		if employee.Profile == "Engineer" || employee.Profile == "DataAnalyst" {
			role.SetCommandRunner(agents.NewWorkspaceCommandRunner(s.workspace.Root(), s.logger))
			role.SetWorkdir(workdir)
		}
		team.Hire(role)
	}

	for _, agent := range team.Roles() {
		if mc, ok := agent.(interfaces.ModelCapable); ok && mc.ModelInvoker() != nil {
			mc.SetModelInvoker(NewModelInterceptor(
				mc.ModelInvoker(), agent.Name(), project, cost, s.store, s.registry, s.logger))
		}
		if cc, ok := agent.(interfaces.CommandCapable); ok && cc.CommandRunner() != nil {
			cc.SetCommandRunner(NewCommandInterceptor(
				cc.CommandRunner(), agent.Name(), project, s.store, s.workspace, s.registry, s.logger))
		}
	}
	return team
}

// waitWhilePaused blocks while the project is paused, polling at the
// configured interval. Returns true when the run was cancelled.
func (s *Scheduler) waitWhilePaused(ctx context.Context, project *models.Project) bool {
	for {
		if ctx.Err() != nil {
			return true
		}
		if !project.IsPaused() {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(s.opts.PausePoll):
		}
	}
}

func (s *Scheduler) finishStopped(project *models.Project) {
	project.MarkStopped()
	s.publishStatus(project, models.ProjectStatusStopped, "Project run stopped")
}

func (s *Scheduler) publishStatus(project *models.Project, status models.ProjectStatus, message string) {
	s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventProjectStatus, map[string]interface{}{
		"status":  string(status),
		"message": message,
	}))
}

func (s *Scheduler) publishAgentStatus(project *models.Project, agent interfaces.Agent, status, message string) {
	s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventAgentStatus, map[string]interface{}{
		"agent_name": agent.Name(),
		"profile":    agent.Profile(),
		"status":     status,
		"message":    message,
	}))
}

func (s *Scheduler) publishCost(project *models.Project, cost interfaces.CostManager) {
	s.registry.PublishEvent(project.ID(), models.NewEvent(models.EventCostUpdate, map[string]interface{}{
		"total_cost":        cost.TotalCost(),
		"max_budget":        cost.MaxBudget(),
		"prompt_tokens":     cost.TotalPromptTokens(),
		"completion_tokens": cost.TotalCompletionTokens(),
	}))
}

// slugify turns a project name into a filesystem-friendly directory name
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}
