package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/handlers"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/services/calls"
	"github.com/ternarybob/atelier/internal/services/events"
	"github.com/ternarybob/atelier/internal/services/llm"
	"github.com/ternarybob/atelier/internal/services/maintenance"
	"github.com/ternarybob/atelier/internal/services/projects"
)

// App holds all application services and handlers
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Services
	EventService interfaces.EventService
	LLMService   interfaces.LLMService
	Workspace    *projects.Workspace
	CallStore    *calls.Store
	Registry     *projects.Registry
	Scheduler    *projects.Scheduler
	Sweeper      *maintenance.Sweeper

	// Handlers
	APIHandler     *handlers.APIHandler
	ProjectHandler *handlers.ProjectHandler
	WSHandler      *handlers.WebSocketHandler
}

// New creates the application container and wires all services
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	a.EventService = events.NewService(logger)
	a.Registry = projects.NewRegistry(a.EventService, logger)

	workspace, err := projects.NewWorkspace(config.Workspace.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}
	a.Workspace = workspace

	a.CallStore = calls.NewStore(workspace.Root(), logger)

	llmService, err := llm.NewLLMService(&config.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.LLMService = llmService

	a.Scheduler = projects.NewScheduler(
		a.Registry,
		a.CallStore,
		a.Workspace,
		a.LLMService,
		projects.SchedulerOptionsFromConfig(config),
		logger,
	)

	if config.Maintenance.Enabled {
		sweeper, err := maintenance.NewSweeper(
			workspace.Root(),
			config.Maintenance.Schedule,
			config.Maintenance.MaxAge,
			a.Registry,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize maintenance sweeper: %w", err)
		}
		a.Sweeper = sweeper
		a.Sweeper.Start()
	}

	a.APIHandler = handlers.NewAPIHandler(a.Registry, logger)
	a.ProjectHandler = handlers.NewProjectHandler(a.Registry, a.Scheduler, a.CallStore, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Registry, a.EventService, &config.WebSocket, logger)

	logger.Info().
		Str("workspace", workspace.Root()).
		Str("llm_provider", llmService.Provider()).
		Msg("Application services initialized")

	return a, nil
}

// Close releases application resources in reverse dependency order
func (a *App) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	a.Logger.Info().Msg("Application services closed")
}
