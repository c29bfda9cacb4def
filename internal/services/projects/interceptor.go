package projects

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/calls"
)

const (
	promptPreviewLimit   = 200
	responsePreviewLimit = 500
	toolResultLimit      = 300
)

// ModelInterceptor decorates a role's model invoker. Every successful
// call is written to the call-log store in full fidelity and announced
// to observers as a truncated llm_call event. Invocation errors
// propagate unchanged with no record written; a failed save never
// fails the call.
type ModelInterceptor struct {
	next      interfaces.ModelInvoker
	agentName string
	project   *models.Project
	cost      interfaces.CostManager
	store     *calls.Store
	publisher interfaces.EventPublisher
	logger    arbor.ILogger
}

// NewModelInterceptor wraps a model invoker for one role
func NewModelInterceptor(next interfaces.ModelInvoker, agentName string, project *models.Project, cost interfaces.CostManager, store *calls.Store, publisher interfaces.EventPublisher, logger arbor.ILogger) *ModelInterceptor {
	return &ModelInterceptor{
		next:      next,
		agentName: agentName,
		project:   project,
		cost:      cost,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Model returns the wrapped invoker's model name
func (m *ModelInterceptor) Model() string {
	return m.next.Model()
}

// Invoke passes the call through unchanged, then records it
func (m *ModelInterceptor) Invoke(ctx context.Context, system []string, prompt string) (string, error) {
	promptBefore := m.cost.TotalPromptTokens()
	completionBefore := m.cost.TotalCompletionTokens()

	output, err := m.next.Invoke(ctx, system, prompt)
	if err != nil {
		return "", err
	}

	promptAfter := m.cost.TotalPromptTokens()
	completionAfter := m.cost.TotalCompletionTokens()

	messages := make([]models.ChatMessage, 0, len(system)+1)
	for _, s := range system {
		if s == "" {
			continue
		}
		messages = append(messages, models.ChatMessage{Role: "system", Content: s})
	}
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	tokens := models.TokenUsage{
		Prompt:          promptAfter - promptBefore,
		Completion:      completionAfter - completionBefore,
		TotalPrompt:     promptAfter,
		TotalCompletion: completionAfter,
	}

	record := &models.CallRecord{
		AgentName:       m.agentName,
		Model:           m.next.Model(),
		Timestamp:       time.Now().UTC(),
		Messages:        messages,
		Response:        output,
		PromptPreview:   common.Truncate(prompt, promptPreviewLimit),
		ResponsePreview: common.Truncate(output, responsePreviewLimit),
		Tokens:          tokens,
		TotalCost:       m.cost.TotalCost(),
	}

	callID, saveErr := m.store.Save(m.project, record)
	if saveErr != nil {
		m.logger.Warn().
			Err(saveErr).
			Str("project_id", m.project.ID()).
			Str("agent_name", m.agentName).
			Msg("Failed to save call record")
	}

	payload := map[string]interface{}{
		"agent_name": m.agentName,
		"model":      record.Model,
		"prompt":     record.PromptPreview,
		"response":   record.ResponsePreview,
		"tokens": map[string]interface{}{
			"prompt":           tokens.Prompt,
			"completion":       tokens.Completion,
			"total_prompt":     tokens.TotalPrompt,
			"total_completion": tokens.TotalCompletion,
		},
		"total_cost":  record.TotalCost,
		"total_count": m.project.CallCount(),
	}
	if callID != "" {
		payload["call_id"] = callID
	}
	m.publisher.PublishEvent(m.project.ID(), models.NewEvent(models.EventLLMCall, payload))

	return output, nil
}

// CommandInterceptor decorates a role's command runner. Each command
// is announced before the batch runs, the batch result is announced
// after, and any file-path-shaped argument is forwarded to project
// directory inference.
type CommandInterceptor struct {
	next      interfaces.CommandRunner
	agentName string
	project   *models.Project
	store     *calls.Store
	workspace *Workspace
	publisher interfaces.EventPublisher
	logger    arbor.ILogger
}

// NewCommandInterceptor wraps a command runner for one role
func NewCommandInterceptor(next interfaces.CommandRunner, agentName string, project *models.Project, store *calls.Store, workspace *Workspace, publisher interfaces.EventPublisher, logger arbor.ILogger) *CommandInterceptor {
	return &CommandInterceptor{
		next:      next,
		agentName: agentName,
		project:   project,
		store:     store,
		workspace: workspace,
		publisher: publisher,
		logger:    logger,
	}
}

// RunCommands announces and forwards a command batch
func (c *CommandInterceptor) RunCommands(ctx context.Context, commands []interfaces.Command) (string, error) {
	for _, cmd := range commands {
		c.publisher.PublishEvent(c.project.ID(), models.NewEvent(models.EventToolUsage, map[string]interface{}{
			"agent_name": c.agentName,
			"tool_name":  cmd.Name,
			"args":       cmd.Args,
			"result":     "in progress",
		}))

		if path := detectFilePath(cmd.Args); path != "" {
			c.observePath(path)
		}
	}

	output, err := c.next.RunCommands(ctx, commands)
	if err != nil {
		return "", err
	}

	c.publisher.PublishEvent(c.project.ID(), models.NewEvent(models.EventToolUsage, map[string]interface{}{
		"agent_name": c.agentName,
		"tool_name":  "commands_completed",
		"args":       map[string]interface{}{},
		"result":     common.Truncate(output, toolResultLimit),
	}))

	return output, nil
}

// observePath feeds a touched file path into project directory
// inference. First successful inference wins; call logs migrate into
// the project tree at that moment.
func (c *CommandInterceptor) observePath(path string) {
	if c.project.ProjectDir() != "" {
		return
	}

	dir, ok := c.workspace.InferProjectDir(path)
	if !ok {
		return
	}
	if !c.project.SetProjectDir(dir) {
		return
	}

	c.logger.Info().
		Str("project_id", c.project.ID()).
		Str("project_dir", dir).
		Str("path", path).
		Msg("Project directory detected")

	if err := c.store.MigrateProvisional(c.project.ID(), dir); err != nil {
		c.logger.Warn().
			Err(err).
			Str("project_id", c.project.ID()).
			Msg("Failed to migrate provisional call logs")
	}
}

// detectFilePath scans command args for a file-path-shaped value.
// Checked in order: path, file_path, filename, then the first element
// of a files list (either a string or an object with path/file_path).
func detectFilePath(args map[string]interface{}) string {
	if args == nil {
		return ""
	}
	for _, key := range []string{"path", "file_path", "filename"} {
		if value, ok := args[key].(string); ok && value != "" {
			return value
		}
	}
	files, ok := args["files"].([]interface{})
	if !ok || len(files) == 0 {
		return ""
	}
	switch first := files[0].(type) {
	case string:
		return first
	case map[string]interface{}:
		for _, key := range []string{"path", "file_path"} {
			if value, ok := first[key].(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}
