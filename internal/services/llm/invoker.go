package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Invoker implements interfaces.ModelInvoker over an LLMService,
// recording token usage into the run's cost manager as a side effect
// of every successful call.
type Invoker struct {
	service interfaces.LLMService
	cost    interfaces.CostManager
	logger  arbor.ILogger
}

// NewInvoker creates a model invoker bound to a cost manager
func NewInvoker(service interfaces.LLMService, cost interfaces.CostManager, logger arbor.ILogger) *Invoker {
	return &Invoker{
		service: service,
		cost:    cost,
		logger:  logger,
	}
}

// Model returns the underlying model name
func (i *Invoker) Model() string {
	return i.service.Model()
}

// Invoke sends the system prompts and user prompt as a chat transcript
func (i *Invoker) Invoke(ctx context.Context, system []string, prompt string) (string, error) {
	messages := make([]models.ChatMessage, 0, len(system)+1)
	for _, s := range system {
		if s == "" {
			continue
		}
		messages = append(messages, models.ChatMessage{Role: "system", Content: s})
	}
	messages = append(messages, models.ChatMessage{Role: "user", Content: prompt})

	result, err := i.service.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model invocation failed: %w", err)
	}

	i.cost.AddUsage(result.PromptTokens, result.CompletionTokens)

	i.logger.Debug().
		Str("model", i.service.Model()).
		Int("prompt_tokens", result.PromptTokens).
		Int("completion_tokens", result.CompletionTokens).
		Msg("Model invocation completed")

	return result.Text, nil
}
