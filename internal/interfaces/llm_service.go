package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// ChatResult is a completed chat turn with provider-reported token usage
type ChatResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// LLMService abstracts a chat completion provider
type LLMService interface {
	// Chat generates a completion for the transcript in chronological order
	Chat(ctx context.Context, messages []models.ChatMessage) (*ChatResult, error)

	// Model returns the configured model name
	Model() string

	// Provider returns the provider identifier ("claude" or "gemini")
	Provider() string

	// HealthCheck verifies the service can handle requests
	HealthCheck(ctx context.Context) error

	// Close releases resources
	Close() error
}

// CostManager tracks token usage and accumulated cost across a run
type CostManager interface {
	// AddUsage records one call's token consumption
	AddUsage(promptTokens, completionTokens int)

	// TotalPromptTokens returns the running prompt token total
	TotalPromptTokens() int

	// TotalCompletionTokens returns the running completion token total
	TotalCompletionTokens() int

	// TotalCost returns the accumulated cost in dollars
	TotalCost() float64

	// MaxBudget returns the budget ceiling in dollars, 0 means unlimited
	MaxBudget() float64

	// Exceeded reports whether the accumulated cost has reached the budget
	Exceeded() bool
}
