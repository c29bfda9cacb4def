package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// NewLLMService creates the LLM service selected by configuration
func NewLLMService(config *common.LLMConfig, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.Provider {
	case common.LLMProviderClaude:
		return NewClaudeService(config, logger)
	case common.LLMProviderGemini:
		return NewGeminiService(config, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", config.Provider)
	}
}
