package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiService implements the LLMService interface using the Google
// Gemini API.
type GeminiService struct {
	config  *common.LLMConfig
	logger  arbor.ILogger
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiService creates a Gemini LLM service. The API key is
// resolved from GEMINI_API_KEY first, then the config value.
func NewGeminiService(config *common.LLMConfig, logger arbor.ILogger) (*GeminiService, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = config.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or llm.api_key in config)")
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Timeout, err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	service := &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		model:   model,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", timeout).
		Float32("temperature", config.Temperature).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// convertMessagesToGemini converts chat messages to the Gemini Content
// format, extracting system messages for the SystemInstruction
// parameter and preserving chronological order.
func convertMessagesToGemini(messages []models.ChatMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemParts []string
	for _, msg := range messages {
		var geminiRole genai.Role
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, msg.Content)
			continue
		case "assistant":
			geminiRole = genai.RoleModel
		default:
			// Unknown roles are treated as user input
			geminiRole = genai.RoleUser
		}

		contents = append(contents, &genai.Content{
			Role:  string(geminiRole),
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, strings.Join(systemParts, "\n\n"), nil
}

// Chat generates a completion for the conversation history
func (s *GeminiService) Chat(ctx context.Context, messages []models.ChatMessage) (*interfaces.ChatResult, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Starting Gemini chat completion")

	result, err := s.generateCompletion(timeoutCtx, messages)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Gemini chat completion failed")
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(result.Text)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini chat completion completed")

	return result, nil
}

// Model returns the configured model name
func (s *GeminiService) Model() string {
	return s.model
}

// Provider returns the provider identifier
func (s *GeminiService) Provider() string {
	return string(common.LLMProviderGemini)
}

// HealthCheck verifies the Gemini service can handle requests with a
// minimal probe completion.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("Gemini client is not initialized")
	}

	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	probe := []models.ChatMessage{{Role: "user", Content: "ping"}}
	result, err := s.generateCompletion(healthCheckCtx, probe)
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if len(strings.TrimSpace(result.Text)) == 0 {
		return fmt.Errorf("Gemini probe returned empty response")
	}

	s.logger.Debug().
		Str("model", s.model).
		Msg("Gemini LLM service health check passed")
	return nil
}

// Close releases resources. The genai.Client doesn't require explicit
// cleanup.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini LLM service")
	s.client = nil
	return nil
}

// generateCompletion encapsulates the Gemini API chat completion logic
func (s *GeminiService) generateCompletion(ctx context.Context, messages []models.ChatMessage) (*interfaces.ChatResult, error) {
	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, geminiContents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	// Extract text from response - iterate candidates until non-empty text is found
	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Gemini API")
	}

	result := &interfaces.ChatResult{Text: response.String()}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return result, nil
}
