package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Workspace   WorkspaceConfig   `toml:"workspace"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	LLM         LLMConfig         `toml:"llm"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// WorkspaceConfig controls where project output and call logs live on disk
type WorkspaceConfig struct {
	Root string `toml:"root"` // Workspace root directory, created on startup if missing
}

// SchedulerConfig contains round-loop tuning for project runs
type SchedulerConfig struct {
	MaxIdleRounds     int     `toml:"max_idle_rounds"`    // Consecutive all-idle rounds before a run completes (default: 3)
	PausePoll         string  `toml:"pause_poll"`         // Poll interval while a run is paused, duration string (default: "500ms")
	TurnTimeout       string  `toml:"turn_timeout"`       // Wall-clock limit per role turn, "0s" disables (default: "10m")
	DefaultInvestment float64 `toml:"default_investment"` // Budget in dollars when a project omits one
	DefaultMaxRounds  int     `toml:"default_max_rounds"` // Round cap when a project omits one
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig contains AI provider configuration and token pricing
type LLMConfig struct {
	Provider        LLMProvider `toml:"provider"`         // "claude" or "gemini" (default: "claude")
	APIKey          string      `toml:"api_key"`          // Provider API key (env vars take priority)
	Model           string      `toml:"model"`            // Model name, provider default used when empty
	Timeout         string      `toml:"timeout"`          // Per-call timeout as duration string (default: "5m")
	MaxTokens       int         `toml:"max_tokens"`       // Maximum tokens in response (default: 8192)
	Temperature     float32     `toml:"temperature"`      // Completion temperature (default: 0.7)
	PromptPrice     float64     `toml:"prompt_price"`     // Dollars per 1k prompt tokens
	CompletionPrice float64     `toml:"completion_price"` // Dollars per 1k completion tokens
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for project event streaming
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"thinking": "250ms", "tool_usage": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// MaintenanceConfig controls the background sweep of orphaned call-log directories
type MaintenanceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format (with seconds field)
	MaxAge   string `toml:"max_age"`  // Minimum age before an orphaned directory is removed
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in atelier.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Workspace: WorkspaceConfig{
			Root: "./workspace",
		},
		Scheduler: SchedulerConfig{
			MaxIdleRounds:     3,
			PausePoll:         "500ms",
			TurnTimeout:       "10m",
			DefaultInvestment: 3.0,
			DefaultMaxRounds:  10,
		},
		LLM: LLMConfig{
			Provider:        LLMProviderClaude,
			APIKey:          "", // User must provide API key (ANTHROPIC_API_KEY / GEMINI_API_KEY or config)
			Model:           "",
			Timeout:         "5m",
			MaxTokens:       8192,
			Temperature:     0.7,
			PromptPrice:     0.003, // Per 1k tokens
			CompletionPrice: 0.015,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency events to prevent WebSocket flooding during long runs
			ThrottleIntervals: map[string]string{},
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "0 */30 * * * *", // Every 30 minutes
			MaxAge:   "24h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ATELIER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ATELIER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ATELIER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Workspace configuration
	if root := os.Getenv("ATELIER_WORKSPACE_ROOT"); root != "" {
		config.Workspace.Root = root
	}

	// Scheduler configuration
	if idleRounds := os.Getenv("ATELIER_SCHEDULER_MAX_IDLE_ROUNDS"); idleRounds != "" {
		if n, err := strconv.Atoi(idleRounds); err == nil && n > 0 {
			config.Scheduler.MaxIdleRounds = n
		}
	}
	if pausePoll := os.Getenv("ATELIER_SCHEDULER_PAUSE_POLL"); pausePoll != "" {
		if _, err := time.ParseDuration(pausePoll); err == nil {
			config.Scheduler.PausePoll = pausePoll
		}
	}
	if turnTimeout := os.Getenv("ATELIER_SCHEDULER_TURN_TIMEOUT"); turnTimeout != "" {
		if _, err := time.ParseDuration(turnTimeout); err == nil {
			config.Scheduler.TurnTimeout = turnTimeout
		}
	}

	// LLM configuration
	if provider := os.Getenv("ATELIER_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	}
	if apiKey := os.Getenv("ATELIER_LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if model := os.Getenv("ATELIER_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if timeout := os.Getenv("ATELIER_LLM_TIMEOUT"); timeout != "" {
		config.LLM.Timeout = timeout
	}
	if maxTokens := os.Getenv("ATELIER_LLM_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.LLM.MaxTokens = mt
		}
	}
	if temperature := os.Getenv("ATELIER_LLM_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.LLM.Temperature = float32(t)
		}
	}

	// Logging configuration
	if level := os.Getenv("ATELIER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ATELIER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if allowedEvents := os.Getenv("ATELIER_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		events := []string{}
		for _, e := range splitString(allowedEvents, ",") {
			trimmed := trimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}

	// Maintenance configuration
	if enabled := os.Getenv("ATELIER_MAINTENANCE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Maintenance.Enabled = e
		}
	}
	if schedule := os.Getenv("ATELIER_MAINTENANCE_SCHEDULE"); schedule != "" {
		config.Maintenance.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace root cannot be empty")
	}
	if _, err := time.ParseDuration(c.Scheduler.PausePoll); err != nil {
		return fmt.Errorf("invalid scheduler pause_poll %q: %w", c.Scheduler.PausePoll, err)
	}
	if _, err := time.ParseDuration(c.Scheduler.TurnTimeout); err != nil {
		return fmt.Errorf("invalid scheduler turn_timeout %q: %w", c.Scheduler.TurnTimeout, err)
	}
	if c.Scheduler.MaxIdleRounds <= 0 {
		return fmt.Errorf("scheduler max_idle_rounds must be positive, got %d", c.Scheduler.MaxIdleRounds)
	}
	switch c.LLM.Provider {
	case LLMProviderClaude, LLMProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q (expected claude or gemini)", c.LLM.Provider)
	}
	for eventType, interval := range c.WebSocket.ThrottleIntervals {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("invalid throttle interval %q for event %q: %w", interval, eventType, err)
		}
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := trimSpace(c.Environment)
	return env == "production" || env == "prod"
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
