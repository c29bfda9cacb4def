package interfaces

import "context"

// AgentMessage is a message delivered to a role's inbox
type AgentMessage struct {
	Content  string   `json:"content"`
	Role     string   `json:"role"`
	CauseBy  string   `json:"cause_by,omitempty"`
	SentFrom string   `json:"sent_from,omitempty"`
	SendTo   []string `json:"send_to,omitempty"`
}

// TurnResult is the outcome of one role turn. A nil result means the
// role had nothing to act on.
type TurnResult struct {
	Content string
	CauseBy string
}

// Agent is one team member driven by the round scheduler
type Agent interface {
	Name() string
	Profile() string
	Goal() string

	// IsIdle reports whether the agent has pending work
	IsIdle() bool

	// Deliver enqueues a message into the agent's inbox
	Deliver(msg AgentMessage)

	// RunTurn consumes pending messages and produces a result.
	// Returns (nil, nil) when there was nothing to do.
	RunTurn(ctx context.Context) (*TurnResult, error)
}

// ModelInvoker is the model-call capability of a role. Interceptors
// wrap this surface to audit calls without the role noticing.
type ModelInvoker interface {
	// Invoke sends system prompts plus a user prompt and returns the
	// assistant text
	Invoke(ctx context.Context, system []string, prompt string) (string, error)

	// Model returns the model name used for invocations
	Model() string
}

// Command is one tool invocation requested by a role
type Command struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// CommandRunner is the tool-execution capability of a role
type CommandRunner interface {
	// RunCommands executes a batch of commands and returns the combined output
	RunCommands(ctx context.Context, commands []Command) (string, error)
}

// ModelCapable is implemented by roles whose model invoker can be
// swapped, allowing per-role interceptor composition.
type ModelCapable interface {
	ModelInvoker() ModelInvoker
	SetModelInvoker(invoker ModelInvoker)
}

// CommandCapable is implemented by roles whose command runner can be swapped
type CommandCapable interface {
	CommandRunner() CommandRunner
	SetCommandRunner(runner CommandRunner)
}
