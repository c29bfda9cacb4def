package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// Role is an LLM-backed team member. Each turn it drains its inbox,
// builds a prompt from the pending messages and its own profile, and
// asks the model for a response. A role with an empty inbox is idle.
type Role struct {
	name    string
	profile string
	goal    string

	mu      sync.Mutex
	inbox   []interfaces.AgentMessage
	invoker interfaces.ModelInvoker
	runner  interfaces.CommandRunner
	workdir string
	turns   int

	logger arbor.ILogger
}

// NewRole creates a role with a model invoker and an empty inbox
func NewRole(name, profile, goal string, invoker interfaces.ModelInvoker, logger arbor.ILogger) *Role {
	return &Role{
		name:    name,
		profile: profile,
		goal:    goal,
		invoker: invoker,
		logger:  logger,
	}
}

func (r *Role) Name() string {
	return r.name
}

func (r *Role) Profile() string {
	return r.profile
}

func (r *Role) Goal() string {
	return r.goal
}

// IsIdle reports whether the role has pending work
func (r *Role) IsIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbox) == 0
}

// Deliver enqueues a message into the role's inbox
func (r *Role) Deliver(msg interfaces.AgentMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = append(r.inbox, msg)
}

// ModelInvoker returns the current model invoker
func (r *Role) ModelInvoker() interfaces.ModelInvoker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoker
}

// SetModelInvoker swaps the model invoker, allowing interceptor
// composition at team construction time.
func (r *Role) SetModelInvoker(invoker interfaces.ModelInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoker = invoker
}

// CommandRunner returns the current command runner, nil when the role
// has no tool capability.
func (r *Role) CommandRunner() interfaces.CommandRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runner
}

// SetCommandRunner swaps the command runner
func (r *Role) SetCommandRunner(runner interfaces.CommandRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
}

// SetWorkdir sets the workspace-relative directory the role writes
// its turn artifacts into. Empty disables artifact writes.
func (r *Role) SetWorkdir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workdir = dir
}

// RunTurn consumes pending messages and produces a model response.
// Returns (nil, nil) when the inbox is empty.
func (r *Role) RunTurn(ctx context.Context) (*interfaces.TurnResult, error) {
	messages := r.drainInbox()
	if len(messages) == 0 {
		return nil, nil
	}

	system := fmt.Sprintf("You are %s, a %s on a software team. Your goal: %s.",
		r.name, r.profile, r.goal)

	var prompt strings.Builder
	for i, msg := range messages {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		if msg.SentFrom != "" {
			prompt.WriteString(fmt.Sprintf("[from %s] ", msg.SentFrom))
		}
		prompt.WriteString(msg.Content)
	}

	r.logger.Debug().
		Str("role", r.name).
		Int("message_count", len(messages)).
		Msg("Role turn started")

	output, err := r.invoker.Invoke(ctx, []string{system}, prompt.String())
	if err != nil {
		// Put nothing back; a failed turn fails the round
		return nil, fmt.Errorf("role %s model invocation failed: %w", r.name, err)
	}

	r.writeArtifact(ctx, output)

	return &interfaces.TurnResult{
		Content: output,
		CauseBy: "respond",
	}, nil
}

// writeArtifact saves the turn output into the role's workdir through
// the command runner. Best effort; a failed write never fails the turn.
func (r *Role) writeArtifact(ctx context.Context, output string) {
	r.mu.Lock()
	runner := r.runner
	workdir := r.workdir
	r.turns++
	turn := r.turns
	r.mu.Unlock()

	if runner == nil || workdir == "" || output == "" {
		return
	}

	path := fmt.Sprintf("%s/%s_turn_%d.md", workdir, strings.ToLower(r.name), turn)
	_, err := runner.RunCommands(ctx, []interfaces.Command{{
		Name: "write_file",
		Args: map[string]interface{}{
			"path":    path,
			"content": output,
		},
	}})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("role", r.name).
			Str("path", path).
			Msg("Failed to write turn artifact")
	}
}

func (r *Role) drainInbox() []interfaces.AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := r.inbox
	r.inbox = nil
	return messages
}
