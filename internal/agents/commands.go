package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// WorkspaceCommandRunner executes file commands confined to the
// workspace root. Supported commands: write_file, read_file,
// list_files. Paths outside the workspace are rejected.
type WorkspaceCommandRunner struct {
	root   string
	logger arbor.ILogger
}

// NewWorkspaceCommandRunner creates a command runner rooted at the
// workspace directory.
func NewWorkspaceCommandRunner(root string, logger arbor.ILogger) *WorkspaceCommandRunner {
	return &WorkspaceCommandRunner{
		root:   root,
		logger: logger,
	}
}

// RunCommands executes a batch of commands in order and returns the
// combined output. The first failing command aborts the batch.
func (w *WorkspaceCommandRunner) RunCommands(ctx context.Context, commands []interfaces.Command) (string, error) {
	var output strings.Builder
	for i, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, err := w.runCommand(cmd)
		if err != nil {
			return "", fmt.Errorf("command %s (%d of %d) failed: %w", cmd.Name, i+1, len(commands), err)
		}
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString(result)
	}
	return output.String(), nil
}

func (w *WorkspaceCommandRunner) runCommand(cmd interfaces.Command) (string, error) {
	switch cmd.Name {
	case "write_file":
		return w.writeFile(cmd.Args)
	case "read_file":
		return w.readFile(cmd.Args)
	case "list_files":
		return w.listFiles(cmd.Args)
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Name)
	}
}

func (w *WorkspaceCommandRunner) writeFile(args map[string]interface{}) (string, error) {
	path, err := w.resolvePath(args)
	if err != nil {
		return "", err
	}
	content, _ := args["content"].(string)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	w.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("File written")
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (w *WorkspaceCommandRunner) readFile(args map[string]interface{}) (string, error) {
	path, err := w.resolvePath(args)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (w *WorkspaceCommandRunner) listFiles(args map[string]interface{}) (string, error) {
	path, err := w.resolvePath(args)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return strings.Join(names, "\n"), nil
}

// resolvePath extracts the path argument and confines it to the
// workspace root.
func (w *WorkspaceCommandRunner) resolvePath(args map[string]interface{}) (string, error) {
	raw, _ := args["path"].(string)
	if raw == "" {
		return "", fmt.Errorf("path argument is required")
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", raw)
	}
	return path, nil
}
