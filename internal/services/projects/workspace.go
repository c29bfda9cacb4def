package projects

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// Workspace owns the on-disk root that project output lands in and
// infers project directories from observed file paths.
type Workspace struct {
	root   string
	logger arbor.ILogger
}

// NewWorkspace resolves the root to an absolute path and creates it if
// missing.
func NewWorkspace(root string, logger arbor.ILogger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %s: %w", abs, err)
	}
	return &Workspace{
		root:   abs,
		logger: logger,
	}, nil
}

// Root returns the absolute workspace root
func (w *Workspace) Root() string {
	return w.root
}

// InferProjectDir derives the project directory from a file path that
// a tool touched. The path must resolve to at least two segments below
// the workspace root; the first segment names the project directory.
// Dot-prefixed first segments are skipped, and a first segment that
// exists on disk as a non-directory is rejected. Returns the absolute
// project directory and true on success.
func (w *Workspace) InferProjectDir(filePath string) (string, bool) {
	if filePath == "" {
		return "", false
	}

	abs := filePath
	if !filepath.IsAbs(abs) {
		// Tools report paths either relative to the workspace root or
		// prefixed with the root's own name ("workspace/proj/a.py")
		segments := strings.SplitN(filepath.ToSlash(filePath), "/", 2)
		if segments[0] == filepath.Base(w.root) {
			abs = filepath.Join(filepath.Dir(w.root), abs)
		} else {
			abs = filepath.Join(w.root, abs)
		}
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", false
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		// A file directly under the root names no project
		return "", false
	}

	first := parts[0]
	if strings.HasPrefix(first, ".") {
		return "", false
	}

	candidate := filepath.Join(w.root, first)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return "", false
	}

	return candidate, true
}
