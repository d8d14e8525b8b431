// Package workspace confines generated project files to a per-session
// directory under the configured workspace root. All tool file access goes
// through Resolve so a model-supplied path can never escape the sandbox.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devteam/pkg/logx"
)

// ErrPathEscape is returned when a relative path would resolve outside the
// session workspace.
var ErrPathEscape = fmt.Errorf("path escapes workspace")

// Workspace is the directory a single session may read and write.
type Workspace struct {
	root   string
	logger *logx.Logger
}

// New creates (if needed) and returns the workspace for one session.
// root is the configured workspace dir; sessionID namespaces it.
func New(root, sessionID string) (*Workspace, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("workspace session id cannot be empty")
	}
	abs, err := filepath.Abs(filepath.Join(root, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", abs, err)
	}
	return &Workspace{
		root:   abs,
		logger: logx.NewLogger("workspace"),
	}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a model-supplied relative path to an absolute path inside
// the workspace. Absolute paths, empty paths, and any path whose cleaned
// form climbs out of the root are rejected.
func (w *Workspace) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q not allowed", ErrPathEscape, rel)
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	abs := filepath.Join(w.root, cleaned)
	// Join cleans again; re-check containment against the root boundary.
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	return abs, nil
}

// WriteFile writes content to rel inside the workspace, creating parent
// directories as needed. A second write to the same path replaces it.
func (w *Workspace) WriteFile(rel, content string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	w.logger.Debug("wrote %s (%d bytes)", rel, len(content))
	return abs, nil
}

// ReadFile reads rel from the workspace.
func (w *Workspace) ReadFile(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// List returns the relative paths of all regular files in the workspace,
// sorted by filepath.WalkDir order.
func (w *Workspace) List() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}
	return files, nil
}
