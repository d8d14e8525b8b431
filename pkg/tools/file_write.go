package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"devteam/pkg/workspace"
)

// FileWriteTool writes generated project files into the session workspace.
// A repeated write to the same path replaces the previous content.
type FileWriteTool struct {
	workspace *workspace.Workspace
}

// NewFileWriteTool creates a new file_write tool.
func NewFileWriteTool(ws *workspace.Workspace) *FileWriteTool {
	return &FileWriteTool{workspace: ws}
}

// Name returns the tool name.
func (t *FileWriteTool) Name() string {
	return ToolFileWrite
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *FileWriteTool) PromptDocumentation() string {
	return `- **file_write** - Create or replace a project file in the workspace
  - Parameters:
    - path (string, REQUIRED): relative path of the file, e.g. "docs/requirements.md" or "src/main.py"
    - content (string, REQUIRED): full file content
  - Writing to an existing path replaces the file
  - Paths outside the workspace are rejected`
}

// Definition returns the tool definition for LLM use.
func (t *FileWriteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolFileWrite,
		Description: "Create or replace a file in the project workspace. Use relative paths; directories are created as needed.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path of the file within the project workspace",
				},
				"content": {
					Type:        "string",
					Description: "Complete content of the file",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

// Exec writes the file and returns a JSON payload describing the result.
// Path escapes surface as tool-level errors, not Go errors, so the model
// can correct itself on the next turn.
func (t *FileWriteTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string")
	}
	content, ok := args["content"].(string)
	if !ok {
		return errorResult("content is required and must be a string")
	}

	if _, err := t.workspace.WriteFile(path, content); err != nil {
		if errors.Is(err, workspace.ErrPathEscape) {
			return errorResult(fmt.Sprintf("invalid path %q: must stay inside the project workspace", path))
		}
		return errorResult(fmt.Sprintf("failed to write %s: %v", path, err))
	}

	// The polling UI rebuilds the artifact tree from these payloads, so
	// the full content travels with the log line.
	payload, err := json.Marshal(map[string]any{
		"status":  "file_created",
		"path":    path,
		"content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &ExecResult{Content: string(payload)}, nil
}

// errorResult creates a JSON error response shared by the workspace tools.
func errorResult(msg string) (*ExecResult, error) {
	payload, err := json.Marshal(map[string]any{
		"status": "error",
		"error":  msg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error response: %w", err)
	}
	return &ExecResult{Content: string(payload)}, nil
}
