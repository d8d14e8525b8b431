package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"devteam/pkg/workspace"
)

const defaultReadCap = 1 << 20 // 1MB safety cap on returned content

// FileReadTool reads previously generated files back out of the session
// workspace. QA uses it to inspect what the developer wrote.
type FileReadTool struct {
	workspace    *workspace.Workspace
	maxSizeBytes int
}

// NewFileReadTool creates a new file_read tool.
func NewFileReadTool(ws *workspace.Workspace, maxSizeBytes int) *FileReadTool {
	if maxSizeBytes <= 0 {
		maxSizeBytes = defaultReadCap
	}
	return &FileReadTool{workspace: ws, maxSizeBytes: maxSizeBytes}
}

// Name returns the tool name.
func (t *FileReadTool) Name() string {
	return ToolFileRead
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *FileReadTool) PromptDocumentation() string {
	return `- **file_read** - Read a file from the project workspace
  - Parameters:
    - path (string, REQUIRED): relative path to the file within the workspace
  - Returns the full file content; very large files are truncated`
}

// Definition returns the tool definition for LLM use.
func (t *FileReadTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolFileRead,
		Description: "Read the contents of a file from the project workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to the file within the workspace",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Exec reads the file and returns a JSON payload with its content.
func (t *FileReadTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string")
	}

	content, err := t.workspace.ReadFile(path)
	if err != nil {
		return errorResult(fmt.Sprintf("file not found or not readable: %s", path))
	}

	truncated := false
	if len(content) > t.maxSizeBytes {
		content = content[:t.maxSizeBytes]
		truncated = true
	}

	payload, err := json.Marshal(map[string]any{
		"status":    "ok",
		"path":      path,
		"content":   content,
		"truncated": truncated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &ExecResult{Content: string(payload)}, nil
}
