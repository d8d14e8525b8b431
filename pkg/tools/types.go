// Package tools provides the tool implementations agents may invoke and
// the sealed registry that controls which role sees which tool.
package tools

import "context"

// Tool name constants. These are the names the models call.
const (
	ToolFileWrite = "file_write"
	ToolFileRead  = "file_read"
	ToolWebSearch = "web_search"
	ToolTerminal  = "run_terminal_command"
)

// Property describes a single parameter in a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is a JSON Schema object describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the provider-neutral description sent to LLM backends.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ExecResult carries a tool's string-encoded structured output.
type ExecResult struct {
	Content string `json:"content"`
}

// Tool is the interface every registered tool implements. Exec returns a
// JSON payload in ExecResult.Content on both success and tool-level
// failure; a non-nil error means the tool itself is broken.
type Tool interface {
	Name() string
	PromptDocumentation() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}
