package tools

import "context"

// TerminalTool is registered but deliberately inert: no role's allowlist
// includes it, and even a direct call refuses to execute anything. It
// exists so models that hallucinate shell access get a structured
// refusal instead of an unknown-tool error.
type TerminalTool struct{}

// NewTerminalTool creates the disabled terminal tool.
func NewTerminalTool() *TerminalTool {
	return &TerminalTool{}
}

// Name returns the tool name.
func (t *TerminalTool) Name() string {
	return ToolTerminal
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *TerminalTool) PromptDocumentation() string {
	return `- **run_terminal_command** - Disabled. Shell execution is not available in this environment`
}

// Definition returns the tool definition for LLM use.
func (t *TerminalTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTerminal,
		Description: "Execute a shell command. Disabled in this environment.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {
					Type:        "string",
					Description: "Shell command to execute",
				},
			},
			Required: []string{"command"},
		},
	}
}

// Exec always refuses.
func (t *TerminalTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	return errorResult("terminal is disabled for security")
}
