// Package llm defines the provider-neutral completion API. Concrete
// backends live under llmimpl; callers depend only on Client.
package llm

import (
	"context"

	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// Completion message roles in provider-neutral form. Each backend maps
// these to its own wire format.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CompletionMessage is one turn of the conversation sent to a model.
// Assistant messages may carry tool calls; tool messages carry the
// matching results.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []proto.ToolCall
	ToolResults []proto.ToolResult
}

// CompletionRequest is a full completion call: system prompt, history,
// and the tool definitions the model may invoke.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []CompletionMessage
	Tools        []tools.ToolDefinition
	MaxTokens    int
	Temperature  float32
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is a model's reply: free text and/or tool calls.
type CompletionResponse struct {
	Content   string
	ToolCalls []proto.ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Client is the interface all LLM backends implement. Errors are
// classified llmerrors.Error values where the backend can tell.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Provider() config.Provider
}
