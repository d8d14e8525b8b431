// Package proto defines the conversation types shared by the orchestration
// graph, the session store, and the agent invoker: messages, turns, tool
// call/result pairs, session status, and the log line conventions consumed
// by the polling UI.
package proto

import (
	"fmt"
	"time"
)

// MessageRole tags who produced a transcript entry.
type MessageRole string

const (
	// RoleHuman marks input supplied by the human operator.
	RoleHuman MessageRole = "human"
	// RoleAgent marks output produced by an agent turn.
	RoleAgent MessageRole = "agent"
	// RoleTool marks tool results folded back into the transcript.
	RoleTool MessageRole = "tool"
)

// ToolCall is a single tool invocation requested by an agent turn.
type ToolCall struct {
	Args map[string]any `json:"args"`
	ID   string         `json:"id"`
	Name string         `json:"name"`
}

// ToolResult is the string-encoded structured outcome of one ToolCall.
// Exactly one result exists per call before the next agent turn runs.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one entry of the append-only session transcript. The
// transcript is the ground truth passed to the model on every agent
// invocation; it is never truncated or reordered.
type Message struct {
	Timestamp   time.Time    `json:"timestamp"`
	Role        MessageRole  `json:"role"`
	Name        string       `json:"name,omitempty"` // agent display name for RoleAgent
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// NewHumanMessage builds a transcript entry for operator input.
func NewHumanMessage(content string) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleHuman, Content: content}
}

// NewAgentMessage builds a transcript entry for an agent turn.
func NewAgentMessage(name, content string, calls []ToolCall) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleAgent, Name: name, Content: content, ToolCalls: calls}
}

// NewToolMessage builds a transcript entry carrying tool results.
func NewToolMessage(results []ToolResult) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleTool, ToolResults: results}
}

// HasToolCalls reports whether this message requests any tool invocations.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Turn is the immutable result of one agent node execution: free-text
// content and/or tool invocation requests, plus the log fragment it
// contributes.
type Turn struct {
	AgentName string     `json:"agent_name"`
	Node      string     `json:"node"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	LogLines  []string   `json:"log_lines,omitempty"`
}

// HasToolCalls reports whether the turn requests any tool invocations.
func (t *Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// Status is the lifecycle state of a session. It is the sole
// synchronization point between the running graph and status pollers.
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingForHuman Status = "waiting_for_human"
	StatusFinished        Status = "finished"
	StatusError           Status = "error"
)

// Artifact is a generated project file. A later write to the same path
// fully replaces the prior content.
type Artifact struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Log line conventions. The polling UI parses these literally: role token
// in bold, then ": ", then the message. Tool lines whose payload is JSON
// with status "file_created" are rendered as file artifacts.

// AgentLogLine renders an agent's free-text contribution.
func AgentLogLine(name, content string) string {
	return fmt.Sprintf("**%s**: %s", name, content)
}

// ToolLogLine renders a tool result for display.
func ToolLogLine(toolName, payload string) string {
	return fmt.Sprintf("**Tool (%s)**: %s", toolName, payload)
}

// HumanLogLine renders the operator's reply.
func HumanLogLine(content string) string {
	return fmt.Sprintf("**Human**: %s", content)
}

// SystemLogLine renders orchestrator-level notices.
func SystemLogLine(content string) string {
	return fmt.Sprintf("**System**: %s", content)
}

// ErrorLogLine renders a fatal run error. Prior log history is preserved;
// this line is appended so the operator sees exactly what failed.
func ErrorLogLine(content string) string {
	return fmt.Sprintf("**Critical Error**: %s", content)
}
