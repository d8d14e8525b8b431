package agent

import (
	"context"
	"strings"
	"testing"

	"devteam/pkg/agent/llm"
	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/team"
	"devteam/pkg/tools"
	"devteam/pkg/workspace"
)

// recordingClient captures the request and returns a canned response.
type recordingClient struct {
	lastReq  llm.CompletionRequest
	response *llm.CompletionResponse
}

func (r *recordingClient) Provider() config.Provider { return config.ProviderGoogle }

func (r *recordingClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	r.lastReq = req
	return r.response, nil
}

func newTestAgent(t *testing.T, client llm.Client) *Agent {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "sess")
	if err != nil {
		t.Fatal(err)
	}
	spec, err := team.ByID(team.RolePM, true)
	if err != nil {
		t.Fatal(err)
	}
	provider := tools.NewProvider(tools.AgentContext{Workspace: ws}, spec.AllowedTools)
	return New(spec, client, provider, config.Default(), "sess", nil)
}

func TestTakeTurnBuildsRequest(t *testing.T) {
	client := &recordingClient{response: &llm.CompletionResponse{Content: "Understood."}}
	a := newTestAgent(t, client)

	transcript := []proto.Message{
		proto.NewHumanMessage("Build a todo app"),
		proto.NewAgentMessage("Sofia", "What stack?", nil),
		proto.NewHumanMessage("Plain HTML"),
	}

	turn, err := a.TakeTurn(context.Background(), transcript)
	if err != nil {
		t.Fatalf("TakeTurn failed: %v", err)
	}

	if !strings.Contains(client.lastReq.SystemPrompt, "Sofia") {
		t.Error("system prompt should carry the role persona")
	}
	if !strings.Contains(client.lastReq.SystemPrompt, "file_write") {
		t.Error("system prompt should document allowed tools")
	}
	if len(client.lastReq.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(client.lastReq.Messages))
	}
	if client.lastReq.Messages[0].Role != llm.RoleUser {
		t.Error("first message should be user role")
	}
	if client.lastReq.Messages[1].Role != llm.RoleAssistant {
		t.Error("agent entries should convert to assistant role")
	}
	if got := len(client.lastReq.Tools); got != 1 {
		t.Errorf("pm should offer exactly one tool, got %d", got)
	}

	if turn.AgentName != "Sofia" {
		t.Errorf("turn agent name = %q", turn.AgentName)
	}
	if turn.Node != team.RolePM {
		t.Errorf("turn node = %q", turn.Node)
	}
	if len(turn.LogLines) != 1 || !strings.HasPrefix(turn.LogLines[0], "**Sofia**: ") {
		t.Errorf("log lines = %v", turn.LogLines)
	}
}

func TestTakeTurnPropagatesToolCalls(t *testing.T) {
	client := &recordingClient{response: &llm.CompletionResponse{
		ToolCalls: []proto.ToolCall{
			{ID: "c1", Name: tools.ToolFileWrite, Args: map[string]any{"path": "a.txt", "content": "x"}},
		},
	}}
	a := newTestAgent(t, client)

	turn, err := a.TakeTurn(context.Background(), []proto.Message{proto.NewHumanMessage("go")})
	if err != nil {
		t.Fatal(err)
	}
	if !turn.HasToolCalls() {
		t.Fatal("expected tool calls on turn")
	}
	if len(turn.LogLines) != 0 {
		t.Errorf("tool-only turn should not log agent text, got %v", turn.LogLines)
	}
}

func TestTakeTurnEmptyTranscript(t *testing.T) {
	a := newTestAgent(t, &recordingClient{response: &llm.CompletionResponse{Content: "x"}})
	if _, err := a.TakeTurn(context.Background(), nil); err == nil {
		t.Error("expected error for empty transcript")
	}
}

func TestConvertTranscriptToolResults(t *testing.T) {
	transcript := []proto.Message{
		proto.NewHumanMessage("start"),
		proto.NewAgentMessage("Lucas", "", []proto.ToolCall{{ID: "c1", Name: "file_write"}}),
		proto.NewToolMessage([]proto.ToolResult{{ToolCallID: "c1", Name: "file_write", Content: `{"status":"file_created"}`}}),
	}
	messages := convertTranscript(transcript)
	if len(messages) != 3 {
		t.Fatalf("messages = %d", len(messages))
	}
	if messages[2].Role != llm.RoleTool || len(messages[2].ToolResults) != 1 {
		t.Errorf("tool results not preserved: %+v", messages[2])
	}
}
