package tools

import (
	"context"
	"encoding/json"
	"testing"

	"devteam/pkg/workspace"
)

func newTestContext(t *testing.T) AgentContext {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "test-session")
	if err != nil {
		t.Fatalf("workspace setup failed: %v", err)
	}
	return AgentContext{Workspace: ws}
}

func TestProviderAllowlist(t *testing.T) {
	provider := NewProvider(newTestContext(t), []string{ToolFileWrite})

	if _, err := provider.Get(ToolFileWrite); err != nil {
		t.Errorf("allowed tool should resolve: %v", err)
	}
	if _, err := provider.Get(ToolWebSearch); err == nil {
		t.Error("disallowed tool should not resolve")
	}
	if _, err := provider.Get("no_such_tool"); err == nil {
		t.Error("unknown tool should not resolve")
	}
}

func TestProviderCachesInstances(t *testing.T) {
	provider := NewProvider(newTestContext(t), []string{ToolFileRead})

	first, err := provider.Get(ToolFileRead)
	if err != nil {
		t.Fatal(err)
	}
	second, err := provider.Get(ToolFileRead)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected cached tool instance")
	}
}

func TestDefinitionsSortedAndComplete(t *testing.T) {
	provider := NewProvider(newTestContext(t), []string{ToolWebSearch, ToolFileWrite})

	defs, err := provider.Definitions()
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != ToolFileWrite || defs[1].Name != ToolWebSearch {
		t.Errorf("definitions not sorted: %s, %s", defs[0].Name, defs[1].Name)
	}
}

func TestListToolsIncludesAllRegistered(t *testing.T) {
	metas := ListTools()
	seen := make(map[string]bool, len(metas))
	for _, m := range metas {
		seen[m.Name] = true
	}
	for _, name := range []string{ToolFileWrite, ToolFileRead, ToolWebSearch, ToolTerminal} {
		if !seen[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestFileWriteExec(t *testing.T) {
	ctx := newTestContext(t)
	tool := NewFileWriteTool(ctx.Workspace)

	result, err := tool.Exec(context.Background(), map[string]any{
		"path":    "src/main.py",
		"content": "print('hi')",
	})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if payload["status"] != "file_created" {
		t.Errorf("status = %v", payload["status"])
	}
	if payload["path"] != "src/main.py" {
		t.Errorf("path = %v", payload["path"])
	}
	if payload["content"] != "print('hi')" {
		t.Errorf("content = %v", payload["content"])
	}

	content, err := ctx.Workspace.ReadFile("src/main.py")
	if err != nil || content != "print('hi')" {
		t.Errorf("file content = %q, err = %v", content, err)
	}
}

func TestFileWriteRejectsEscape(t *testing.T) {
	ctx := newTestContext(t)
	tool := NewFileWriteTool(ctx.Workspace)

	result, err := tool.Exec(context.Background(), map[string]any{
		"path":    "../escape.txt",
		"content": "x",
	})
	if err != nil {
		t.Fatalf("escape should be a tool-level error, not a Go error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "error" {
		t.Errorf("expected error status, got %v", payload["status"])
	}
}

func TestFileReadExec(t *testing.T) {
	ctx := newTestContext(t)
	if _, err := ctx.Workspace.WriteFile("notes.md", "remember"); err != nil {
		t.Fatal(err)
	}

	tool := NewFileReadTool(ctx.Workspace, 0)
	result, err := tool.Exec(context.Background(), map[string]any{"path": "notes.md"})
	if err != nil {
		t.Fatal(err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["content"] != "remember" {
		t.Errorf("content = %v", payload["content"])
	}
}

func TestTerminalToolRefuses(t *testing.T) {
	tool := NewTerminalTool()
	result, err := tool.Exec(context.Background(), map[string]any{"command": "rm -rf /"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "error" {
		t.Errorf("expected error payload, got %v", payload)
	}
}

func TestFileReadMissingFile(t *testing.T) {
	ctx := newTestContext(t)
	tool := NewFileReadTool(ctx.Workspace, 0)

	result, err := tool.Exec(context.Background(), map[string]any{"path": "nope.md"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "error" {
		t.Errorf("expected error payload, got %v", payload)
	}
}
