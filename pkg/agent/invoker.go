package agent

import (
	"context"
	"fmt"
	"time"

	"devteam/pkg/agent/llm"
	"devteam/pkg/config"
	"devteam/pkg/contextmgr"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/proto"
	"devteam/pkg/team"
	"devteam/pkg/tools"
)

// Agent executes turns for one team role within one session.
type Agent struct {
	spec      team.Spec
	name      string
	client    llm.Client
	tools     *tools.Provider
	counter   *contextmgr.TokenCounter
	logger    *logx.Logger
	sessionID string

	model        string
	maxTokens    int
	temperature  float32
	callTimeout  time.Duration
	contextLimit int
}

// New creates an agent for one role. counter may be nil; token budget
// warnings are then skipped.
func New(spec team.Spec, client llm.Client, toolProvider *tools.Provider,
	cfg *config.Config, sessionID string, counter *contextmgr.TokenCounter) *Agent {
	return &Agent{
		spec:         spec,
		name:         team.DisplayName(spec),
		client:       client,
		tools:        toolProvider,
		counter:      counter,
		logger:       logx.NewLogger("agent-" + spec.ID),
		sessionID:    sessionID,
		model:        cfg.Agent.Model,
		maxTokens:    cfg.Agent.MaxTokens,
		temperature:  cfg.Agent.Temperature,
		callTimeout:  cfg.Timeouts.ModelCall,
		contextLimit: cfg.Pipeline.ContextLimit,
	}
}

// Name returns the agent's display name as shown in the session log.
func (a *Agent) Name() string {
	return a.name
}

// Role returns the role id, which is also the graph node name.
func (a *Agent) Role() string {
	return a.spec.ID
}

// TakeTurn runs one completion over the accumulated transcript and returns
// the resulting turn. The transcript is never mutated here; the caller
// folds the turn back into the session.
func (a *Agent) TakeTurn(ctx context.Context, transcript []proto.Message) (*proto.Turn, error) {
	if len(transcript) == 0 {
		return nil, fmt.Errorf("transcript cannot be empty")
	}

	req := llm.CompletionRequest{
		Model:        a.model,
		SystemPrompt: a.systemPrompt(),
		Messages:     convertTranscript(transcript),
		MaxTokens:    a.maxTokens,
		Temperature:  a.temperature,
	}

	defs, err := a.tools.Definitions()
	if err != nil {
		return nil, fmt.Errorf("failed to collect tool definitions: %w", err)
	}
	req.Tools = defs

	if a.counter != nil && !a.counter.WithinLimit(&req, a.contextLimit) {
		a.logger.Warn("session %s transcript exceeds context budget (%d tokens)",
			a.sessionID, a.contextLimit)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.Complete(callCtx, req)
	metrics.RecordModelCall(string(a.client.Provider()), a.model, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("model invocation failed for role %s: %w", a.spec.ID, err)
	}
	metrics.RecordTokens(a.sessionID, a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	turn := &proto.Turn{
		AgentName: a.name,
		Node:      a.spec.ID,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
	if turn.Content != "" {
		turn.LogLines = append(turn.LogLines, proto.AgentLogLine(a.name, turn.Content))
	}

	a.logger.Debug("session %s role %s produced %d chars, %d tool calls",
		a.sessionID, a.spec.ID, len(resp.Content), len(resp.ToolCalls))
	return turn, nil
}

func (a *Agent) systemPrompt() string {
	doc := a.tools.PromptDocumentation()
	if doc == "" {
		return a.spec.Prompt
	}
	return a.spec.Prompt + "\n\n" + doc
}

// convertTranscript maps session transcript entries to the neutral
// completion format. Every agent's output becomes an assistant message so
// each role sees the whole team conversation.
func convertTranscript(transcript []proto.Message) []llm.CompletionMessage {
	messages := make([]llm.CompletionMessage, 0, len(transcript))
	for i := range transcript {
		msg := &transcript[i]
		switch msg.Role {
		case proto.RoleHuman:
			messages = append(messages, llm.CompletionMessage{
				Role:    llm.RoleUser,
				Content: msg.Content,
			})
		case proto.RoleAgent:
			content := msg.Content
			if msg.Name != "" && content != "" {
				content = msg.Name + ": " + content
			}
			messages = append(messages, llm.CompletionMessage{
				Role:      llm.RoleAssistant,
				Content:   content,
				ToolCalls: msg.ToolCalls,
			})
		case proto.RoleTool:
			messages = append(messages, llm.CompletionMessage{
				Role:        llm.RoleTool,
				ToolResults: msg.ToolResults,
			})
		}
	}
	return messages
}
