// Package anthropic provides the Claude client implementation for the llm
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
	"devteam/pkg/proto"
)

// ClaudeClient wraps the Anthropic API client to implement llm.Client.
type ClaudeClient struct {
	client anthropic.Client
}

// NewClient creates a new Claude client.
func NewClient(apiKey string) llm.Client {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider identity.
func (c *ClaudeClient) Provider() config.Provider {
	return config.ProviderAnthropic
}

// renderMessage flattens a neutral message into plain text. Tool calls and
// results are rendered as labeled JSON so the model keeps full context
// while the messages array stays within Anthropic's strict user/assistant
// alternation rules.
func renderMessage(msg *llm.CompletionMessage) string {
	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		args, _ := json.Marshal(tc.Args)
		parts = append(parts, fmt.Sprintf("[tool call %s] %s", tc.Name, string(args)))
	}
	for i := range msg.ToolResults {
		tr := &msg.ToolResults[i]
		parts = append(parts, fmt.Sprintf("[tool result %s] %s", tr.Name, tr.Content))
	}
	return strings.Join(parts, "\n\n")
}

// ensureAlternation prepares messages for Anthropic API requirements:
// consecutive non-assistant messages merge into single user messages and
// the sequence must start and end with a user message. Role hand-offs
// legitimately leave the transcript ending on an assistant turn, so a
// synthetic user turn is appended rather than rejecting the request.
func ensureAlternation(messages []llm.CompletionMessage) ([]llm.CompletionMessage, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	var merged []llm.CompletionMessage
	var userParts []string

	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.CompletionMessage{
					Role:    llm.RoleUser,
					Content: strings.Join(userParts, "\n\n"),
				})
				userParts = nil
			}
			merged = append(merged, llm.CompletionMessage{
				Role:    llm.RoleAssistant,
				Content: renderMessage(msg),
			})
		} else {
			// User and tool messages both become user turns.
			userParts = append(userParts, renderMessage(msg))
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: strings.Join(userParts, "\n\n"),
		})
	}

	if merged[0].Role != llm.RoleUser {
		return nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		merged = append(merged, llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: "Continue as your role.",
		})
	}
	return merged, nil
}

// Complete implements llm.Client.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (*llm.CompletionResponse, error) {
	alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(in.Model),
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if in.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: in.SystemPrompt,
			Type: "text",
		}}
	}

	if len(in.Tools) > 0 {
		var toolParams []anthropic.ToolUnionParam
		for i := range in.Tools {
			tool := &in.Tools[i]

			var properties any
			if len(tool.InputSchema.Properties) > 0 {
				props := make(map[string]any)
				for name := range tool.InputSchema.Properties {
					prop := tool.InputSchema.Properties[name]
					propMap := map[string]any{"type": prop.Type}
					if prop.Description != "" {
						propMap["description"] = prop.Description
					}
					if len(prop.Enum) > 0 {
						propMap["enum"] = prop.Enum
					}
					props[name] = propMap
				}
				properties = props
			}

			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   tool.InputSchema.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, tool.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var responseText string
	var toolCalls []proto.ToolCall

	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			responseText += textBlock.Text
		case "tool_use":
			toolUseBlock := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUseBlock.Input, &args); err != nil {
				return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "failed to parse tool input")
			}
			toolCalls = append(toolCalls, proto.ToolCall{
				ID:   toolUseBlock.ID,
				Name: toolUseBlock.Name,
				Args: args,
			})
		}
	}

	return &llm.CompletionResponse{
		Content:   responseText,
		ToolCalls: toolCalls,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// classifyError maps Anthropic SDK errors to structured error types.
func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "403"),
		strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "api key"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate"), strings.Contains(errStr, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limit exceeded")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "too large"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "bad request")
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "504"),
		strings.Contains(errStr, "timeout"), strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"), strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server or network error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
	}
}
