// Package openaiofficial provides the OpenAI client implementation using
// the official OpenAI Go package and its Responses API.
package openaiofficial

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.Client.
type OfficialClient struct {
	client openai.Client
}

// NewClient creates an OpenAI client using the official Go package.
func NewClient(apiKey string) llm.Client {
	return &OfficialClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider identity.
func (o *OfficialClient) Provider() config.Provider {
	return config.ProviderOpenAI
}

// convertPropertyToSchema recursively converts a Property to OpenAI schema
// format.
func convertPropertyToSchema(prop *tools.Property) map[string]interface{} {
	schema := map[string]interface{}{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}
	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]interface{})
		for name, childProp := range prop.Properties {
			if childProp != nil {
				properties[name] = convertPropertyToSchema(childProp)
			}
		}
		schema["properties"] = properties
	}
	return schema
}

// renderInput flattens the conversation into a single Responses API input
// string. Tool calls and results are rendered as labeled JSON lines.
func renderInput(systemPrompt string, messages []llm.CompletionMessage) string {
	var b strings.Builder
	if systemPrompt != "" {
		fmt.Fprintf(&b, "System: %s\n\n", systemPrompt)
	}
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleUser:
			fmt.Fprintf(&b, "User: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				args, _ := json.Marshal(tc.Args)
				fmt.Fprintf(&b, "Assistant called tool %s: %s\n\n", tc.Name, string(args))
			}
		case llm.RoleTool:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				fmt.Fprintf(&b, "Tool %s returned: %s\n\n", tr.Name, tr.Content)
			}
		}
	}
	return b.String()
}

// Complete implements llm.Client using the Responses API.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (*llm.CompletionResponse, error) {
	inputText := renderInput(in.SystemPrompt, in.Messages)

	params := responses.ResponseNewParams{
		Model:           in.Model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	if len(in.Tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties := make(map[string]interface{})
			for name, prop := range tool.InputSchema.Properties {
				properties[name] = convertPropertyToSchema(&prop)
			}

			toolParams[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters: openai.FunctionParameters(map[string]interface{}{
						"type":       "object",
						"properties": properties,
						"required":   tool.InputSchema.Required,
					}),
				},
			}
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	var toolCalls []proto.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var args map[string]interface{}
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &args); err != nil {
				continue
			}
		}
		toolCalls = append(toolCalls, proto.ToolCall{
			ID:   funcItem.ID,
			Name: funcItem.Name,
			Args: args,
		})
	}

	content := resp.OutputText()
	if content == "" && len(toolCalls) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned neither text nor tool calls")
	}

	return &llm.CompletionResponse{
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

// classifyError maps OpenAI SDK errors to structured error types.
func classifyError(err error) *llmerrors.Error {
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "unauthorized"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limit exceeded")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "invalid"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "bad request")
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"), strings.Contains(errStr, "eof"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server or network error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
	}
}
