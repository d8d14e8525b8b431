// Package ollama provides the client implementation for local models
// served by an Ollama runtime.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client *api.Client
}

// NewClient creates an Ollama client for the given server URL
// (e.g. "http://localhost:11434").
func NewClient(hostURL string) llm.Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
	}
}

// Provider returns the provider identity.
func (o *Client) Provider() config.Provider {
	return config.ProviderOllama
}

// Complete implements llm.Client.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (*llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.SystemPrompt, in.Messages)
	if err != nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	// Model names are configured as "ollama:<model>".
	model := strings.TrimPrefix(in.Model, "ollama:")

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	if len(in.Tools) > 0 {
		req.Tools = convertToolsToOllama(in.Tools)
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	result := &llm.CompletionResponse{
		Content: response.Message.Content,
	}
	if len(response.Message.ToolCalls) > 0 {
		result.ToolCalls = convertToolCallsFromOllama(response.Message.ToolCalls)
	}
	if result.Content == "" && len(result.ToolCalls) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned neither text nor tool calls")
	}
	return result, nil
}

// convertMessagesToOllama converts the neutral message format to Ollama's
// Message format. The system prompt becomes a leading system message; tool
// results become role "tool" messages.
func convertMessagesToOllama(systemPrompt string, messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, api.Message{Role: "system", Content: systemPrompt})
	}

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleTool {
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				result = append(result, api.Message{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		ollamaMsg := api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			ollamaMsg.ToolCalls = make([]api.ToolCall, len(msg.ToolCalls))
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				args := api.NewToolCallFunctionArguments()
				for k, v := range tc.Args {
					args.Set(k, v)
				}
				ollamaMsg.ToolCalls[j] = api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
		}
		result = append(result, ollamaMsg)
	}
	return result, nil
}

// convertToolsToOllama converts tool definitions to Ollama's Tool format.
func convertToolsToOllama(toolDefs []tools.ToolDefinition) api.Tools {
	ollamaTools := make(api.Tools, len(toolDefs))

	for i := range toolDefs {
		td := &toolDefs[i]
		properties := api.NewToolPropertiesMap()
		for name := range td.InputSchema.Properties {
			prop := td.InputSchema.Properties[name]
			properties.Set(name, convertPropertyToOllama(&prop))
		}

		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       td.InputSchema.Type,
					Properties: properties,
					Required:   td.InputSchema.Required,
				},
			},
		}
	}
	return ollamaTools
}

// convertPropertyToOllama converts a tool property to Ollama format.
func convertPropertyToOllama(prop *tools.Property) api.ToolProperty {
	ollamaProp := api.ToolProperty{
		Type:        api.PropertyType{prop.Type},
		Description: prop.Description,
	}

	if len(prop.Enum) > 0 {
		enumVals := make([]any, len(prop.Enum))
		for i, v := range prop.Enum {
			enumVals[i] = v
		}
		ollamaProp.Enum = enumVals
	}

	if prop.Properties != nil {
		nestedProps := make(map[string]api.ToolProperty)
		for name, nestedProp := range prop.Properties {
			nestedProps[name] = convertPropertyToOllama(nestedProp)
		}
		ollamaProp.Items = map[string]any{
			"type":       "object",
			"properties": nestedProps,
		}
	}
	if prop.Items != nil {
		ollamaProp.Items = convertPropertyToOllama(prop.Items)
	}
	return ollamaProp
}

// convertToolCallsFromOllama extracts tool calls from an Ollama response.
func convertToolCallsFromOllama(calls []api.ToolCall) []proto.ToolCall {
	result := make([]proto.ToolCall, len(calls))
	for i := range calls {
		call := &calls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result[i] = proto.ToolCall{
			ID:   id,
			Name: call.Function.Name,
			Args: call.Function.Arguments.ToMap(),
		}
	}
	return result
}

// classifyError converts Ollama errors to structured error types.
func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("Ollama model not found: %v", err))
	case strings.Contains(errStr, "context canceled"), strings.Contains(errStr, "timeout"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("request interrupted: %v", err))
	default:
		return llmerrors.NewError(llmerrors.ErrorTypeUnknown, fmt.Sprintf("Ollama API error: %v", err))
	}
}
