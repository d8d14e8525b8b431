// Package google provides the Gemini client implementation for the llm
// interface.
package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"devteam/pkg/agent/llm"
	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// GeminiClient wraps the Google GenAI client to implement llm.Client.
// One instance is shared across concurrently advancing sessions, so the
// lazy construction is guarded.
type GeminiClient struct {
	mu     sync.Mutex
	client *genai.Client
	apiKey string
}

// NewClient creates a Gemini client. The underlying genai client requires
// a context, so construction is deferred to the first Complete call.
func NewClient(apiKey string) llm.Client {
	return &GeminiClient{apiKey: apiKey}
}

// Provider returns the provider identity.
func (g *GeminiClient) Provider() config.Provider {
	return config.ProviderGoogle
}

// ensureClient constructs the genai client on first use. A failed
// construction is retried on the next call rather than cached.
func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, llmerrors.NewError(llmerrors.ErrorTypeAuth, fmt.Sprintf("failed to create Gemini client: %v", err))
		}
		g.client = client
	}
	return g.client, nil
}

// Complete implements llm.Client.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	contents, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at config load
	maxTokens := int32(in.MaxTokens)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}

	if in.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: in.SystemPrompt}},
		}
	}

	if len(in.Tools) > 0 {
		cfg.Tools = []*genai.Tool{
			{FunctionDeclarations: convertToolsToGemini(in.Tools)},
		}
	}

	result, err := client.Models.GenerateContent(ctx, in.Model, contents, cfg)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	if result == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	response := &llm.CompletionResponse{
		Content: result.Text(),
	}
	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = convertFunctionCallsFromGemini(functionCalls)
	}
	if result.UsageMetadata != nil {
		response.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	if response.Content == "" && len(response.ToolCalls) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini returned neither text nor tool calls")
	}
	return response, nil
}

// convertMessagesToGemini converts the neutral message format to Gemini
// Content values. Gemini uses "model" for the assistant role and folds
// tool results into user-role FunctionResponse parts.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	var contents []*genai.Content
	for i := range messages {
		msg := &messages[i]

		var role string
		switch msg.Role {
		case llm.RoleUser, llm.RoleTool:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Args,
				},
			})
		}

		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			if tr.Name == "" {
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name: tr.Name,
					Response: map[string]interface{}{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents, nil
}

// convertToolsToGemini converts tool definitions to Gemini function
// declarations.
func convertToolsToGemini(toolDefs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(toolDefs))

	for i := range toolDefs {
		tool := &toolDefs[i]

		properties := make(map[string]*genai.Schema)
		//nolint:gocritic // rangeValCopy: Property size acceptable here
		for propName, prop := range tool.InputSchema.Properties {
			properties[propName] = convertPropertyToGeminiSchema(&prop)
		}

		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.InputSchema.Required,
			},
		}
	}
	return declarations
}

// convertPropertyToGeminiSchema recursively converts a Property to Gemini
// schema format.
func convertPropertyToGeminiSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{
		Description: prop.Description,
	}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertyToGeminiSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema)
			for name, childProp := range prop.Properties {
				if childProp != nil {
					properties[name] = convertPropertyToGeminiSchema(childProp)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	return schema
}

// convertFunctionCallsFromGemini converts Gemini function calls to the
// neutral format. Gemini may omit call IDs; the function name stands in
// so results can be matched back.
func convertFunctionCallsFromGemini(calls []*genai.FunctionCall) []proto.ToolCall {
	toolCalls := make([]proto.ToolCall, len(calls))
	for i := range calls {
		call := calls[i]
		id := call.ID
		if id == "" {
			id = call.Name
		}
		toolCalls[i] = proto.ToolCall{
			ID:   id,
			Name: call.Name,
			Args: call.Args,
		}
	}
	return toolCalls
}
