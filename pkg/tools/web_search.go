package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SearchResult represents a single search result from any provider.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchProvider defines the interface for web search backends.
type SearchProvider interface {
	// Name returns a human-readable name for the provider.
	Name() string
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// WebSearchTool lets the architect look up current technical information
// beyond the model's training cutoff.
type WebSearchTool struct {
	provider   SearchProvider
	maxResults int
}

// NewWebSearchTool creates a web search tool. With Google Custom Search
// credentials it uses that API; otherwise it falls back to DuckDuckGo's
// instant answer API, which only covers encyclopedic queries.
func NewWebSearchTool(httpClient *http.Client, apiKey, cx string) *WebSearchTool {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var provider SearchProvider
	if apiKey != "" && cx != "" {
		provider = NewGoogleSearchProvider(httpClient, apiKey, cx)
	} else {
		provider = NewDuckDuckGoProvider(httpClient)
	}
	return &WebSearchTool{provider: provider, maxResults: 5}
}

// NewWebSearchToolWithProvider creates a web search tool with a specific
// provider. Used by tests.
func NewWebSearchToolWithProvider(provider SearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider, maxResults: 5}
}

// Name returns the tool name.
func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WebSearchTool) PromptDocumentation() string {
	return `- **web_search** - Search the web for current information
  - Parameters: query (string, REQUIRED)
  - Use to verify library versions, API documentation, or framework choices
  - Returns structured search results with titles, descriptions, and URLs`
}

// Definition returns the tool definition for LLM use.
func (t *WebSearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWebSearch,
		Description: "Search the web for current technical information such as library versions, API documentation, or framework comparisons. Returns search results with titles, descriptions, and URLs.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Search query string (e.g., 'FastAPI vs Flask 2025', 'Python 3.12 new features')",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Exec executes the web search tool.
func (t *WebSearchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string")
	}

	results, err := t.provider.Search(ctx, query, t.maxResults)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err))
	}

	response := map[string]any{
		"status":       "ok",
		"query":        query,
		"provider":     t.provider.Name(),
		"result_count": len(results),
		"results":      results,
	}
	if len(results) == 0 {
		response["note"] = "No results found. Try a different search query or rephrase your question."
	}

	content, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &ExecResult{Content: string(content)}, nil
}

// GoogleSearchProvider implements SearchProvider using Google Custom Search.
type GoogleSearchProvider struct {
	httpClient *http.Client
	apiKey     string
	cx         string
}

// NewGoogleSearchProvider creates a new Google Custom Search provider.
func NewGoogleSearchProvider(httpClient *http.Client, apiKey, cx string) *GoogleSearchProvider {
	return &GoogleSearchProvider{httpClient: httpClient, apiKey: apiKey, cx: cx}
}

// Name returns the provider name.
func (p *GoogleSearchProvider) Name() string {
	return "google"
}

type googleSearchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type googleSearchError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type googleSearchResponse struct {
	Error *googleSearchError `json:"error"`
	Items []googleSearchItem `json:"items"`
}

// Search performs a web search using the Google Custom Search API.
func (p *GoogleSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf(
		"https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&q=%s&num=%d",
		url.QueryEscape(p.apiKey),
		url.QueryEscape(p.cx),
		url.QueryEscape(query),
		maxResults,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var googleResp googleSearchResponse
	if unmarshalErr := json.Unmarshal(body, &googleResp); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}
	if googleResp.Error != nil {
		return nil, fmt.Errorf("API error %d: %s", googleResp.Error.Code, googleResp.Error.Message)
	}

	results := make([]SearchResult, 0, len(googleResp.Items))
	for i := range googleResp.Items {
		item := &googleResp.Items[i]
		results = append(results, SearchResult{
			Title:       item.Title,
			Description: item.Snippet,
			URL:         item.Link,
		})
	}
	return results, nil
}

// DuckDuckGoProvider implements SearchProvider using DuckDuckGo's Instant
// Answer API. Fallback only: it covers encyclopedic queries, not general
// web search.
type DuckDuckGoProvider struct {
	httpClient *http.Client
}

// NewDuckDuckGoProvider creates a new DuckDuckGo provider.
func NewDuckDuckGoProvider(httpClient *http.Client) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{httpClient: httpClient}
}

// Name returns the provider name.
func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
	Results []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"Results"`
}

// Search performs a search using DuckDuckGo's Instant Answer API.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1&skip_disambig=1",
		url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "devteam/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp duckDuckGoResponse
	if unmarshalErr := json.Unmarshal(body, &ddgResp); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}

	var results []SearchResult
	if ddgResp.AbstractText != "" {
		results = append(results, SearchResult{
			Title:       ddgResp.Heading,
			Description: ddgResp.AbstractText,
			URL:         ddgResp.AbstractURL,
		})
	}
	if ddgResp.Answer != "" {
		results = append(results, SearchResult{
			Title:       "Instant Answer",
			Description: ddgResp.Answer,
		})
	}
	for i := range ddgResp.RelatedTopics {
		topic := &ddgResp.RelatedTopics[i]
		if topic.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Description: topic.Text,
				URL:         topic.FirstURL,
			})
		}
	}
	for i := range ddgResp.Results {
		ddgResult := &ddgResp.Results[i]
		if ddgResult.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Description: ddgResult.Text,
				URL:         ddgResult.FirstURL,
			})
		}
	}
	return results, nil
}
