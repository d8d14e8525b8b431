package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated token usage for one session.
type SessionMetrics struct {
	SessionID        string `json:"session_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService queries a Prometheus server for session-level aggregates.
// Optional: the orchestrator works without it when no Prometheus URL is
// configured.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionMetrics retrieves aggregated token usage for one session
// across all roles and models.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	promptQuery := fmt.Sprintf(`sum(devteam_tokens_total{session_id=%q, type="prompt"})`, sessionID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
		metrics.PromptTokens = int64(vector[0].Value)
	}

	completionQuery := fmt.Sprintf(`sum(devteam_tokens_total{session_id=%q, type="completion"})`, sessionID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
		metrics.CompletionTokens = int64(vector[0].Value)
	}

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	return metrics, nil
}

// GetSessionMetricsByModel retrieves token usage broken down by model.
func (q *QueryService) GetSessionMetricsByModel(ctx context.Context, sessionID string) (map[string]*SessionMetrics, error) {
	result := make(map[string]*SessionMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (devteam_tokens_total{session_id=%q})`, sessionID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		metrics := &SessionMetrics{SessionID: sessionID}

		promptQuery := fmt.Sprintf(`sum(devteam_tokens_total{session_id=%q, model=%q, type="prompt"})`, sessionID, modelName)
		promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
			metrics.PromptTokens = int64(vector[0].Value)
		}

		completionQuery := fmt.Sprintf(`sum(devteam_tokens_total{session_id=%q, model=%q, type="completion"})`, sessionID, modelName)
		completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
			metrics.CompletionTokens = int64(vector[0].Value)
		}

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
		result[modelName] = metrics
	}

	return result, nil
}
