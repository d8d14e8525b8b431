// Package metrics exposes Prometheus instrumentation for the orchestrator
// and a query service for aggregating per-session numbers from a
// Prometheus server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//nolint:gochecknoglobals // standard prometheus collector registration
var (
	// ModelCalls counts LLM completions by provider, model, and outcome.
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devteam_model_calls_total",
		Help: "LLM completion calls by provider, model, and outcome.",
	}, []string{"provider", "model", "outcome"})

	// ModelCallDuration observes LLM completion latency.
	ModelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devteam_model_call_duration_seconds",
		Help:    "LLM completion latency by provider.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})

	// Tokens counts tokens by session, model, and direction (prompt or
	// completion). The session label feeds the query service aggregates.
	Tokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devteam_tokens_total",
		Help: "Token usage by session, model, and type.",
	}, []string{"session_id", "model", "type"})

	// ToolCalls counts tool executions by tool name and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devteam_tool_calls_total",
		Help: "Tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	// ActiveSessions tracks sessions currently held in the store.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devteam_active_sessions",
		Help: "Sessions currently held in the store.",
	})

	// RunsCompleted counts runs reaching a resting state, by status.
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devteam_runs_completed_total",
		Help: "Runs reaching a resting state, labeled by final status.",
	}, []string{"status"})

	// QARework counts developer rework iterations forced by QA rejections.
	QARework = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devteam_qa_rework_total",
		Help: "Developer rework iterations triggered by QA rejection.",
	})
)

// RecordModelCall records one completion attempt.
func RecordModelCall(provider, model string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ModelCalls.WithLabelValues(provider, model, outcome).Inc()
	ModelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokens records token usage for one completion.
func RecordTokens(sessionID, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		Tokens.WithLabelValues(sessionID, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		Tokens.WithLabelValues(sessionID, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolCall records one tool execution.
func RecordToolCall(tool string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
