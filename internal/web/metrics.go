package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/munin-ai/munin/pkg/models"
)

// Metrics collects the runtime counters exposed at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	// MessageCounter tracks messages by source and direction.
	// Labels: source (telegram|web), direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM round trips.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates the metric set on its own registry, so multiple
// instances can coexist in one process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munin_messages_total",
				Help: "Messages processed by source and direction",
			},
			[]string{"source", "direction"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munin_tool_executions_total",
				Help: "Tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "munin_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munin_llm_requests_total",
				Help: "LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munin_llm_tokens_total",
				Help: "Tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
	}
}

// ObserveLLMRequest records one completion round trip and its token use.
func (m *Metrics) ObserveLLMRequest(provider, model string, usage models.Usage, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	if usage.InputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(usage.OutputTokens))
	}
}

// ObserveToolExecution records one tool run.
func (m *Metrics) ObserveToolExecution(toolName string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// ObserveMessage records one inbound or outbound message.
func (m *Metrics) ObserveMessage(source, direction string) {
	m.MessageCounter.WithLabelValues(source, direction).Inc()
}
