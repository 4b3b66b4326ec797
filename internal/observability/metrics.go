package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus series for the AI Loop, Tool Runtime,
// Session Monitor, and Intervention Engine.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM call latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM calls by provider/model/outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveSessions is a gauge of currently active sessions.
	ActiveSessions prometheus.Gauge

	// SessionStallAlerts counts session_stall anomaly alerts fired.
	SessionStallAlerts prometheus.Counter

	// AnomalyAlerts counts alerts by kind and severity.
	// Labels: kind, severity
	AnomalyAlerts *prometheus.CounterVec

	// InterventionsTotal counts interventions by strategy and outcome.
	// Labels: strategy, outcome
	InterventionsTotal *prometheus.CounterVec

	// InterventionDuration measures time spent executing a strategy.
	// Labels: strategy
	InterventionDuration *prometheus.HistogramVec

	// BatchStepsTotal counts batch script steps executed.
	// Labels: status (success|error|skipped)
	BatchStepsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns a Metrics instance against the default
// Prometheus registry. Use NewMetricsWith to register against an isolated
// registry (tests, multiple instances in one process).
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers a Metrics instance against reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiwhisperer_llm_request_duration_seconds",
			Help:    "LLM request latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwhisperer_llm_requests_total",
			Help: "LLM requests by provider/model/status.",
		}, []string{"provider", "model", "status"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwhisperer_tool_executions_total",
			Help: "Tool invocations by tool_name/status.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiwhisperer_tool_execution_duration_seconds",
			Help:    "Tool execution time in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aiwhisperer_active_sessions",
			Help: "Number of sessions with a running AI Loop.",
		}),
		SessionStallAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "aiwhisperer_session_stall_alerts_total",
			Help: "Number of session_stall anomaly alerts fired.",
		}),
		AnomalyAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwhisperer_anomaly_alerts_total",
			Help: "Anomaly alerts by kind/severity.",
		}, []string{"kind", "severity"}),
		InterventionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwhisperer_interventions_total",
			Help: "Interventions by strategy/outcome.",
		}, []string{"strategy", "outcome"}),
		InterventionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiwhisperer_intervention_duration_seconds",
			Help:    "Time spent executing an intervention strategy.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"strategy"}),
		BatchStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwhisperer_batch_steps_total",
			Help: "Batch script steps executed by status.",
		}, []string{"status"}),
	}
}
