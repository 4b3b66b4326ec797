package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersAllSeries(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	if m.LLMRequestDuration == nil || m.LLMRequestCounter == nil {
		t.Fatalf("expected LLM metrics to be initialized")
	}
	if m.ToolExecutionCounter == nil || m.ToolExecutionDuration == nil {
		t.Fatalf("expected tool metrics to be initialized")
	}
	if m.ActiveSessions == nil || m.SessionStallAlerts == nil || m.AnomalyAlerts == nil {
		t.Fatalf("expected session/anomaly metrics to be initialized")
	}
	if m.InterventionsTotal == nil || m.InterventionDuration == nil {
		t.Fatalf("expected intervention metrics to be initialized")
	}
	if m.BatchStepsTotal == nil {
		t.Fatalf("expected batch metrics to be initialized")
	}
}

func TestMetricsLabelsDoNotPanic(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	m.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-opus", "success").Inc()
	m.ToolExecutionCounter.WithLabelValues("list_files", "success").Inc()
	m.AnomalyAlerts.WithLabelValues("session_stall", "high").Inc()
	m.InterventionsTotal.WithLabelValues("prompt_injection", "success").Inc()
	m.BatchStepsTotal.WithLabelValues("success").Inc()
	m.ActiveSessions.Inc()
	m.SessionStallAlerts.Inc()
}
