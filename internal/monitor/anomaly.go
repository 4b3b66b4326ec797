package monitor

import (
	"fmt"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// AnomalyKind enumerates the five detectors spec.md §4.5 runs, in the
// fixed order they're evaluated.
type AnomalyKind string

const (
	AnomalySessionStall  AnomalyKind = "session_stall"
	AnomalyToolLoop      AnomalyKind = "tool_loop"
	AnomalyHighErrorRate AnomalyKind = "high_error_rate"
	AnomalySlowResponse  AnomalyKind = "slow_response"
	AnomalyMemorySpike   AnomalyKind = "memory_spike"
)

// Severity is an alert's urgency, per spec.md §3 "Anomaly Alert".
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is one anomaly detector's finding for a session.
type Alert struct {
	Kind                 AnomalyKind
	Severity             Severity
	SessionID            string
	Message              string
	Details              map[string]any
	RequiresIntervention bool
	DetectedAt           time.Time
}

// detect runs every anomaly detector in spec.md §4.5's fixed order
// against the session's current metrics and its last-50-event window,
// returning every alert that fires this tick.
func (m *Monitor) detect(sessionID string, metrics Metrics, recentEvents []*observability.Event, now time.Time) []Alert {
	var alerts []Alert

	if a, ok := m.detectStall(sessionID, metrics, now); ok {
		alerts = append(alerts, a)
	}
	if a, ok := m.detectToolLoop(sessionID, recentEvents); ok {
		alerts = append(alerts, a)
	}
	if a, ok := m.detectHighErrorRate(sessionID, metrics); ok {
		alerts = append(alerts, a)
	}
	if a, ok := m.detectSlowResponse(sessionID, metrics); ok {
		alerts = append(alerts, a)
	}
	if a, ok := m.detectMemorySpike(sessionID, metrics); ok {
		alerts = append(alerts, a)
	}

	return alerts
}

func (m *Monitor) detectStall(sessionID string, metrics Metrics, now time.Time) (Alert, bool) {
	stall := metrics.StallDuration(now)
	if metrics.LastActivity.IsZero() || stall <= m.config.StallThreshold {
		return Alert{}, false
	}
	return Alert{
		Kind:                 AnomalySessionStall,
		Severity:             SeverityHigh,
		SessionID:            sessionID,
		Message:              fmt.Sprintf("session has been stalled for %s", stall.Round(time.Second)),
		Details:              map[string]any{"stall_duration_ms": stall.Milliseconds()},
		RequiresIntervention: true,
		DetectedAt:           now,
	}, true
}

func (m *Monitor) detectToolLoop(sessionID string, recentEvents []*observability.Event) (Alert, bool) {
	window := recentEvents
	if len(window) > m.config.ToolLoopEventWindow {
		window = window[len(window)-m.config.ToolLoopEventWindow:]
	}

	counts := make(map[string]int)
	for _, e := range window {
		if e.Type != observability.EventToolExecutionStart {
			continue
		}
		counts[e.ToolName]++
	}

	for tool, count := range counts {
		if count >= m.config.ToolLoopThreshold {
			return Alert{
				Kind:                 AnomalyToolLoop,
				Severity:             SeverityCritical,
				SessionID:            sessionID,
				Message:              fmt.Sprintf("tool %q invoked %d times in the last %d events", tool, count, len(window)),
				Details:              map[string]any{"tool": tool, "count": count, "window": len(window)},
				RequiresIntervention: true,
				DetectedAt:           time.Now(),
			}, true
		}
	}
	return Alert{}, false
}

func (m *Monitor) detectHighErrorRate(sessionID string, metrics Metrics) (Alert, bool) {
	if metrics.MessageCount == 0 {
		return Alert{}, false
	}
	rate := metrics.ErrorRate()
	if rate <= m.config.HighErrorRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Kind:                 AnomalyHighErrorRate,
		Severity:             SeverityHigh,
		SessionID:            sessionID,
		Message:              fmt.Sprintf("error rate %.2f exceeds threshold %.2f", rate, m.config.HighErrorRateThreshold),
		Details:              map[string]any{"error_rate": rate, "error_count": metrics.ErrorCount, "message_count": metrics.MessageCount},
		RequiresIntervention: true,
		DetectedAt:           time.Now(),
	}, true
}

func (m *Monitor) detectSlowResponse(sessionID string, metrics Metrics) (Alert, bool) {
	if len(metrics.ResponseTimesMs) == 0 {
		return Alert{}, false
	}
	avg := metrics.AvgResponseMs()
	baseline, seeded := m.baselines.Get(sessionID, "avg_response_ms")
	m.baselines.Observe(sessionID, "avg_response_ms", avg, m.config.EMAAlpha)
	if !seeded || baseline <= 0 || avg <= m.config.SlowResponseMultiplier*baseline {
		return Alert{}, false
	}
	return Alert{
		Kind:       AnomalySlowResponse,
		Severity:   SeverityMedium,
		SessionID:  sessionID,
		Message:    fmt.Sprintf("average response time %.0fms exceeds %.1fx baseline %.0fms", avg, m.config.SlowResponseMultiplier, baseline),
		Details:    map[string]any{"avg_response_ms": avg, "baseline_ms": baseline},
		DetectedAt: time.Now(),
	}, true
}

func (m *Monitor) detectMemorySpike(sessionID string, metrics Metrics) (Alert, bool) {
	if !metrics.MemoryBaselineSet || metrics.MemoryBaseline <= 0 || len(metrics.MemorySamples) == 0 {
		return Alert{}, false
	}

	current := metrics.MemorySamples[len(metrics.MemorySamples)-1]
	if current <= m.config.MemorySpikeMultiplier*metrics.MemoryBaseline {
		return Alert{}, false
	}
	return Alert{
		Kind:       AnomalyMemorySpike,
		Severity:   SeverityMedium,
		SessionID:  sessionID,
		Message:    fmt.Sprintf("memory sample %.0f exceeds %.1fx baseline %.0f", current, m.config.MemorySpikeMultiplier, metrics.MemoryBaseline),
		Details:    map[string]any{"current": current, "baseline": metrics.MemoryBaseline},
		DetectedAt: time.Now(),
	}, true
}
