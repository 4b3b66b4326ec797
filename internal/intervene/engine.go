// Package intervene implements the Intervention Engine (spec.md §4.6):
// strategy selection, execution, success tracking, and escalation for
// anomalies the Session Monitor raises.
package intervene

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aiwhisperer/internal/backoff"
	"github.com/haasonsaas/aiwhisperer/internal/monitor"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// Config controls the Intervention Engine's retry/escalation policy.
// Zero-value fields take the defaults applied by withDefaults.
type Config struct {
	// MaxInterventionsPerSession caps how many intervention records a
	// single session may accumulate (spec.md §3 "at most N interventions
	// per session"). Default 10.
	MaxInterventionsPerSession int

	// RecentFailureWindow is how many of a session's most recent
	// intervention records are inspected for the skip-on-repeat-failure
	// rule. Default 5.
	RecentFailureWindow int

	// FailureThreshold is the same-strategy failure count within that
	// window that causes a strategy to be skipped. Default 2.
	FailureThreshold int

	// RetryDelay is the wait between strategies after a failure. Default
	// 2s.
	RetryDelay time.Duration

	// StrategyTimeout bounds a single strategy's execution.
	StrategyTimeout time.Duration

	// PostConditionDelay is how long to wait before re-inspecting the
	// session for the success post-condition check. Default 2s.
	PostConditionDelay time.Duration

	// MaxRestartAttempts caps session_restart attempts per session.
	// Default 2.
	MaxRestartAttempts int
}

func (c Config) withDefaults() Config {
	if c.MaxInterventionsPerSession <= 0 {
		c.MaxInterventionsPerSession = 10
	}
	if c.RecentFailureWindow <= 0 {
		c.RecentFailureWindow = 5
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = 30 * time.Second
	}
	if c.PostConditionDelay <= 0 {
		c.PostConditionDelay = 2 * time.Second
	}
	if c.MaxRestartAttempts <= 0 {
		c.MaxRestartAttempts = 2
	}
	return c
}

// Record is one strategy attempt's outcome, spec.md §3's "Intervention
// Record".
type Record struct {
	ID         string
	SessionID  string
	AlertKind  monitor.AnomalyKind
	Strategy   Strategy
	Timestamp  time.Time
	Outcome    Outcome
	Duration   time.Duration
}

// StrategyStats are the running success-rate counters spec.md §4.6
// requires per strategy.
type StrategyStats struct {
	Total   int
	Success int
	Partial int
	Failure int
}

func (s StrategyStats) observe(outcome Outcome) StrategyStats {
	s.Total++
	switch outcome {
	case OutcomeSuccess:
		s.Success++
	case OutcomePartial:
		s.Partial++
	case OutcomeFailure:
		s.Failure++
	}
	return s
}

// Engine selects, runs, and tracks recovery strategies for anomaly alerts.
// Subscribe Engine.Handle to a Monitor to wire the two together.
type Engine struct {
	config     Config
	controller SessionController
	monitor    *monitor.Monitor
	recorder   *observability.EventRecorder

	mu              sync.Mutex
	history         map[string][]Record
	restartAttempts map[string]int
	stats           map[Strategy]StrategyStats
}

// New builds an Engine. monitor is optional: without it, strategies can't
// be verified by post-condition check and settle as OutcomePartial.
func New(controller SessionController, mon *monitor.Monitor, recorder *observability.EventRecorder, config Config) *Engine {
	return &Engine{
		config:          config.withDefaults(),
		controller:      controller,
		monitor:         mon,
		recorder:        recorder,
		history:         make(map[string][]Record),
		restartAttempts: make(map[string]int),
		stats:           make(map[Strategy]StrategyStats),
	}
}

// Handle runs alert.Kind's configured strategy chain in order, stopping
// on the first verified success and escalating if every strategy fails.
// It is the Engine's Monitor-facing entrypoint (wire it to Monitor.Subscribe).
func (e *Engine) Handle(ctx context.Context, alert monitor.Alert) {
	strategies := StrategiesFor(alert.Kind)
	if len(strategies) == 0 {
		return
	}

	e.mu.Lock()
	atCap := len(e.history[alert.SessionID]) >= e.config.MaxInterventionsPerSession
	priorCount := len(e.history[alert.SessionID])
	e.mu.Unlock()
	if atCap {
		e.recordEscalationEvent(ctx, alert.SessionID, "intervention cap reached, no further strategies attempted")
		return
	}

	resolved := false
	for _, strategy := range strategies {
		if strategy == StrategyEscalate {
			e.record(alert, strategy, OutcomeEscalated, 0)
			e.recordEscalationEvent(ctx, alert.SessionID, "escalated per configured strategy chain for "+string(alert.Kind))
			resolved = true
			break
		}

		if e.recentlyFailed(alert.SessionID, strategy) {
			e.record(alert, strategy, OutcomeSkipped, 0)
			continue
		}

		start := time.Now()
		outcome := e.run(ctx, alert, strategy, priorCount)
		e.record(alert, strategy, outcome, time.Since(start))

		if outcome == OutcomeSuccess || outcome == OutcomePartial {
			resolved = true
			break
		}

		if err := backoff.SleepWithContext(ctx, e.config.RetryDelay); err != nil {
			return
		}
	}

	if !resolved && len(strategies) >= 2 {
		e.record(alert, StrategyEscalate, OutcomeEscalated, 0)
		e.recordEscalationEvent(ctx, alert.SessionID, "all strategies failed for "+string(alert.Kind))
	}
}

// run executes one strategy with a per-strategy timeout and, when a
// Monitor is wired, verifies its post-condition after config.PostConditionDelay.
func (e *Engine) run(ctx context.Context, alert monitor.Alert, strategy Strategy, priorCount int) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, e.config.StrategyTimeout)
	defer cancel()

	var err error
	switch strategy {
	case StrategyPromptInjection:
		err = e.controller.InjectMessage(runCtx, alert.SessionID, promptInjectionTemplate(priorCount))
	case StrategySessionRestart:
		if !e.allowRestart(alert.SessionID) {
			return OutcomeFailure
		}
		err = e.controller.Restart(runCtx, alert.SessionID)
	case StrategyStateReset:
		err = e.controller.InjectMessage(runCtx, alert.SessionID, stateResetMessage)
	case StrategyToolRetry:
		_, err = e.controller.RunAnalysisScript(runCtx, alert.SessionID)
		if err == nil {
			err = e.controller.InjectMessage(runCtx, alert.SessionID, toolRetryMessage)
		}
	case StrategyPythonAnalysis:
		_, err = e.controller.RunAnalysisScript(runCtx, alert.SessionID)
	default:
		return OutcomeFailure
	}
	if err != nil {
		return OutcomeFailure
	}

	if e.monitor == nil {
		return OutcomePartial
	}
	if werr := backoff.SleepWithContext(ctx, e.config.PostConditionDelay); werr != nil {
		return OutcomePartial
	}
	if e.monitor.StillFiring(alert.SessionID, alert.Kind) {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (e *Engine) allowRestart(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restartAttempts[sessionID] >= e.config.MaxRestartAttempts {
		return false
	}
	e.restartAttempts[sessionID]++
	return true
}

// recentlyFailed reports whether strategy failed at least
// config.FailureThreshold times among sessionID's last
// config.RecentFailureWindow intervention records.
func (e *Engine) recentlyFailed(sessionID string, strategy Strategy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := e.history[sessionID]
	if len(records) > e.config.RecentFailureWindow {
		records = records[len(records)-e.config.RecentFailureWindow:]
	}

	failures := 0
	for _, r := range records {
		if r.Strategy == strategy && r.Outcome == OutcomeFailure {
			failures++
		}
	}
	return failures >= e.config.FailureThreshold
}

func (e *Engine) record(alert monitor.Alert, strategy Strategy, outcome Outcome, duration time.Duration) Record {
	rec := Record{
		ID:        uuid.NewString(),
		SessionID: alert.SessionID,
		AlertKind: alert.Kind,
		Strategy:  strategy,
		Timestamp: time.Now(),
		Outcome:   outcome,
		Duration:  duration,
	}

	e.mu.Lock()
	e.history[alert.SessionID] = append(e.history[alert.SessionID], rec)
	e.stats[strategy] = e.stats[strategy].observe(outcome)
	e.mu.Unlock()

	return rec
}

func (e *Engine) recordEscalationEvent(ctx context.Context, sessionID, message string) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, sessionID, observability.EventAILoopErrorOccurred, map[string]any{
		"intervention": "escalated",
		"message":      message,
	})
}

// History returns a copy of sessionID's intervention records, oldest
// first.
func (e *Engine) History(sessionID string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := e.history[sessionID]
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// Stats returns the running success-rate counters for strategy.
func (e *Engine) Stats(strategy Strategy) StrategyStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats[strategy]
}
