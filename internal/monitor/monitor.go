// Package monitor implements the Session Monitor (spec.md §4.5): a
// per-session background poller that tails a session's event log,
// recomputes its cumulative metrics, and runs a fixed battery of anomaly
// detectors against the result.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// Config configures a Monitor's polling cadence and detector thresholds.
// All fields have defaults applied by withDefaults when zero.
type Config struct {
	// CheckInterval is how often each watched session is polled.
	CheckInterval time.Duration

	// EventWindow is how many of a session's most recent events are
	// pulled from the EventStore each tick.
	EventWindow int

	// ResponseTimeWindow bounds the response-time ring buffer.
	ResponseTimeWindow int

	// MemoryWindow bounds the memory-sample ring buffer.
	MemoryWindow int

	// StallThreshold is how long a session can go without activity
	// before detectStall fires.
	StallThreshold time.Duration

	// ToolLoopEventWindow is how many recent events detectToolLoop
	// inspects for repeated tool invocations.
	ToolLoopEventWindow int

	// ToolLoopThreshold is the same-tool invocation count within that
	// window that fires detectToolLoop.
	ToolLoopThreshold int

	// HighErrorRateThreshold is the error_count/message_count ratio that
	// fires detectHighErrorRate.
	HighErrorRateThreshold float64

	// SlowResponseMultiplier is how far above the EMA baseline an
	// average response time must be to fire detectSlowResponse.
	SlowResponseMultiplier float64

	// EMAAlpha is the smoothing factor for the response-time baseline.
	EMAAlpha float64

	// MemoryBaselineSamples is how many of a session's earliest memory
	// samples are averaged into its frozen memory_spike baseline.
	MemoryBaselineSamples int

	// MemorySpikeMultiplier is how far above that frozen baseline the
	// latest memory sample must be to fire detectMemorySpike.
	MemorySpikeMultiplier float64
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.EventWindow <= 0 {
		c.EventWindow = 200
	}
	if c.ResponseTimeWindow <= 0 {
		c.ResponseTimeWindow = 100
	}
	if c.MemoryWindow <= 0 {
		c.MemoryWindow = 100
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = 30 * time.Second
	}
	if c.ToolLoopEventWindow <= 0 {
		c.ToolLoopEventWindow = 50
	}
	if c.ToolLoopThreshold <= 0 {
		c.ToolLoopThreshold = 5
	}
	if c.HighErrorRateThreshold <= 0 {
		c.HighErrorRateThreshold = 0.2
	}
	if c.SlowResponseMultiplier <= 0 {
		c.SlowResponseMultiplier = 2.0
	}
	if c.EMAAlpha <= 0 {
		c.EMAAlpha = 0.1
	}
	if c.MemoryBaselineSamples <= 0 {
		c.MemoryBaselineSamples = 5
	}
	if c.MemorySpikeMultiplier <= 0 {
		c.MemorySpikeMultiplier = 1.5
	}
	return c
}

// AlertFunc receives every alert a watched session's detectors raise.
type AlertFunc func(Alert)

// Monitor watches a set of sessions, each on its own polling goroutine,
// and reports anomalies to subscribers as they're detected.
type Monitor struct {
	config    Config
	events    observability.EventStore
	recorder  *observability.EventRecorder
	baselines *baselineStore

	mu          sync.Mutex
	sessions    map[string]*sessionState
	cancels     map[string]context.CancelFunc
	pending     map[string]map[string]time.Time // sessionID -> taskID -> request start
	subscribers []AlertFunc

	wg sync.WaitGroup
}

// New builds a Monitor. events is the session event log the Monitor polls;
// recorder (optional) is used to trace detected alerts back into the
// session's own event log.
func New(events observability.EventStore, recorder *observability.EventRecorder, config Config) *Monitor {
	return &Monitor{
		config:    config.withDefaults(),
		events:    events,
		recorder:  recorder,
		baselines: newBaselineStore(),
		sessions:  make(map[string]*sessionState),
		cancels:   make(map[string]context.CancelFunc),
		pending:   make(map[string]map[string]time.Time),
	}
}

// Subscribe registers fn to receive every alert any watched session
// raises. Not safe to call concurrently with Watch/Unwatch/Shutdown.
func (m *Monitor) Subscribe(fn AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Watch starts polling sessionID on its own ticker, if not already
// watched. Idempotent.
func (m *Monitor) Watch(ctx context.Context, sessionID string) {
	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return
	}
	m.sessions[sessionID] = newSessionState(sessionID, m.config.ResponseTimeWindow, m.config.MemoryWindow)
	m.pending[sessionID] = make(map[string]time.Time)
	sessionCtx, cancel := context.WithCancel(ctx)
	m.cancels[sessionID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runSession(sessionCtx, sessionID)
}

// Unwatch stops polling sessionID and discards its bookkeeping.
func (m *Monitor) Unwatch(sessionID string) {
	m.mu.Lock()
	cancel, exists := m.cancels[sessionID]
	if exists {
		delete(m.cancels, sessionID)
		delete(m.sessions, sessionID)
		delete(m.pending, sessionID)
	}
	m.mu.Unlock()

	if exists {
		cancel()
	}
	m.baselines.Forget(sessionID)
}

// Shutdown stops every watched session and waits for their polling
// goroutines to exit.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	for _, cancel := range m.cancels {
		cancels = append(cancels, cancel)
	}
	m.cancels = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.wg.Wait()
}

// Metrics returns a snapshot of sessionID's current metrics, if watched.
func (m *Monitor) Metrics(sessionID string) (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return Metrics{}, false
	}
	return state.snapshot(), true
}

func (m *Monitor) runSession(ctx context.Context, sessionID string) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(sessionID)
		}
	}
}

// tick folds newly observed events into sessionID's state, samples process
// memory, and runs every anomaly detector against the result, in spec.md
// §4.5's fixed order.
func (m *Monitor) tick(sessionID string) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	pending := m.pending[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	events := m.events.Tail(sessionID, m.config.EventWindow)

	m.mu.Lock()
	state.fold(events, pending)
	state.recordMemorySample(sampleMemoryUsage(), m.config.MemoryBaselineSamples)
	metrics := state.snapshot()
	m.mu.Unlock()

	alerts := m.detect(sessionID, metrics, events, time.Now())
	for _, alert := range alerts {
		m.emitAlert(alert)
	}
}

// StillFiring re-runs kind's detector for sessionID against current
// metrics, used by the Intervention Engine's post-condition checks
// (spec.md §4.6 "verified by post-condition check — e.g. session no
// longer stalled in the next 2s inspection").
func (m *Monitor) StillFiring(sessionID string, kind AnomalyKind) bool {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	metrics := state.snapshot()
	now := time.Now()

	switch kind {
	case AnomalySessionStall:
		_, fires := m.detectStall(sessionID, metrics, now)
		return fires
	case AnomalyToolLoop:
		events := m.events.Tail(sessionID, m.config.EventWindow)
		_, fires := m.detectToolLoop(sessionID, events)
		return fires
	case AnomalyHighErrorRate:
		_, fires := m.detectHighErrorRate(sessionID, metrics)
		return fires
	case AnomalySlowResponse:
		_, fires := m.detectSlowResponse(sessionID, metrics)
		return fires
	case AnomalyMemorySpike:
		_, fires := m.detectMemorySpike(sessionID, metrics)
		return fires
	default:
		return false
	}
}

func (m *Monitor) emitAlert(alert Alert) {
	m.mu.Lock()
	subscribers := make([]AlertFunc, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(alert)
	}

	if m.recorder != nil {
		m.recorder.Record(context.Background(), alert.SessionID, observability.EventAILoopErrorOccurred, map[string]any{
			"anomaly":  string(alert.Kind),
			"severity": string(alert.Severity),
			"message":  alert.Message,
		})
	}
}

// sampleMemoryUsage takes a process-wide heap sample. AIWhisperer runs
// sessions in a single process (spec.md's Non-goals exclude distributed
// execution), so a per-process sample stands in for a per-session one.
func sampleMemoryUsage() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc)
}
