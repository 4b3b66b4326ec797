package monitor

import (
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

// Metrics is a snapshot of one session's bookkeeping (spec.md §3 "Session
// Metrics"): cumulative counters plus bounded response-time/memory
// sample windows. Callers get a copy via Monitor.Metrics; the live
// instance lives inside sessionState and is never shared directly.
type Metrics struct {
	SessionID          string
	StartTime          time.Time
	LastActivity       time.Time
	MessageCount       int
	ToolExecutionCount int
	ErrorCount         int
	InterventionCount  int
	ActiveTools        []string
	ResponseTimesMs    []float64
	MemorySamples      []float64

	// MemoryBaseline is the mean of the first MemoryBaselineSamples
	// memory samples ever observed for this session, frozen once that
	// many samples have arrived (spec.md §4.5 "memory_spike").
	MemoryBaseline    float64
	MemoryBaselineSet bool
}

// AvgResponseMs is the mean of the bounded response-time window.
func (m Metrics) AvgResponseMs() float64 {
	if len(m.ResponseTimesMs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.ResponseTimesMs {
		sum += v
	}
	return sum / float64(len(m.ResponseTimesMs))
}

// StallDuration is now minus the session's last observed activity.
func (m Metrics) StallDuration(now time.Time) time.Duration {
	if m.LastActivity.IsZero() {
		return 0
	}
	return now.Sub(m.LastActivity)
}

// ErrorRate is error_count/message_count, 0 when no messages have been
// observed yet.
func (m Metrics) ErrorRate() float64 {
	if m.MessageCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.MessageCount)
}

// sessionState is the Monitor's live, mutable per-session bookkeeping:
// cumulative counters folded in from newly observed events each tick,
// plus the bounded sample windows and the watcher's cancel function.
type sessionState struct {
	sessionID         string
	startTime         time.Time
	lastActivity      time.Time
	messageCount      int
	toolCount         int
	errorCount        int
	interventionCount int
	activeTools       map[string]struct{}
	responseTimes     *ring
	memorySamples     *ring

	memoryBaselineRaw []float64 // first N memory samples, frozen once full
	memoryBaseline    float64
	memoryBaselineSet bool

	lastProcessed time.Time // high-water mark so repeated ticks don't double-count events
}

func newSessionState(sessionID string, responseWindow, memoryWindow int) *sessionState {
	return &sessionState{
		sessionID:     sessionID,
		startTime:     time.Now(),
		activeTools:   make(map[string]struct{}),
		responseTimes: newRing(responseWindow),
		memorySamples: newRing(memoryWindow),
	}
}

// recordMemorySample appends v to the bounded memory-sample window and, if
// the session's fixed baseline isn't frozen yet, folds v into the first
// baselineN samples.
func (s *sessionState) recordMemorySample(v float64, baselineN int) {
	s.memorySamples.Add(v)
	if s.memoryBaselineSet || baselineN <= 0 {
		return
	}
	if len(s.memoryBaselineRaw) < baselineN {
		s.memoryBaselineRaw = append(s.memoryBaselineRaw, v)
	}
	if len(s.memoryBaselineRaw) == baselineN {
		var sum float64
		for _, x := range s.memoryBaselineRaw {
			sum += x
		}
		s.memoryBaseline = sum / float64(baselineN)
		s.memoryBaselineSet = true
	}
}

func (s *sessionState) snapshot() Metrics {
	tools := make([]string, 0, len(s.activeTools))
	for t := range s.activeTools {
		tools = append(tools, t)
	}
	return Metrics{
		SessionID:          s.sessionID,
		StartTime:          s.startTime,
		LastActivity:       s.lastActivity,
		MessageCount:       s.messageCount,
		ToolExecutionCount: s.toolCount,
		ErrorCount:         s.errorCount,
		InterventionCount:  s.interventionCount,
		ActiveTools:        tools,
		ResponseTimesMs:    s.responseTimes.Values(),
		MemorySamples:      s.memorySamples.Values(),
		MemoryBaseline:     s.memoryBaseline,
		MemoryBaselineSet:  s.memoryBaselineSet,
	}
}

// fold incorporates every event strictly newer than the session's
// high-water mark into the cumulative counters, then advances the mark.
// Pending request-start timestamps (keyed by task) let a subsequent
// ai_response_received compute a response time sample.
func (s *sessionState) fold(events []*observability.Event, pendingRequests map[string]time.Time) {
	for _, e := range events {
		if !e.Timestamp.After(s.lastProcessed) {
			continue
		}
		s.lastActivity = e.Timestamp

		switch e.Type {
		case observability.EventAIRequestPrepared:
			pendingRequests[e.TaskID] = e.Timestamp

		case observability.EventAIResponseReceived:
			s.messageCount++
			if started, ok := pendingRequests[e.TaskID]; ok {
				s.responseTimes.Add(float64(e.Timestamp.Sub(started).Milliseconds()))
				delete(pendingRequests, e.TaskID)
			}

		case observability.EventToolExecutionEnd:
			s.toolCount++
			if e.ToolName != "" {
				s.activeTools[e.ToolName] = struct{}{}
			}
			if ok, present := e.Data["ok"].(bool); present && !ok {
				s.errorCount++
			}

		case observability.EventAILoopErrorOccurred:
			s.errorCount++
		}
	}
	if len(events) > 0 {
		last := events[len(events)-1].Timestamp
		if last.After(s.lastProcessed) {
			s.lastProcessed = last
		}
	}
}
