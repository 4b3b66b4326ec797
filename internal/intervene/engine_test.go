package intervene

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/monitor"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
)

type fakeController struct {
	mu           sync.Mutex
	injectErr    error
	restartErr   error
	analysisErr  error
	injectCalls  int
	restartCalls int
}

func (f *fakeController) InjectMessage(ctx context.Context, sessionID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injectCalls++
	return f.injectErr
}

func (f *fakeController) Restart(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	return f.restartErr
}

func (f *fakeController) RunAnalysisScript(ctx context.Context, sessionID string) (string, error) {
	return "analysis complete", f.analysisErr
}

func testConfig() Config {
	return Config{
		RetryDelay:          time.Millisecond,
		StrategyTimeout:     time.Second,
		PostConditionDelay:  time.Millisecond,
		MaxRestartAttempts:  2,
		FailureThreshold:    2,
		RecentFailureWindow: 5,
	}
}

func TestHandleStopsOnFirstSuccess(t *testing.T) {
	controller := &fakeController{}
	engine := New(controller, nil, nil, testConfig())

	alert := monitor.Alert{Kind: monitor.AnomalySessionStall, SessionID: "s1"}
	engine.Handle(context.Background(), alert)

	records := engine.History("s1")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].Strategy != StrategyPromptInjection || records[0].Outcome != OutcomePartial {
		t.Fatalf("expected prompt_injection/partial (no monitor wired), got %+v", records[0])
	}
	if controller.injectCalls != 1 {
		t.Fatalf("expected exactly 1 InjectMessage call, got %d", controller.injectCalls)
	}
}

func TestHandleRetriesThenEscalates(t *testing.T) {
	controller := &fakeController{injectErr: errors.New("inject failed"), restartErr: errors.New("restart failed")}
	engine := New(controller, nil, nil, testConfig())

	alert := monitor.Alert{Kind: monitor.AnomalySessionStall, SessionID: "s1"}
	engine.Handle(context.Background(), alert)

	records := engine.History("s1")
	if len(records) != 3 {
		t.Fatalf("expected 3 records (2 strategies + escalation), got %d: %+v", len(records), records)
	}
	if records[0].Strategy != StrategyPromptInjection || records[0].Outcome != OutcomeFailure {
		t.Fatalf("expected prompt_injection/failure first, got %+v", records[0])
	}
	if records[1].Strategy != StrategySessionRestart || records[1].Outcome != OutcomeFailure {
		t.Fatalf("expected session_restart/failure second, got %+v", records[1])
	}
	if records[2].Outcome != OutcomeEscalated {
		t.Fatalf("expected final record to be escalated, got %+v", records[2])
	}
}

func TestHandleSkipsStrategyAfterRepeatedFailures(t *testing.T) {
	controller := &fakeController{}
	engine := New(controller, nil, nil, testConfig())

	alert := monitor.Alert{Kind: monitor.AnomalyHighErrorRate, SessionID: "s1"}
	// Pre-seed 2 prior tool_retry failures so the skip rule trips.
	engine.record(alert, StrategyToolRetry, OutcomeFailure, 0)
	engine.record(alert, StrategyToolRetry, OutcomeFailure, 0)

	engine.Handle(context.Background(), alert)

	records := engine.History("s1")
	// seeded 2 + skipped tool_retry + python_analysis (succeeds, no monitor => partial)
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d: %+v", len(records), records)
	}
	if records[2].Strategy != StrategyToolRetry || records[2].Outcome != OutcomeSkipped {
		t.Fatalf("expected tool_retry to be skipped on 3rd attempt, got %+v", records[2])
	}
	if records[3].Strategy != StrategyPythonAnalysis {
		t.Fatalf("expected python_analysis to run next, got %+v", records[3])
	}
}

func TestAllowRestartCapsAtMaxAttempts(t *testing.T) {
	controller := &fakeController{}
	engine := New(controller, nil, nil, Config{MaxRestartAttempts: 2})

	if !engine.allowRestart("s1") {
		t.Fatalf("expected first restart to be allowed")
	}
	if !engine.allowRestart("s1") {
		t.Fatalf("expected second restart to be allowed")
	}
	if engine.allowRestart("s1") {
		t.Fatalf("expected third restart to be denied")
	}
}

func TestHandleEscalateStrategyRecordsEscalatedOutcome(t *testing.T) {
	controller := &fakeController{injectErr: errors.New("reset failed")}
	engine := New(controller, nil, nil, testConfig())

	alert := monitor.Alert{Kind: monitor.AnomalyToolLoop, SessionID: "s1"}
	engine.Handle(context.Background(), alert)

	records := engine.History("s1")
	if len(records) != 2 {
		t.Fatalf("expected 2 records (state_reset failure + escalate), got %d: %+v", len(records), records)
	}
	if records[1].Strategy != StrategyEscalate || records[1].Outcome != OutcomeEscalated {
		t.Fatalf("expected escalate/escalated as final record, got %+v", records[1])
	}
}

func TestHandleRespectsInterventionCap(t *testing.T) {
	controller := &fakeController{injectErr: errors.New("fail")}
	config := testConfig()
	config.MaxInterventionsPerSession = 1
	recorder := observability.NewEventRecorder(observability.NewMemoryEventStore(50), nil)
	engine := New(controller, nil, recorder, config)

	alert := monitor.Alert{Kind: monitor.AnomalyHighErrorRate, SessionID: "s1"}
	engine.record(alert, StrategyToolRetry, OutcomeFailure, 0)

	engine.Handle(context.Background(), alert)

	records := engine.History("s1")
	if len(records) != 1 {
		t.Fatalf("expected no new records once at cap, got %d: %+v", len(records), records)
	}
}
