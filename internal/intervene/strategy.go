package intervene

import (
	"context"

	"github.com/haasonsaas/aiwhisperer/internal/monitor"
)

// Strategy is one of the recovery actions the Intervention Engine can run
// against a stalled or misbehaving session (spec.md §4.6).
type Strategy string

const (
	StrategyPromptInjection Strategy = "prompt_injection"
	StrategySessionRestart  Strategy = "session_restart"
	StrategyStateReset      Strategy = "state_reset"
	StrategyToolRetry       Strategy = "tool_retry"
	StrategyPythonAnalysis  Strategy = "python_analysis"
	StrategyEscalate        Strategy = "escalate"
)

// Outcome is the result of one strategy attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailure   Outcome = "failure"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeEscalated Outcome = "escalated"
)

// strategyTable is spec.md §4.6's "Alert → strategies" table, strategies
// tried in the listed order.
var strategyTable = map[monitor.AnomalyKind][]Strategy{
	monitor.AnomalySessionStall:  {StrategyPromptInjection, StrategySessionRestart},
	monitor.AnomalyToolLoop:      {StrategyStateReset, StrategyEscalate},
	monitor.AnomalyHighErrorRate: {StrategyToolRetry, StrategyPythonAnalysis},
	monitor.AnomalySlowResponse:  {StrategyPythonAnalysis, StrategyEscalate},
	monitor.AnomalyMemorySpike:   {StrategyStateReset, StrategySessionRestart},
}

// StrategiesFor returns the ordered strategy list for an alert kind, or
// nil if the kind has none configured.
func StrategiesFor(kind monitor.AnomalyKind) []Strategy {
	return strategyTable[kind]
}

// SessionController is the narrow view into a live session the
// Intervention Engine needs to carry out a strategy. Session lifetime
// management isn't one of SPEC_FULL.md's named components, so this
// interface lets intervene depend on a capability instead of a concrete
// session manager.
type SessionController interface {
	// InjectMessage delivers content into sessionID's AI Loop as a
	// system-privileged user-role message (spec.md §4.6
	// prompt_injection/state_reset).
	InjectMessage(ctx context.Context, sessionID, content string) error

	// Restart stops sessionID's loop and replaces it with a new loop over
	// the same context (spec.md §4.6 session_restart; Open Question
	// decision in DESIGN.md). The new loop is not started by Restart.
	Restart(ctx context.Context, sessionID string) error

	// RunAnalysisScript runs a pre-canned diagnostic script against the
	// session's recent logs (spec.md §4.6 python_analysis/tool_retry),
	// returning a human-readable summary.
	RunAnalysisScript(ctx context.Context, sessionID string) (string, error)
}

// promptInjectionTemplates are rotated by prior-intervention count, per
// spec.md §4.6 "templates rotated by prior-intervention count".
var promptInjectionTemplates = []string{
	"It looks like the conversation has stalled. Please continue with the task, or explain what you're blocked on.",
	"No progress has been observed for a while. Summarize what's been done so far and proceed with the next concrete step.",
	"This session appears stuck. If a tool call is failing, try a different approach; otherwise continue the task.",
}

func promptInjectionTemplate(priorCount int) string {
	if len(promptInjectionTemplates) == 0 {
		return ""
	}
	return promptInjectionTemplates[priorCount%len(promptInjectionTemplates)]
}

const stateResetMessage = "Summarize the current state of this task in a few sentences, then continue."

const toolRetryMessage = "The previous tool call did not succeed. Review the error and try again with different parameters."
