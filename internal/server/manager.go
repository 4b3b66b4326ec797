// Package server wires the already-independent components (C1-C6) into
// named, addressable sessions: each session owns its own Context Store and
// AI Loop, shares the process-wide Tool Runtime, Mailbox, and Session
// Monitor, and is watched by the Intervention Engine through the
// SessionController it implements here.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	ctxstore "github.com/haasonsaas/aiwhisperer/internal/context"
	"github.com/haasonsaas/aiwhisperer/internal/aloop"
	"github.com/haasonsaas/aiwhisperer/internal/errs"
	"github.com/haasonsaas/aiwhisperer/internal/llm"
	"github.com/haasonsaas/aiwhisperer/internal/mailbox"
	"github.com/haasonsaas/aiwhisperer/internal/monitor"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// session is one running or completed AI Loop, plus the bookkeeping the
// Intervention Engine needs to inject messages into it or restart it.
type session struct {
	mu             sync.Mutex
	id             string
	store          *ctxstore.Store
	loop           *aloop.Loop
	taskID         string
	initialPrompt  string
	restartedTimes int
}

// Manager owns every live session and is the concrete SessionController
// the Intervention Engine (internal/intervene) drives. One Manager per
// process; sessions are cheap and scoped to a single task each, per
// internal/aloop.Loop's own doc comment.
type Manager struct {
	providers  *llm.Registry
	tools      *tooling.Registry
	dispatcher *tooling.Dispatcher
	recorder   *observability.EventRecorder
	events     observability.EventStore
	monitor    *monitor.Monitor
	mailbox    *mailbox.Mailbox
	loopConfig aloop.Config
	persister  ctxstore.Persister

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a Manager. mon and mbox may be nil, in which case the
// corresponding capability (anomaly detection, inter-agent messaging) is
// simply unused. persister may also be nil, in which case every session's
// Context Store is purely in-memory (the default).
func NewManager(
	providers *llm.Registry,
	tools *tooling.Registry,
	dispatcher *tooling.Dispatcher,
	recorder *observability.EventRecorder,
	events observability.EventStore,
	mon *monitor.Monitor,
	mbox *mailbox.Mailbox,
	loopConfig aloop.Config,
	persister ctxstore.Persister,
) *Manager {
	return &Manager{
		providers:  providers,
		tools:      tools,
		dispatcher: dispatcher,
		recorder:   recorder,
		events:     events,
		monitor:    mon,
		mailbox:    mbox,
		loopConfig: loopConfig,
		persister:  persister,
		sessions:   make(map[string]*session),
	}
}

// Mailbox exposes the shared Mailbox (C2) so callers (e.g. a tool that
// sends a message on an agent's behalf) don't need their own reference.
func (m *Manager) Mailbox() *mailbox.Mailbox {
	return m.mailbox
}

// RunSession drives sessionID's AI Loop from prompt to completion,
// registering it with the Session Monitor for the duration of the run and
// unregistering it on return. It blocks until the loop terminates.
func (m *Manager) RunSession(ctx context.Context, sessionID, prompt string) (*models.Message, error) {
	taskID := sessionID + ":" + fmt.Sprintf("%d", time.Now().UnixNano())
	sess, err := m.newSession(sessionID, taskID, prompt)
	if err != nil {
		return nil, fmt.Errorf("start session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	if m.monitor != nil {
		m.monitor.Watch(ctx, sessionID)
		defer m.monitor.Unwatch(sessionID)
	}

	return sess.loop.Run(ctx, sessionID, taskID, prompt)
}

func (m *Manager) newSession(sessionID, taskID, prompt string) (*session, error) {
	store, err := m.newStore(taskID)
	if err != nil {
		return nil, err
	}
	loop := aloop.New(m.providers, m.tools, m.dispatcher, store, m.recorder, m.loopConfig)
	return &session{id: sessionID, store: store, loop: loop, taskID: taskID, initialPrompt: prompt}, nil
}

// newStore builds sessionID's Context Store, resuming persisted history
// from m.persister when one is configured.
func (m *Manager) newStore(taskID string) (*ctxstore.Store, error) {
	if m.persister == nil {
		return ctxstore.New(), nil
	}
	return ctxstore.NewPersisted(taskID, m.persister)
}

func (m *Manager) get(sessionID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// InjectMessage implements intervene.SessionController: it appends content
// into sessionID's Context Store as a user-role message, the way the next
// model call picks up prompt_injection/state_reset recovery content
// (spec.md §4.6).
func (m *Manager) InjectMessage(ctx context.Context, sessionID, content string) error {
	sess, ok := m.get(sessionID)
	if !ok {
		return errs.New(errs.KindInvalidArguments, fmt.Sprintf("session %q is not running", sessionID))
	}
	sess.store.Add(models.Message{
		ID:        sessionID + "-inject-" + fmt.Sprintf("%d", time.Now().UnixNano()),
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

// Restart implements intervene.SessionController: it stops the current
// loop and replaces it with a fresh Loop over the same Context Store, so
// history is kept rather than emptied (the Open Question decision
// recorded in DESIGN.md for spec.md §4.6's session_restart strategy).
// The new loop is not started here, and its Run clears the store the
// same way a first run does.
func (m *Manager) Restart(ctx context.Context, sessionID string) error {
	sess, ok := m.get(sessionID)
	if !ok {
		return errs.New(errs.KindInvalidArguments, fmt.Sprintf("session %q is not running", sessionID))
	}

	sess.mu.Lock()
	sess.loop.Stop()
	history := sess.store.History()
	sess.restartedTimes++
	newLoop := aloop.New(m.providers, m.tools, m.dispatcher, sess.store, m.recorder, m.loopConfig)
	sess.loop = newLoop
	sess.mu.Unlock()

	if m.recorder != nil {
		m.recorder.Record(ctx, sessionID, observability.EventAILoopStarted, map[string]any{
			"task_id":  sess.taskID,
			"restart":  true,
			"restored": len(history),
		})
	}
	return nil
}

// RunAnalysisScript implements intervene.SessionController: it summarizes
// the session's most recent recorded events, the diagnostic
// python_analysis/tool_retry strategies consult (spec.md §4.6).
func (m *Manager) RunAnalysisScript(ctx context.Context, sessionID string) (string, error) {
	if m.events == nil {
		return "no event store configured; nothing to analyze", nil
	}
	recent := m.events.Tail(sessionID, 20)
	if len(recent) == 0 {
		return fmt.Sprintf("session %s has no recorded events", sessionID), nil
	}

	var errCount int
	toolCounts := map[string]int{}
	for _, ev := range recent {
		if ev.Error != "" {
			errCount++
		}
		if ev.ToolName != "" {
			toolCounts[ev.ToolName]++
		}
	}

	summary := fmt.Sprintf("session %s: %d recent events, %d with errors, %d distinct tools invoked",
		sessionID, len(recent), errCount, len(toolCounts))
	return summary, nil
}
