package aloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	ctxstore "github.com/haasonsaas/aiwhisperer/internal/context"
	"github.com/haasonsaas/aiwhisperer/internal/errs"
	"github.com/haasonsaas/aiwhisperer/internal/llm"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

const defaultSystemPreamble = "You are an AI agent. You have access to a set of tools, " +
	"each with a JSON-Schema parameter contract. Call a tool when it helps " +
	"complete the user's request; otherwise respond directly."

// Config controls one Loop's behaviour. Zero-value fields take the
// defaults applied by withDefaults.
type Config struct {
	// Model is the backend model id passed to the primary provider.
	Model string

	// Temperature is sampling temperature; HasTemperature distinguishes
	// "explicitly zero" from "use the provider default".
	Temperature    float64
	HasTemperature bool

	// MaxTokens bounds the generated response length per call.
	MaxTokens int

	// SystemPreamble is the fixed prefix prepended to the tool-usage
	// instructions built from every registered tool (spec.md §4.3
	// "Initial call" step 1).
	SystemPreamble string

	// MaxConsecutiveToolCalls is MAX_CONSECUTIVE_TOOL_CALLS from spec.md
	// §3's AI Loop State invariant. Default 5.
	MaxConsecutiveToolCalls int
}

func (c Config) withDefaults() Config {
	if c.SystemPreamble == "" {
		c.SystemPreamble = defaultSystemPreamble
	}
	if c.MaxConsecutiveToolCalls <= 0 {
		c.MaxConsecutiveToolCalls = 5
	}
	return c
}

// Loop drives one task through spec.md §4.3's state machine: repeated
// model calls, tool dispatch rounds, and termination on a stop condition
// or failure. A Loop is scoped to a single task, the same way its Context
// Store is (spec.md §4.2) — Pause/Stop take effect on that task's Run,
// including a Stop called before Run starts; build a new Loop per task.
type Loop struct {
	providers  *llm.Registry
	tools      *tooling.Registry
	dispatcher *tooling.Dispatcher
	store      *ctxstore.Store
	recorder   *observability.EventRecorder
	config     Config

	mu            sync.Mutex
	cond          *sync.Cond
	paused        bool
	stopRequested bool
	state         LoopState
}

// New builds a Loop. recorder may be nil, in which case lifecycle events
// are not recorded.
func New(providers *llm.Registry, tools *tooling.Registry, dispatcher *tooling.Dispatcher, store *ctxstore.Store, recorder *observability.EventRecorder, config Config) *Loop {
	l := &Loop{
		providers:  providers,
		tools:      tools,
		dispatcher: dispatcher,
		store:      store,
		recorder:   recorder,
		config:     config.withDefaults(),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Pause blocks the loop before its next model call until Resume is
// called, per spec.md §4.3's "pause request" external signal.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
}

// Resume clears a pending pause.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Stop requests a graceful transition to stopping/stopped before the next
// model call.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopRequested = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// State returns a snapshot of the loop's current bookkeeping.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// waitWhilePaused blocks while a pause is in effect, returning true if a
// stop request arrived (either before or during the pause) and the loop
// should terminate instead of proceeding to the next model call.
func (l *Loop) waitWhilePaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.paused && !l.stopRequested {
		l.state.Lifecycle = StatePaused
		l.cond.Wait()
	}
	if l.stopRequested {
		l.state.Lifecycle = StateStopping
		return true
	}
	return false
}

func (l *Loop) setLifecycle(state State) {
	l.mu.Lock()
	l.state.Lifecycle = state
	l.mu.Unlock()
}

func (l *Loop) recordEvent(ctx context.Context, sessionID string, eventType observability.EventType, data map[string]any) {
	if l.recorder == nil {
		return
	}
	l.recorder.Record(ctx, sessionID, eventType, data)
}

// Run drives the loop from initialPrompt through spec.md §4.3's state
// machine to termination, returning the final assistant message (or the
// last message produced before a stop request, if any). taskID scopes
// this run's counters; sessionID scopes lifecycle events and dispatched
// tool calls for the Session Monitor.
func (l *Loop) Run(ctx context.Context, sessionID, taskID, initialPrompt string) (*models.Message, error) {
	l.mu.Lock()
	l.state = LoopState{
		TaskID:          taskID,
		Model:           l.config.Model,
		Temperature:     l.config.Temperature,
		ToolFingerprint: l.toolFingerprint(),
		Lifecycle:       StateStarting,
		StartedAt:       time.Now(),
	}
	l.mu.Unlock()

	stopWatch, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-stopWatch.Done()
		if ctx.Err() != nil {
			l.Stop()
		}
	}()

	l.store.Clear()
	system := l.buildSystemPrompt()

	userMsg := models.Message{ID: uuid.NewString(), Role: models.RoleUser, Content: initialPrompt, CreatedAt: time.Now()}
	l.store.Add(userMsg)

	l.recordEvent(ctx, sessionID, observability.EventAILoopStarted, map[string]any{"task_id": taskID})

	var lastAssistant *models.Message

	for {
		if l.waitWhilePaused() {
			l.recordEvent(ctx, sessionID, observability.EventAILoopStopped, map[string]any{"task_id": taskID, "reason": "stop_requested"})
			l.setLifecycle(StateStopped)
			return lastAssistant, nil
		}

		l.setLifecycle(StateAwaitingModel)
		l.recordEvent(ctx, sessionID, observability.EventAIRequestPrepared, map[string]any{"task_id": taskID, "iteration": l.incrementIteration()})

		resp, err := l.callModel(ctx, system)
		if err != nil {
			wrapped := errs.Wrap(errs.KindLLMCallFailure, err, "model call failed")
			l.recordEvent(ctx, sessionID, observability.EventAILoopErrorOccurred, map[string]any{"task_id": taskID, "error": wrapped.Error()})
			l.setLifecycle(StateFailed)
			return lastAssistant, wrapped
		}

		l.recordEvent(ctx, sessionID, observability.EventAIResponseReceived, map[string]any{
			"task_id":       taskID,
			"finish_reason": string(resp.FinishReason),
			"tool_calls":    len(resp.ToolCalls),
		})

		assistantMsg := models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			CreatedAt: time.Now(),
		}
		l.store.Add(assistantMsg)
		lastAssistant = &assistantMsg

		switch {
		case len(resp.ToolCalls) > 0:
			if fail := l.enterToolRound(ctx, resp.ToolCalls); fail != nil {
				l.recordEvent(ctx, sessionID, observability.EventAILoopErrorOccurred, map[string]any{"task_id": taskID, "error": fail.Error()})
				l.setLifecycle(StateFailed)
				return lastAssistant, fail
			}
			continue

		case resp.Content != "" || resp.FinishReason == models.FinishStop:
			l.resetConsecutiveToolCalls()

			if name, args, ok := parseLegacyInlineCall(resp.Content); ok {
				if _, found := l.tools.Get(name); found {
					result, err := l.executeFallback(ctx, name, args)
					if err != nil {
						l.recordEvent(ctx, sessionID, observability.EventAILoopErrorOccurred, map[string]any{"task_id": taskID, "error": err.Error()})
						l.setLifecycle(StateFailed)
						return lastAssistant, err
					}
					l.store.Add(result)
					lastAssistant = &result
					l.recordEvent(ctx, sessionID, observability.EventAILoopStopped, map[string]any{"task_id": taskID, "reason": "legacy_fallback"})
					l.setLifecycle(StateStopped)
					return lastAssistant, nil
				}
			}

			l.recordEvent(ctx, sessionID, observability.EventAILoopStopped, map[string]any{"task_id": taskID, "reason": "stop"})
			l.setLifecycle(StateStopped)
			return lastAssistant, nil

		default:
			fail := errs.New(errs.KindUnexpectedResponse, "assistant response carried no tool calls, no content, and finish_reason was not stop")
			l.recordEvent(ctx, sessionID, observability.EventAILoopErrorOccurred, map[string]any{"task_id": taskID, "error": fail.Error()})
			l.setLifecycle(StateFailed)
			return lastAssistant, fail
		}
	}
}

func (l *Loop) incrementIteration() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Iteration++
	return l.state.Iteration
}

func (l *Loop) resetConsecutiveToolCalls() {
	l.mu.Lock()
	l.state.ConsecutiveToolCall = 0
	l.mu.Unlock()
}

// enterToolRound executes one batch of tool calls. spec.md §4.3's JSON
// parse step happens before dispatch: malformed arguments fail the entire
// turn with tool_args_invalid rather than being swallowed per-call, unlike
// tool-not-found/execution errors which the dispatcher already converts
// into envelopes appended to context.
func (l *Loop) enterToolRound(ctx context.Context, calls []models.ToolCall) error {
	l.mu.Lock()
	l.state.ConsecutiveToolCall++
	count := l.state.ConsecutiveToolCall
	limit := l.config.MaxConsecutiveToolCalls
	l.mu.Unlock()

	if count > limit {
		return errs.New(errs.KindToolLoopLimit, fmt.Sprintf("exceeded %d consecutive tool-call rounds", limit))
	}

	for _, call := range calls {
		var v any
		if err := json.Unmarshal(call.Arguments, &v); err != nil {
			return errs.Wrap(errs.KindToolArgsInvalid, err, fmt.Sprintf("tool call %q arguments are not valid JSON", call.Name)).WithFilePath(call.Name)
		}
	}

	l.setLifecycle(StateExecutingTools)
	results := l.dispatcher.DispatchAll(ctx, calls)

	for _, call := range calls {
		var matched *tooling.CallResult
		for i := range results {
			if results[i].ToolCallID == call.ID {
				matched = &results[i]
				break
			}
		}
		content := `{"ok":false,"error_type":"tool_execution_error","message":"no result returned"}`
		if matched != nil {
			if encoded, err := json.Marshal(matched.Envelope); err == nil {
				content = string(encoded)
			}
		}
		l.store.Add(models.Message{
			ID:         uuid.NewString(),
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			CreatedAt:  time.Now(),
		})
	}

	return nil
}

// executeFallback runs the legacy inline-call path once and synthesizes
// its tool-result message, per spec.md §4.3's documented transitional
// behaviour.
func (l *Loop) executeFallback(ctx context.Context, name string, args json.RawMessage) (models.Message, error) {
	call := models.ToolCall{ID: "fallback_" + name, Name: name, Arguments: args}
	results := l.dispatcher.DispatchAll(ctx, []models.ToolCall{call})
	if len(results) != 1 {
		return models.Message{}, errs.New(errs.KindToolExecutionError, "fallback dispatch produced no result")
	}
	encoded, err := json.Marshal(results[0].Envelope)
	if err != nil {
		return models.Message{}, errs.Wrap(errs.KindJSONSerializationErr, err, "failed to encode fallback tool result")
	}
	return models.Message{
		ID:         uuid.NewString(),
		Role:       models.RoleTool,
		Content:    string(encoded),
		ToolCallID: call.ID,
		CreatedAt:  time.Now(),
	}, nil
}

// callModel sends the current context to the primary provider, falling
// back to the first configured failover provider once if the primary call
// fails — the optional failover behaviour SPEC_FULL.md's SUPPLEMENTED
// FEATURES section adds on top of spec.md's bare "send to the LLM" step.
func (l *Loop) callModel(ctx context.Context, system string) (models.AssistantResponse, error) {
	req := &llm.Request{
		Model:          l.config.Model,
		System:         system,
		Temperature:    l.config.Temperature,
		HasTemperature: l.config.HasTemperature,
		Messages:       l.store.History(),
		Tools:          l.toolDescriptors(),
		MaxTokens:      l.config.MaxTokens,
	}

	primary, ok := l.providers.Primary()
	if !ok {
		return models.AssistantResponse{}, errs.New(errs.KindLLMCallFailure, "no LLM provider configured")
	}

	resp, err := l.complete(ctx, primary, req)
	if err == nil {
		return resp, nil
	}

	failovers := l.providers.Failovers()
	if len(failovers) == 0 {
		return models.AssistantResponse{}, err
	}

	return l.complete(ctx, failovers[0], req)
}

func (l *Loop) complete(ctx context.Context, provider llm.Provider, req *llm.Request) (models.AssistantResponse, error) {
	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return models.AssistantResponse{}, err
	}

	var content strings.Builder
	var toolCalls []models.ToolCall
	finish := models.FinishUnknown

	for chunk := range chunks {
		if chunk.Err != nil {
			return models.AssistantResponse{}, chunk.Err
		}
		if chunk.Text != "" {
			content.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			finish = chunk.FinishReason
		}
	}

	if len(toolCalls) > 0 && finish == models.FinishUnknown {
		finish = models.FinishToolCalls
	}

	return models.AssistantResponse{Content: content.String(), ToolCalls: toolCalls, FinishReason: finish}, nil
}

// buildSystemPrompt concatenates the fixed preamble with every registered
// tool's usage instructions, per spec.md §4.3's "Initial call" step 1.
func (l *Loop) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(l.config.SystemPreamble)

	for _, d := range l.sortedDescriptors() {
		instructions := d.Instructions
		if instructions == "" {
			instructions = d.Description
		}
		if instructions == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s: %s", d.ID, instructions)
	}

	return b.String()
}

func (l *Loop) toolDescriptors() []llm.ToolDescriptor {
	descriptors := l.sortedDescriptors()
	out := make([]llm.ToolDescriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = llm.ToolDescriptor{ID: d.ID, Description: d.Description, Schema: d.Schema}
	}
	return out
}

func (l *Loop) sortedDescriptors() []tooling.Descriptor {
	descriptors := l.tools.Descriptors()
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].ID < descriptors[j].ID })
	return descriptors
}

// toolFingerprint hashes the sorted tool id+schema set so the loop's
// configuration snapshot (spec.md §3) can detect when a mid-flight tool
// registration change invalidates the system prompt the LLM was given.
func (l *Loop) toolFingerprint() string {
	descriptors := l.sortedDescriptors()
	h := sha256.New()
	for _, d := range descriptors {
		h.Write([]byte(d.ID))
		h.Write(d.Schema)
	}
	return hex.EncodeToString(h.Sum(nil))
}
