package aloop

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	ctxstore "github.com/haasonsaas/aiwhisperer/internal/context"
	"github.com/haasonsaas/aiwhisperer/internal/llm"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// scriptedProvider replays a fixed sequence of responses, one per call to
// Complete, letting tests drive the loop through specific state-machine
// transitions deterministically.
type scriptedProvider struct {
	name      string
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	text      string
	toolCalls []models.ToolCall
	finish    models.FinishReason
	err       error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	if p.calls >= len(p.responses) {
		return nil, errFixtureExhausted
	}
	resp := p.responses[p.calls]
	p.calls++

	if resp.err != nil {
		return nil, resp.err
	}

	ch := make(chan *llm.Chunk, len(resp.toolCalls)+2)
	if resp.text != "" {
		ch <- &llm.Chunk{Text: resp.text}
	}
	for i := range resp.toolCalls {
		tc := resp.toolCalls[i]
		ch <- &llm.Chunk{ToolCall: &tc}
	}
	ch <- &llm.Chunk{Done: true, FinishReason: resp.finish}
	close(ch)
	return ch, nil
}

type fixtureErr string

func (f fixtureErr) Error() string { return string(f) }

const errFixtureExhausted = fixtureErr("scriptedProvider: no more scripted responses")

// echoingTool returns {"echo": <arguments>} for whatever arguments it's
// called with, and records every call it receives. DispatchAll runs calls
// to the same tool concurrently, so calls is guarded by mu.
type echoingTool struct {
	id string

	mu    sync.Mutex
	calls []json.RawMessage
}

func (t *echoingTool) ID() string             { return t.id }
func (t *echoingTool) Description() string    { return "echoes its arguments back" }
func (t *echoingTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (t *echoingTool) Execute(ctx context.Context, params json.RawMessage) (*tooling.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, params)
	t.mu.Unlock()
	return &tooling.Result{Data: map[string]any{"echo": json.RawMessage(params)}}, nil
}

func (t *echoingTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func newTestLoop(t *testing.T, provider llm.Provider, tools ...tooling.Tool) *Loop {
	t.Helper()
	registry := tooling.NewRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register tool: %v", err)
		}
	}
	dispatcher := tooling.NewDispatcher(registry, tooling.DispatchConfig{Concurrency: 2, PerCallTimeout: time.Second}, nil)
	store := ctxstore.New()
	providers := llm.NewRegistry(provider)
	return New(providers, registry, dispatcher, store, nil, Config{Model: "test-model"})
}

func TestRunTerminatesOnStopFinishReason(t *testing.T) {
	provider := &scriptedProvider{
		name: "anthropic",
		responses: []scriptedResponse{
			{text: "hello there", finish: models.FinishStop},
		},
	}
	loop := newTestLoop(t, provider)

	msg, err := loop.Run(context.Background(), "session-1", "task-1", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Content != "hello there" {
		t.Fatalf("expected final assistant message 'hello there', got %+v", msg)
	}
	if loop.State().Lifecycle != StateStopped {
		t.Fatalf("expected lifecycle stopped, got %s", loop.State().Lifecycle)
	}
}

func TestRunExecutesToolRoundThenStops(t *testing.T) {
	tool := &echoingTool{id: "search"}
	provider := &scriptedProvider{
		name: "anthropic",
		responses: []scriptedResponse{
			{
				toolCalls: []models.ToolCall{{ID: "call-1", Name: "search", Arguments: json.RawMessage(`{"q":"go"}`)}},
				finish:    models.FinishToolCalls,
			},
			{text: "done searching", finish: models.FinishStop},
		},
	}
	loop := newTestLoop(t, provider, tool)

	msg, err := loop.Run(context.Background(), "session-1", "task-1", "search for go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Content != "done searching" {
		t.Fatalf("expected final message 'done searching', got %+v", msg)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("expected the tool to be invoked once, got %d", len(tool.calls))
	}

	history := historyRoles(loop)
	want := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant}
	if !rolesEqual(history, want) {
		t.Fatalf("expected role sequence %v, got %v", want, history)
	}
}

func TestRunFailsWithToolLoopLimit(t *testing.T) {
	var responses []scriptedResponse
	for i := 0; i < 6; i++ {
		responses = append(responses, scriptedResponse{
			toolCalls: []models.ToolCall{{ID: "call", Name: "search", Arguments: json.RawMessage(`{}`)}},
			finish:    models.FinishToolCalls,
		})
	}
	provider := &scriptedProvider{name: "anthropic", responses: responses}
	loop := newTestLoop(t, provider, &echoingTool{id: "search"})
	loop.config.MaxConsecutiveToolCalls = 3

	_, err := loop.Run(context.Background(), "session-1", "task-1", "loop forever")
	if err == nil {
		t.Fatalf("expected tool_loop_limit error")
	}
	if loop.State().Lifecycle != StateFailed {
		t.Fatalf("expected lifecycle failed, got %s", loop.State().Lifecycle)
	}
}

func TestRunFailsOnUnexpectedResponse(t *testing.T) {
	provider := &scriptedProvider{
		name: "anthropic",
		responses: []scriptedResponse{
			{finish: models.FinishLength},
		},
	}
	loop := newTestLoop(t, provider)

	_, err := loop.Run(context.Background(), "session-1", "task-1", "hi")
	if err == nil {
		t.Fatalf("expected unexpected_response error for empty content and non-stop finish")
	}
}

func TestRunHandlesLegacyInlineToolCall(t *testing.T) {
	tool := &echoingTool{id: "search"}
	provider := &scriptedProvider{
		name: "anthropic",
		responses: []scriptedResponse{
			{text: `search(q=go, limit=3)`, finish: models.FinishStop},
		},
	}
	loop := newTestLoop(t, provider, tool)

	msg, err := loop.Run(context.Background(), "session-1", "task-1", "search for go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("expected legacy fallback to invoke the tool once, got %d", len(tool.calls))
	}
	if msg == nil || msg.ToolCallID != "fallback_search" {
		t.Fatalf("expected synthesized fallback_search tool message, got %+v", msg)
	}
}

func TestRunStopsGracefullyWhenStopRequestedBeforeFirstCall(t *testing.T) {
	provider := &scriptedProvider{
		name: "anthropic",
		responses: []scriptedResponse{
			{text: "should not be reached", finish: models.FinishStop},
		},
	}
	loop := newTestLoop(t, provider)
	loop.Stop()

	msg, err := loop.Run(context.Background(), "session-1", "task-1", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected no assistant message when stopped before the first model call, got %+v", msg)
	}
	if loop.State().Lifecycle != StateStopped {
		t.Fatalf("expected lifecycle stopped, got %s", loop.State().Lifecycle)
	}
	if provider.calls != 0 {
		t.Fatalf("expected the provider to never be called, got %d calls", provider.calls)
	}
}

func historyRoles(loop *Loop) []models.Role {
	history := loop.store.History()
	roles := make([]models.Role, len(history))
	for i, m := range history {
		roles[i] = m.Role
	}
	return roles
}

func rolesEqual(got, want []models.Role) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
