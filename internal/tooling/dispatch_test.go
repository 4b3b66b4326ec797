package tooling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

func newTestDispatcher(t *testing.T, tools ...*fakeTool) *Dispatcher {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.id, err)
		}
	}
	return NewDispatcher(r, DispatchConfig{Concurrency: 4, PerCallTimeout: time.Second}, nil)
}

func TestDispatchAllReturnsResultsInInputOrder(t *testing.T) {
	slow := &fakeTool{
		id:     "slow",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			time.Sleep(20 * time.Millisecond)
			return &Result{Text: "slow-done"}, nil
		},
	}
	fast := &fakeTool{
		id:     "fast",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return &Result{Text: "fast-done"}, nil
		},
	}
	d := newTestDispatcher(t, slow, fast)

	calls := []models.ToolCall{
		{ID: "call-1", Name: "slow", Arguments: json.RawMessage(`{}`)},
		{ID: "call-2", Name: "fast", Arguments: json.RawMessage(`{}`)},
	}
	results := d.DispatchAll(context.Background(), calls)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ToolCallID != "call-1" || results[1].ToolCallID != "call-2" {
		t.Fatalf("expected results ordered by input index despite the first call being slower, got %+v", results)
	}
}

func TestDispatchUnknownToolReturnsNotFoundEnvelope(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.DispatchAll(context.Background(), []models.ToolCall{
		{ID: "call-1", Name: "missing", Arguments: json.RawMessage(`{}`)},
	})
	if results[0].Envelope.OK {
		t.Fatalf("expected ok=false for an unregistered tool")
	}
	if results[0].Envelope.ErrorType != "tool_not_found" {
		t.Fatalf("expected tool_not_found, got %s", results[0].Envelope.ErrorType)
	}
}

func TestDispatchInvalidArgumentsFailSchemaValidation(t *testing.T) {
	d := newTestDispatcher(t, echoTool("echo"))
	results := d.DispatchAll(context.Background(), []models.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{}`)},
	})
	if results[0].Envelope.OK {
		t.Fatalf("expected schema validation to reject missing required field")
	}
	if results[0].Envelope.ErrorType != "invalid_arguments" {
		t.Fatalf("expected invalid_arguments, got %s", results[0].Envelope.ErrorType)
	}
}

func TestDispatchSuccessReturnsData(t *testing.T) {
	d := newTestDispatcher(t, echoTool("echo"))
	results := d.DispatchAll(context.Background(), []models.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"msg":"hi"}`)},
	})
	if !results[0].Envelope.OK {
		t.Fatalf("expected ok=true, got %+v", results[0].Envelope)
	}
	if results[0].Envelope.Data != "hi" {
		t.Fatalf("expected echoed data 'hi', got %v", results[0].Envelope.Data)
	}
}

func TestDispatchTimeoutProducesProcessingTimeoutEnvelope(t *testing.T) {
	blocking := &fakeTool{
		id:     "blocking",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := NewRegistry()
	_ = r.Register(blocking)
	d := NewDispatcher(r, DispatchConfig{Concurrency: 1, PerCallTimeout: 10 * time.Millisecond}, nil)

	results := d.DispatchAll(context.Background(), []models.ToolCall{
		{ID: "call-1", Name: "blocking", Arguments: json.RawMessage(`{}`)},
	})
	if results[0].Envelope.OK {
		t.Fatalf("expected timeout to produce a failing envelope")
	}
	if !results[0].TimedOut {
		t.Fatalf("expected TimedOut=true")
	}
	if results[0].Envelope.ErrorType != "processing_timeout" {
		t.Fatalf("expected processing_timeout, got %s", results[0].Envelope.ErrorType)
	}
}

func TestDispatchSequentialPreservesOrder(t *testing.T) {
	d := newTestDispatcher(t, echoTool("echo"))
	results := d.DispatchSequential(context.Background(), []models.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"msg":"a"}`)},
		{ID: "call-2", Name: "echo", Arguments: json.RawMessage(`{"msg":"b"}`)},
	})
	if results[0].Envelope.Data != "a" || results[1].Envelope.Data != "b" {
		t.Fatalf("expected sequential results in order, got %+v", results)
	}
}
