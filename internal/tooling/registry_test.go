package tooling

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type fakeTool struct {
	id       string
	schema   json.RawMessage
	execFunc func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (f *fakeTool) ID() string                   { return f.id }
func (f *fakeTool) Description() string          { return "fake tool for tests" }
func (f *fakeTool) Schema() json.RawMessage      { return f.schema }
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return f.execFunc(ctx, params)
}

func echoTool(id string) *fakeTool {
	return &fakeTool{
		id:     id,
		schema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, err
			}
			return &Result{Text: in.Msg}, nil
		},
	}
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{id: "", schema: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected error registering a tool with an empty ID")
	}
}

func TestRegisterCompilesSchemaUpFront(t *testing.T) {
	r := NewRegistry()
	bad := &fakeTool{id: "broken", schema: json.RawMessage(`{"type": "not-a-real-type"}`)}
	if err := r.Register(bad); err == nil {
		t.Fatalf("expected schema compilation to fail for an invalid type")
	}
}

func TestGetReturnsRegisteredTool(t *testing.T) {
	r := NewRegistry()
	tool := echoTool("echo")
	if err := r.Register(tool); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, ok := r.Get("echo")
	if !ok || got.ID() != "echo" {
		t.Fatalf("expected to find registered tool echo")
	}
}

func TestUnregisterRemovesTool(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("echo"))
	r.Unregister("echo")
	if _, ok := r.Get("echo"); ok {
		t.Fatalf("expected echo to be gone after Unregister")
	}
}

func TestDescriptorsIncludeInstructions(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&instructedTool{fakeTool: *echoTool("echo")})

	descs := r.Descriptors()
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	if descs[0].Instructions == "" {
		t.Fatalf("expected instructions to be carried onto the descriptor")
	}
}

type instructedTool struct {
	fakeTool
}

func (i *instructedTool) Instructions() string { return "call me with {msg: string}" }

func TestRegistryRejectsOversizedID(t *testing.T) {
	r := NewRegistry()
	longID := strings.Repeat("a", MaxToolIDLength+1)
	if err := r.Register(&fakeTool{id: longID, schema: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected oversized tool ID to be rejected")
	}
}
