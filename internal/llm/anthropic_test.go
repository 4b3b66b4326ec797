package llm

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "be helpful"},
		{Role: models.RoleUser, Content: "hi"},
	}
	out, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected system message to be dropped (handled via params.System), got %d messages", len(out))
	}
}

func TestConvertMessagesRejectsInvalidToolCallArguments(t *testing.T) {
	messages := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "search", Arguments: json.RawMessage(`not-json`)},
			},
		},
	}
	if _, err := convertMessages(messages); err == nil {
		t.Fatalf("expected error converting a tool call with invalid JSON arguments")
	}
}

func TestConvertMessagesHandlesToolResultRole(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleTool, ToolCallID: "call-1", Content: "42"},
	}
	out, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
}

func TestAnthropicProviderDefaultsModel(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model("") != "claude-sonnet-4-20250514" {
		t.Fatalf("expected default model, got %q", p.model(""))
	}
	if p.model("claude-3-opus") != "claude-3-opus" {
		t.Fatalf("expected requested model to pass through")
	}
}

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatalf("expected error constructing provider without an API key")
	}
}
