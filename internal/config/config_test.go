package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aiwhisperer.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: 1
llm:
  model: anthropic/claude-3.5-sonnet
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Workspace.Path != "." {
		t.Errorf("Workspace.Path = %q, want .", cfg.Workspace.Path)
	}
	if cfg.LLM.APIKeyEnv != "OPENROUTER_API_KEY" {
		t.Errorf("LLM.APIKeyEnv = %q, want OPENROUTER_API_KEY", cfg.LLM.APIKeyEnv)
	}
	if cfg.Session.MaxConsecutiveToolCalls != 25 {
		t.Errorf("Session.MaxConsecutiveToolCalls = %d, want 25", cfg.Session.MaxConsecutiveToolCalls)
	}
	if cfg.Monitor.StallThreshold == 0 {
		t.Error("Monitor.StallThreshold should have a non-zero default")
	}
	if cfg.Tools.Concurrency != 4 {
		t.Errorf("Tools.Concurrency = %d, want 4", cfg.Tools.Concurrency)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
version: 1
llm:
  model: anthropic/claude-3.5-sonnet
  bogus_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: anthropic/claude-3.5-sonnet
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
	if !strings.Contains(err.Error(), "missing or outdated") {
		t.Errorf("error = %v, want mention of missing or outdated version", err)
	}
}

func TestLoadRejectsMissingLLMModel(t *testing.T) {
	path := writeConfig(t, `
version: 1
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing llm.model")
	}
	if !strings.Contains(err.Error(), "llm.model") {
		t.Errorf("error = %v, want mention of llm.model", err)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("AIWHISPERER_TEST_MODEL", "anthropic/claude-3-haiku")
	path := writeConfig(t, `
version: 1
llm:
  model: ${AIWHISPERER_TEST_MODEL}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "anthropic/claude-3-haiku" {
		t.Errorf("LLM.Model = %q, want anthropic/claude-3-haiku", cfg.LLM.Model)
	}
}

func TestLoadEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("AIWHISPERER_HOST", "0.0.0.0")
	path := writeConfig(t, `
version: 1
server:
  host: 127.0.0.1
llm:
  model: anthropic/claude-3.5-sonnet
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0 from env override", cfg.Server.Host)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, `
version: 1
llm:
  model: anthropic/claude-3.5-sonnet
---
version: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for multiple yaml documents")
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLLMAPIKeyReadsConfiguredEnvVar(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "sk-test-value")
	cfg := LLMConfig{APIKeyEnv: "MY_CUSTOM_KEY"}
	if cfg.LLMAPIKey() != "sk-test-value" {
		t.Errorf("LLMAPIKey() = %q, want sk-test-value", cfg.LLMAPIKey())
	}
}
