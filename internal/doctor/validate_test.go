package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateReportsMissingWorkspaceDirectoriesAsWarning(t *testing.T) {
	dir := t.TempDir()
	report := Validate(context.Background(), ValidatorConfig{WorkspacePath: dir})

	found := false
	for _, c := range report.Checks {
		if c.Category == "workspace" && c.Status == StatusWarning {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one warning-level workspace check for a fresh directory")
	}
}

func TestValidatePassesWhenWorkspaceDirsExist(t *testing.T) {
	dir := t.TempDir()
	for _, d := range expectedWorkspaceDirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	report := Validate(context.Background(), ValidatorConfig{WorkspacePath: dir})
	for _, c := range report.Checks {
		if c.Category == "workspace" && c.Status != StatusPass {
			t.Errorf("check %q = %q, want pass", c.Name, c.Status)
		}
	}
}

func TestValidateFlagsMissingRequiredConfigKeys(t *testing.T) {
	report := Validate(context.Background(), ValidatorConfig{
		RequiredConfigKeys: map[string]string{"llm.model": "", "server.port": "8080"},
	})
	var modelCheck, portCheck *Check
	for i := range report.Checks {
		switch report.Checks[i].Name {
		case "llm.model":
			modelCheck = &report.Checks[i]
		case "server.port":
			portCheck = &report.Checks[i]
		}
	}
	if modelCheck == nil || modelCheck.Status != StatusFail {
		t.Errorf("llm.model check = %+v, want fail", modelCheck)
	}
	if portCheck == nil || portCheck.Status != StatusPass {
		t.Errorf("server.port check = %+v, want pass", portCheck)
	}
}

func TestValidateChecksEnvVarPresenceWithoutLoggingValue(t *testing.T) {
	t.Setenv("AIWHISPERER_TEST_TOKEN", "super-secret-value")
	report := Validate(context.Background(), ValidatorConfig{
		RequiredEnvVars: []string{"AIWHISPERER_TEST_TOKEN", "AIWHISPERER_TEST_MISSING"},
	})
	for _, c := range report.Checks {
		if c.Category != "environment" {
			continue
		}
		if c.Message == "super-secret-value" {
			t.Fatal("env var value leaked into check message")
		}
		switch c.Name {
		case "AIWHISPERER_TEST_TOKEN":
			if c.Status != StatusPass {
				t.Errorf("status = %q, want pass", c.Status)
			}
		case "AIWHISPERER_TEST_MISSING":
			if c.Status != StatusFail {
				t.Errorf("status = %q, want fail", c.Status)
			}
		}
	}
}

func TestValidateChecksWritePermission(t *testing.T) {
	dir := t.TempDir()
	report := Validate(context.Background(), ValidatorConfig{WorkspacePath: dir})
	var fsCheck *Check
	for i := range report.Checks {
		if report.Checks[i].Category == "filesystem" {
			fsCheck = &report.Checks[i]
		}
	}
	if fsCheck == nil || fsCheck.Status != StatusPass {
		t.Errorf("write permission check = %+v, want pass", fsCheck)
	}
}

func TestValidateRunsDependencyProbes(t *testing.T) {
	report := Validate(context.Background(), ValidatorConfig{
		Dependencies: []DependencyProbe{
			{Name: "llm-provider", Probe: func(ctx context.Context) error { return nil }},
			{Name: "database", Probe: func(ctx context.Context) error { return errors.New("connection refused") }},
		},
	})
	var llmCheck, dbCheck *Check
	for i := range report.Checks {
		switch report.Checks[i].Name {
		case "llm-provider":
			llmCheck = &report.Checks[i]
		case "database":
			dbCheck = &report.Checks[i]
		}
	}
	if llmCheck == nil || llmCheck.Status != StatusPass {
		t.Errorf("llm-provider check = %+v, want pass", llmCheck)
	}
	if dbCheck == nil || dbCheck.Status != StatusFail {
		t.Errorf("database check = %+v, want fail", dbCheck)
	}
}

func TestOverallStatusIsWorstAcrossChecks(t *testing.T) {
	dir := t.TempDir()
	report := Validate(context.Background(), ValidatorConfig{
		WorkspacePath:      dir,
		RequiredConfigKeys: map[string]string{"llm.model": ""},
	})
	if report.Overall != StatusFail {
		t.Errorf("overall = %q, want fail", report.Overall)
	}
}

func TestOverallStatusPassesWhenEverythingPasses(t *testing.T) {
	dir := t.TempDir()
	for _, d := range expectedWorkspaceDirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	report := Validate(context.Background(), ValidatorConfig{WorkspacePath: dir})
	if report.Overall != StatusPass {
		t.Errorf("overall = %q, want pass", report.Overall)
	}
}
