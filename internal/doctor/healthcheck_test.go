package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/batch"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
)

type fakeTool struct {
	id       string
	execFunc func(ctx context.Context, params json.RawMessage) (*tooling.Result, error)
}

func (f *fakeTool) ID() string              { return f.id }
func (f *fakeTool) Description() string     { return "fake tool for health check tests" }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*tooling.Result, error) {
	return f.execFunc(ctx, params)
}

func newTestRunner(t *testing.T, scriptsDir string, tools ...*fakeTool) *HealthCheckRunner {
	t.Helper()
	registry := tooling.NewRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.id, err)
		}
	}
	dispatcher := tooling.NewDispatcher(registry, tooling.DispatchConfig{PerCallTimeout: time.Second}, nil)
	executor := batch.NewExecutor(dispatcher)
	return NewHealthCheckRunner(executor, scriptsDir, 2*time.Second)
}

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
}

func TestHealthCheckRunnerPassesCleanScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "smoke.json", `{"name":"smoke","steps":[{"action":"list_files","params":{}}]}`)

	tool := &fakeTool{id: "list_files", execFunc: func(ctx context.Context, params json.RawMessage) (*tooling.Result, error) {
		return &tooling.Result{Data: map[string]any{"files": []string{"a.md"}}}, nil
	}}
	runner := newTestRunner(t, dir, tool)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 1 || report.Passed != 1 {
		t.Errorf("report = %+v, want total=1 passed=1", report)
	}
	if report.Score != 100 {
		t.Errorf("score = %v, want 100", report.Score)
	}
}

func TestHealthCheckRunnerReportsFailedScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "smoke.json", `{"name":"smoke","steps":[{"action":"list_files","params":{}}]}`)

	tool := &fakeTool{id: "list_files", execFunc: func(ctx context.Context, params json.RawMessage) (*tooling.Result, error) {
		return nil, context.DeadlineExceeded
	}}
	runner := newTestRunner(t, dir, tool)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}
	if report.Results[0].Status != HealthFailed {
		t.Errorf("status = %q, want failed", report.Results[0].Status)
	}
}

func TestHealthCheckRunnerReportsErrorForUnparsableScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "broken.json", `{not valid json`)

	runner := newTestRunner(t, dir)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Error != 1 {
		t.Errorf("error = %d, want 1", report.Error)
	}
}

func TestHealthCheckRunnerSkipsUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "smoke.json", `{"name":"smoke","steps":[]}`)
	writeScript(t, dir, "README.md", `# not a script`)

	runner := newTestRunner(t, dir)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 1 {
		t.Errorf("total = %d, want 1 (README.md should be skipped)", report.Total)
	}
}

func TestHealthCheckRunnerHandlesEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	runner := newTestRunner(t, dir)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("total = %d, want 0", report.Total)
	}
	if report.Summary == "" {
		t.Error("expected a non-empty summary even with no scripts")
	}
}

func TestHealthCheckRunnerHandlesMissingDirectory(t *testing.T) {
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "does-not-exist"))
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("total = %d, want 0 for a missing scripts directory", report.Total)
	}
}
