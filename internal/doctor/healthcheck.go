package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/batch"
	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// HealthCheckStatus classifies a single smoke-test script's outcome.
type HealthCheckStatus string

const (
	HealthPassed  HealthCheckStatus = "passed"
	HealthFailed  HealthCheckStatus = "failed"
	HealthTimeout HealthCheckStatus = "timeout"
	HealthError   HealthCheckStatus = "error"
)

// HealthCheckResult is one discovered script's run outcome.
type HealthCheckResult struct {
	Script   string
	Status   HealthCheckStatus
	Detail   string
	Duration time.Duration
}

// HealthCheckReport is the runner's aggregate result, spec.md §4.9's
// "{passed, failed, timeout, error}" report plus a health score.
type HealthCheckReport struct {
	Results []HealthCheckResult
	Passed  int
	Failed  int
	Timeout int
	Error   int
	Total   int
	Score   float64
	Summary string
}

var scriptExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
	".txt":  true,
}

// HealthCheckRunner discovers batch scripts under a folder and drives
// each one through the Batch Runtime to exercise the system end to end.
type HealthCheckRunner struct {
	executor   *batch.Executor
	scriptsDir string
	timeout    time.Duration
}

// NewHealthCheckRunner builds a runner that loads scripts from
// scriptsDir and gives each one timeout to complete.
func NewHealthCheckRunner(executor *batch.Executor, scriptsDir string, timeout time.Duration) *HealthCheckRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HealthCheckRunner{executor: executor, scriptsDir: scriptsDir, timeout: timeout}
}

// Run discovers and executes every smoke-test script, classifying each
// as passed, failed, timed out, or errored, and returns the assembled
// report.
func (r *HealthCheckRunner) Run(ctx context.Context) (*HealthCheckReport, error) {
	filenames, err := discoverScripts(r.scriptsDir)
	if err != nil {
		return nil, err
	}

	report := &HealthCheckReport{Total: len(filenames)}
	for _, filename := range filenames {
		result := r.runOne(ctx, filename)
		report.Results = append(report.Results, result)
		switch result.Status {
		case HealthPassed:
			report.Passed++
		case HealthFailed:
			report.Failed++
		case HealthTimeout:
			report.Timeout++
		case HealthError:
			report.Error++
		}
	}

	if report.Total > 0 {
		report.Score = 100 * float64(report.Passed) / float64(report.Total)
	}
	report.Summary = summarize(report)
	return report, nil
}

func (r *HealthCheckRunner) runOne(ctx context.Context, filename string) HealthCheckResult {
	start := time.Now()
	path := filepath.Join(r.scriptsDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return HealthCheckResult{Script: filename, Status: HealthError, Detail: err.Error(), Duration: time.Since(start)}
	}
	script, err := batch.ParseScript(data, filename)
	if err != nil {
		return HealthCheckResult{Script: filename, Status: HealthError, Detail: err.Error(), Duration: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	runReport, err := r.executor.Run(runCtx, script, batch.Mode{StopOnError: true}, nil)
	duration := time.Since(start)

	if err != nil {
		if errs.KindOf(err) == errs.KindProcessingTimeout || runCtx.Err() == context.DeadlineExceeded {
			return HealthCheckResult{Script: filename, Status: HealthTimeout, Detail: err.Error(), Duration: duration}
		}
		return HealthCheckResult{Script: filename, Status: HealthError, Detail: err.Error(), Duration: duration}
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return HealthCheckResult{Script: filename, Status: HealthTimeout, Detail: "script did not complete within timeout", Duration: duration}
	}
	if !runReport.Success {
		return HealthCheckResult{
			Script:   filename,
			Status:   HealthFailed,
			Detail:   fmt.Sprintf("%d/%d steps failed", runReport.Failed, runReport.Total),
			Duration: duration,
		}
	}
	return HealthCheckResult{Script: filename, Status: HealthPassed, Detail: "all steps completed", Duration: duration}
}

func discoverScripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindFileNotFound, err, "read health-check scripts directory").WithFilePath(dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if scriptExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func summarize(report *HealthCheckReport) string {
	if report.Total == 0 {
		return "no health-check scripts found"
	}
	return fmt.Sprintf("%d/%d passed (%.0f%%): %d failed, %d timed out, %d errored",
		report.Passed, report.Total, report.Score, report.Failed, report.Timeout, report.Error)
}
