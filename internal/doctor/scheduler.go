package doctor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// ScheduledRunner drives a HealthCheckRunner on a cron schedule, the way
// the teacher's task scheduler (internal/tasks.Scheduler) wraps
// robfig/cron around a periodic execution loop, adapted here to C9's
// single-shot Run instead of a distributed task queue.
type ScheduledRunner struct {
	runner   *HealthCheckRunner
	onReport func(*HealthCheckReport)
	cron     *cron.Cron
}

// NewScheduledRunner builds a ScheduledRunner that invokes runner.Run on
// the schedule later passed to Start, handing each resulting report to
// onReport (which may be nil to discard reports).
func NewScheduledRunner(runner *HealthCheckRunner, onReport func(*HealthCheckReport)) *ScheduledRunner {
	return &ScheduledRunner{runner: runner, onReport: onReport, cron: cron.New()}
}

// Start parses expr as a standard five-field cron expression and runs the
// health check on that schedule until ctx is cancelled. It blocks until
// then.
func (s *ScheduledRunner) Start(ctx context.Context, expr string) error {
	_, err := s.cron.AddFunc(expr, func() {
		report, err := s.runner.Run(ctx)
		if err != nil || s.onReport == nil {
			return
		}
		s.onReport(report)
	})
	if err != nil {
		return fmt.Errorf("parse health-check schedule %q: %w", expr, err)
	}

	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}
