package forumwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coregx/forumwatch/retry"
)

// backoffPreview is how many backoff steps NewRunner logs.
const backoffPreview = 4

// Scanner runs one pass over the listing. Pipeline implements it.
type Scanner interface {
	Scan(ctx context.Context) (*ScanResult, error)
}

// Runner re-runs a Scanner on a cron schedule until its context is cancelled.
//
// Failed scans (listing unreachable or unparseable) push the next run back
// with exponential backoff; the first successful scan resets it.
type Runner struct {
	scanner  Scanner
	schedule cron.Schedule
	backoff  retry.Strategy
	logger   Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// NewRunner creates a new Runner with the provided options.
//
// Required options:
//   - WithScanner: the pipeline to run
//   - WithSchedule: cron expression or descriptor ("@every 10m")
//   - WithRunnerLogger: logger instance
//
// Optional options:
//   - WithBackoff: failure backoff (default: retry.DefaultStrategy())
func NewRunner(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		backoff: retry.DefaultStrategy(),
		now:     time.Now,
		after:   time.After,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply runner option", err)
		}
	}

	if r.scanner == nil {
		return nil, NewError(ErrCodeConfiguration, "Scanner is required (use WithScanner)")
	}
	if r.schedule == nil {
		return nil, NewError(ErrCodeConfiguration, "schedule is required (use WithSchedule)")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithRunnerLogger)")
	}

	r.logger.Debugf("Runner configured. %s", r.backoff.GetRetrySchedule(backoffPreview))
	return r, nil
}

// WithScanner sets the scanner to run.
func WithScanner(scanner Scanner) RunnerOption {
	return func(r *Runner) error {
		if scanner == nil {
			return fmt.Errorf("scanner cannot be nil")
		}
		r.scanner = scanner
		return nil
	}
}

// WithSchedule parses a standard 5-field cron expression or a descriptor
// such as "@hourly" or "@every 10m".
func WithSchedule(expr string) RunnerOption {
	return func(r *Runner) error {
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
		r.schedule = schedule
		return nil
	}
}

// WithBackoff sets the delay strategy applied after failed scans.
func WithBackoff(strategy retry.Strategy) RunnerOption {
	return func(r *Runner) error {
		if strategy.BaseDelay <= 0 || strategy.MaxDelay < strategy.BaseDelay {
			return fmt.Errorf("invalid backoff: base=%v, max=%v", strategy.BaseDelay, strategy.MaxDelay)
		}
		r.backoff = strategy
		return nil
	}
}

// WithRunnerLogger sets the logger instance.
func WithRunnerLogger(logger Logger) RunnerOption {
	return func(r *Runner) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// withRunnerTimers replaces the clock and the timer. Used by tests.
func withRunnerTimers(now func() time.Time, after func(time.Duration) <-chan time.Time) RunnerOption {
	return func(r *Runner) error {
		r.now = now
		r.after = after
		return nil
	}
}

// NextRun returns when the next scan should start, given when the previous
// one finished and how many scans in a row have failed.
func (r *Runner) NextRun(finished time.Time, failures int) time.Time {
	next := r.schedule.Next(finished)
	if failures > 0 {
		if backoff := r.backoff.NextAttempt(finished, failures); backoff.After(next) {
			next = backoff
		}
	}
	return next
}

// Run scans immediately, then on every scheduled tick, until ctx is done.
// Scan errors are logged, never returned.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("Forum watcher started")

	failures := 0
	for {
		result, err := r.scanner.Scan(ctx)
		switch {
		case ctx.Err() != nil:
			r.logger.Info("Forum watcher stopped")
			return
		case err != nil:
			failures++
			r.logger.Errorf("Scan failed (%d in a row): %v", failures, err)
		default:
			failures = 0
			if len(result.Errors) > 0 {
				r.logger.Warnf("Scan completed with %d entry errors", len(result.Errors))
			}
		}

		next := r.NextRun(r.now(), failures)
		r.logger.Debugf("Next scan at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			r.logger.Info("Forum watcher stopped")
			return
		case <-r.after(next.Sub(r.now())):
		}
	}
}
