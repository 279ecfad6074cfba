package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one step of a cycle: the fetch step or a pipeline run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner owns the main loop: it runs every stage sequentially, then waits for
// the interval and starts over.
type Runner struct {
	stages   []Stage
	interval time.Duration
	pause    time.Duration
	logger   *slog.Logger
}

// New creates a runner over stages. A zero interval means a single cycle.
func New(stages []Stage, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		stages:   stages,
		interval: interval,
		logger:   logger,
	}
}

// WithPause waits d between consecutive stages.
func (r *Runner) WithPause(d time.Duration) *Runner {
	r.pause = d
	return r
}

// Run starts the loop. It runs one immediate cycle, then one per interval.
// It returns nil when ctx is cancelled (graceful shutdown). With a zero
// interval it returns after the first cycle with the stage errors joined.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return r.RunOnce(ctx)
	}

	r.logger.Info("starting runner",
		"interval", r.interval.String(),
		"stages", len(r.stages),
	)
	_ = r.RunOnce(ctx) // stage errors are logged

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down runner")
			return nil
		case <-time.After(r.interval):
			_ = r.RunOnce(ctx) // stage errors are logged
		}
	}
}

// RunOnce runs every stage once. A failing stage is logged and does not stop
// the later ones.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for i, s := range r.stages {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		start := time.Now()
		if err := s.Run(ctx); err != nil {
			r.logger.Error("stage failed", "stage", s.Name, "error", err)
			errs = append(errs, fmt.Errorf("stage %s: %w", s.Name, err))
		} else {
			r.logger.Info("stage finished", "stage", s.Name, "elapsed", time.Since(start).Round(time.Millisecond).String())
		}

		if r.pause > 0 && i < len(r.stages)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(r.pause):
			}
		}
	}
	return errors.Join(errs...)
}
