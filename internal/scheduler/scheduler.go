package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs a named job on an interval, each run bounded by its own
// timeout. Run errors are logged, never fatal: the next tick retries from
// scratch, which is what the jobs' commit-late state handling assumes.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
	logger   *slog.Logger
}

func New(name string, interval, timeout time.Duration, run func(ctx context.Context) error, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		timeout:  timeout,
		run:      run,
		logger:   logger.With("job", name),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.run(runCtx); err != nil {
		s.logger.Error("run failed", "error", err)
	}
}
