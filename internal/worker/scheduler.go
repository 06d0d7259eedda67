package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"omnifin/internal/log"
)

// Scheduler runs SnapshotAll on a fixed interval.
type Scheduler struct {
	worker   *SnapshotWorker
	interval time.Duration
	cron     *cron.Cron
	logger   *log.Logger

	mu        sync.Mutex
	isRunning bool
}

func NewScheduler(worker *SnapshotWorker, interval time.Duration) *Scheduler {
	logger := log.For(log.ComponentWorker).With("job", "snapshot")
	cl := cronLogger{logger}
	return &Scheduler{
		worker:   worker,
		interval: interval,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the snapshot job. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid snapshot interval %s", s.interval)
	}

	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		if err := s.worker.SnapshotAll(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled snapshot run failed",
				log.FieldError, err,
				log.FieldOperation, log.OpSnapshot)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule snapshot job: %w", err)
	}
	s.cron.Start()
	s.isRunning = true

	s.logger.InfoContext(ctx, "Snapshot scheduler started", "interval", s.interval)
	return nil
}

// Stop prevents new runs and waits for a running one to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Snapshot scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Snapshot scheduler stop timed out")
		return ctx.Err()
	}
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, log.FieldError, err)...)
}
