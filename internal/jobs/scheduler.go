// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// Lock keys are stable across releases; replicas coordinate on them.
const (
	cleanupLockKey int64 = 7_301_001
)

const jobQueueCleanup = "notification_queue_cleanup"

// Locker guards a job so only one replica runs it at a time.
type Locker interface {
	TryLock(ctx context.Context, key int64) (unlock func(), ok bool, err error)
}

// QueueCleaner removes finished notification queue items.
type QueueCleaner interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config holds scheduler settings.
type Config struct {
	CleanupSchedule string
	Retention       time.Duration
	Timezone        string
	Timeout         time.Duration
}

// DefaultConfig returns default scheduler settings.
func DefaultConfig() Config {
	return Config{
		CleanupSchedule: "0 3 * * *",
		Retention:       7 * 24 * time.Hour,
		Timezone:        "UTC",
		Timeout:         5 * time.Minute,
	}
}

// Scheduler runs registered jobs.
type Scheduler struct {
	cfg     Config
	cron    *cron.Cron
	locker  Locker
	cleaner QueueCleaner
	now     func() time.Time
}

// NewScheduler creates a scheduler and registers its jobs.
func NewScheduler(cfg Config, locker Locker, cleaner QueueCleaner) (*Scheduler, error) {
	if cfg.Retention <= 0 {
		return nil, errors.New("jobs: retention must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("jobs: load timezone: %w", err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(loc), cron.WithParser(parser)),
		locker:  locker,
		cleaner: cleaner,
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.CleanupSchedule, s.cleanupJob); err != nil {
		return nil, fmt.Errorf("jobs: invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
	}

	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	slog.Info("starting job scheduler", "cleanup_schedule", s.cfg.CleanupSchedule, "retention", s.cfg.Retention)
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) cleanupJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.RunCleanup(ctx); err != nil {
		slog.Error("job failed", "job", jobQueueCleanup, "error", err)
	}
}

// RunCleanup deletes sent and failed notifications older than the retention
// window. It returns (0, nil) without doing anything when another replica
// holds the lock.
func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	unlock, ok, err := s.locker.TryLock(ctx, cleanupLockKey)
	if err != nil {
		metrics.JobRuns.WithLabelValues(jobQueueCleanup, "error").Inc()
		return 0, fmt.Errorf("lock: %w", err)
	}
	if !ok {
		slog.Info("job already running elsewhere", "job", jobQueueCleanup)
		metrics.JobRuns.WithLabelValues(jobQueueCleanup, "skipped").Inc()
		return 0, nil
	}
	defer unlock()

	cutoff := s.now().Add(-s.cfg.Retention)
	deleted, err := s.cleaner.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		metrics.JobRuns.WithLabelValues(jobQueueCleanup, "error").Inc()
		return 0, fmt.Errorf("delete finished notifications: %w", err)
	}

	metrics.JobRuns.WithLabelValues(jobQueueCleanup, "success").Inc()
	slog.Info("job completed", "job", jobQueueCleanup, "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}
