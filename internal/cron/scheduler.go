package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
)

const defaultTick = time.Minute

// Job is one unit of periodic work. Jobs must be safe to rerun after a
// partial failure.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type SchedulerParams struct {
	Logger  *logger.Logger
	Lock    Lock
	Metrics *metrics.CronMetrics
	// Tick is how often the scheduler wakes to look for due jobs.
	Tick time.Duration
	Now  func() time.Time
}

// Scheduler wakes every tick and, while holding the cluster lock, runs the
// jobs whose cadence has elapsed. Due times live in this process only, so
// after a failover a job may run once earlier than its cadence.
type Scheduler struct {
	logg    *logger.Logger
	lock    Lock
	metrics *metrics.CronMetrics
	tick    time.Duration
	now     func() time.Time
	entries []*entry
}

type entry struct {
	job   Job
	every time.Duration
	due   time.Time
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Scheduler{logg: p.Logger, lock: p.Lock, metrics: p.Metrics, tick: p.Tick, now: p.Now}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Every registers job to run at most once per interval. New jobs are due
// on the first cycle.
func (s *Scheduler) Every(interval time.Duration, job Job) error {
	if job == nil {
		return errors.New("job required")
	}
	if interval < s.tick {
		return fmt.Errorf("job %s: interval %s is shorter than tick %s", job.Name(), interval, s.tick)
	}
	s.entries = append(s.entries, &entry{job: job, every: interval})
	return nil
}

// Run ticks until ctx is canceled. The first cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tick": s.tick.String(),
		"jobs": s.describe(),
	}), "cron.scheduler_started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if _, err := s.Cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.scheduler_stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs every due job under the lock and returns the names it ran.
// A failing job does not stop the ones after it.
func (s *Scheduler) Cycle(ctx context.Context) ([]string, error) {
	now := s.now()
	due := s.due(now)
	if len(due) == 0 {
		return nil, nil
	}

	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron.cycle_skipped_lock_held")
		return nil, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	ran := make([]string, 0, len(due))
	for _, e := range due {
		s.run(ctx, e)
		e.due = now.Add(e.every)
		ran = append(ran, e.job.Name())
	}
	return ran, nil
}

func (s *Scheduler) due(now time.Time) []*entry {
	var out []*entry
	for _, e := range s.entries {
		if !now.Before(e.due) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	ctx = s.logg.WithField(ctx, "job", e.job.Name())
	started := s.now()
	err := e.job.Run(ctx)
	finished := s.now()
	took := finished.Sub(started)
	s.metrics.ObserveRun(e.job.Name(), took, finished, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return
	}
	s.logg.Info(ctx, "cron.job_completed")
}

func (s *Scheduler) describe() map[string]string {
	out := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		out[e.job.Name()] = e.every.String()
	}
	return out
}
