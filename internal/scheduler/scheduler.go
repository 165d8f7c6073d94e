// Package scheduler implements C6: it loads enabled job configurations,
// computes each one's next run time from its cron expression, and drives a
// single dispatch loop that triggers jobs as they come due. Operator edits
// (enable/disable, schedule changes) take effect by re-registering the
// affected entry in place, without a process restart.
//
// Grounded on other_examples' optimized_scheduler.go: a ticker-driven
// dispatch loop holding a registry of next-run times, rescheduling each job
// from its cron expression via robfig/cron/v3 after it fires, rather than
// handing schedules to the library's own background runner.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/jobs"
	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/store"
)

// entry is one registered job's live schedule state.
type entry struct {
	job      *jobs.BaseJob
	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler owns the dispatch loop and the registry of active jobs. It
// never registers a job_type with no configuration row (spec.md §9 Open
// Question i): Register loads the row with JobConfigurationByType and
// returns its not-found error when the row is absent.
type Scheduler struct {
	repo *store.Repository
	log  *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry

	pollInterval time.Duration
	quit         chan struct{}
	wg           sync.WaitGroup // dispatch loop goroutine
	jobsWG       sync.WaitGroup // in-flight Trigger goroutines, scheduled or manual
}

func New(repo *store.Repository, log *logging.Logger, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		repo:         repo,
		log:          log.Named("scheduler"),
		entries:      make(map[string]*entry),
		pollInterval: pollInterval,
		quit:         make(chan struct{}),
	}
}

// Register adds or replaces a job's runnable and schedule, reading the
// latter from its persisted JobConfiguration. Called once at startup for
// every known job type and again whenever an operator edits that job's
// schedule or enabled flag.
func (s *Scheduler) Register(ctx context.Context, runnable jobs.Runnable, timeout time.Duration) error {
	jobType := runnable.JobType()

	cfg, err := s.repo.JobConfigurationByType(ctx, jobType)
	if err != nil {
		return fmt.Errorf("scheduler: load configuration for %s: %w", jobType, err)
	}
	if !cfg.Enabled {
		s.mu.Lock()
		delete(s.entries, jobType)
		s.mu.Unlock()
		return nil
	}

	schedule, err := cron.ParseStandard(cfg.CronExpression)
	if err != nil {
		return fmt.Errorf("scheduler: parse cron %q for %s: %w", cfg.CronExpression, jobType, err)
	}

	baseJob := jobs.NewBaseJob(runnable, s.repo, s.log, timeout)

	s.mu.Lock()
	s.entries[jobType] = &entry{job: baseJob, schedule: schedule, nextRun: schedule.Next(time.Now())}
	s.mu.Unlock()
	return nil
}

// Unregister removes a job type from the dispatch loop entirely.
func (s *Scheduler) Unregister(jobType string) {
	s.mu.Lock()
	delete(s.entries, jobType)
	s.mu.Unlock()
}

// Start runs the dispatch loop until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.dispatchLoop(ctx)
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []string
	for jobType, e := range s.entries {
		if !now.Before(e.nextRun) {
			due = append(due, jobType)
		}
	}
	s.mu.Unlock()

	for _, jobType := range due {
		s.mu.Lock()
		e, ok := s.entries[jobType]
		if ok {
			e.nextRun = e.schedule.Next(now)
		}
		s.mu.Unlock()
		if !ok {
			continue
		}

		s.jobsWG.Add(1)
		go func(jobType string, e *entry) {
			defer s.jobsWG.Done()
			outcome := e.job.Trigger(ctx, jobs.TriggeredScheduler)
			if outcome.Status == jobs.StatusFailed {
				s.log.Error("scheduled execution failed", zap.String("job_type", jobType), zap.Error(outcome.Err))
			}
		}(jobType, e)
	}
}

// Trigger runs a registered job immediately, outside its normal schedule
// (spec.md §4.6 job-control contract: trigger(job_type)). It returns
// "rejected" via the ok=false return when the job isn't registered — either
// because it was never enabled or its configuration row doesn't exist.
func (s *Scheduler) Trigger(ctx context.Context, jobType string) (ok bool) {
	s.mu.Lock()
	e, ok := s.entries[jobType]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.jobsWG.Add(1)
	go func() {
		defer s.jobsWG.Done()
		e.job.Trigger(ctx, jobs.TriggeredManual)
	}()
	return true
}

// Stop signals the dispatch loop to exit and waits for the dispatch loop and
// every in-flight Trigger goroutine (scheduled or manual) to finish, within
// the caller-supplied grace period; it does not cancel in-flight executions
// itself — that's the ctx the caller passed to Start.
func (s *Scheduler) Stop(gracePeriod time.Duration) {
	close(s.quit)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.jobsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		s.log.Warn("scheduler stop exceeded grace period", zap.Duration("grace_period", gracePeriod))
	}
}

// SetEnabled flips a job's enabled flag and re-registers (or unregisters) it
// immediately (spec.md §4.6 set_enabled, §4.6 "applied by re-registering the
// affected trigger within the same process without restart").
func (s *Scheduler) SetEnabled(ctx context.Context, runnable jobs.Runnable, timeout time.Duration, enabled bool) error {
	if err := s.repo.SetJobEnabled(ctx, runnable.JobType(), enabled); err != nil {
		return err
	}
	return s.Register(ctx, runnable, timeout)
}

// UpdateSchedule changes a job's cron expression and re-registers it so the
// new schedule takes effect on the next poll (spec.md §4.6 update_schedule).
func (s *Scheduler) UpdateSchedule(ctx context.Context, runnable jobs.Runnable, timeout time.Duration, cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", cronExpr, err)
	}
	if err := s.repo.UpdateJobSchedule(ctx, runnable.JobType(), cronExpr); err != nil {
		return err
	}
	return s.Register(ctx, runnable, timeout)
}
