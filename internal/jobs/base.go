// Package jobs implements the Job Framework (C5): a state machine shared by
// every job type in C7, with per-run log capture, a timeout watchdog, and
// enforcement of "at most one execution per job_type running at a time"
// (spec.md §4.5, §8 invariant).
//
// Grounded on internal/workers/analytics_worker_pool.go's start/stop
// lifecycle and context-cancellation shutdown pattern, generalized from a
// fixed goroutine pool processing a task channel into a run-to-completion
// state machine invoked per scheduled or manually-triggered execution.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/store"
)

// Status values for a JobExecution row (spec.md §4.5 state machine).
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
	StatusSkipped     = "skipped"
)

// Triggered-by values recorded on the execution row.
const (
	TriggeredScheduler = "scheduler"
	TriggeredManual    = "manual"
)

// Outcome is what a Runnable reports back to BaseJob after one execution.
type Outcome struct {
	Status         string // one of the Status* constants above (never pending/running)
	ItemsProcessed int
	ItemsFailed    int
	Err            error
}

// Runnable is what each concrete job (C7) implements: the actual work of
// one execution, given a logger scoped to this run.
type Runnable interface {
	JobType() string
	Run(ctx context.Context, log *logging.Logger) Outcome
}

// BaseJob drives one Runnable through the execution state machine. Trigger
// may be called from several goroutines at once (scheduled firings and
// manual triggers); claimMu serializes the RunningExecutionExists check and
// the insert of the running execution row, so only one call starts an
// execution and the others return skipped.
type BaseJob struct {
	runnable Runnable
	repo     *store.Repository
	log      *logging.Logger
	timeout  time.Duration
	claimMu  sync.Mutex // serializes the running check and the execution insert
}

func NewBaseJob(runnable Runnable, repo *store.Repository, log *logging.Logger, timeout time.Duration) *BaseJob {
	return &BaseJob{runnable: runnable, repo: repo, log: log.Named(runnable.JobType()), timeout: timeout}
}

// Trigger runs one execution to completion, recording its full lifecycle.
// It returns the terminal Outcome; it never panics and never returns an
// error that the caller must handle specially — every failure mode is
// captured as a terminal execution status instead (spec.md §4.5).
func (b *BaseJob) Trigger(ctx context.Context, triggeredBy string) Outcome {
	jobType := b.runnable.JobType()

	b.claimMu.Lock()
	running, err := b.repo.RunningExecutionExists(ctx, jobType)
	if err != nil {
		b.claimMu.Unlock()
		b.log.Error("check running execution", zap.Error(err))
		return Outcome{Status: StatusFailed, Err: err}
	}
	if running {
		b.claimMu.Unlock()
		b.log.Warn("skipping trigger: execution already running", zap.String("triggered_by", triggeredBy))
		return Outcome{Status: StatusSkipped}
	}

	exec := &store.JobExecution{
		JobType:   jobType,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Triggered: triggeredBy,
	}
	err = b.repo.CreateExecution(ctx, exec)
	b.claimMu.Unlock()
	if err != nil {
		b.log.Error("create execution row", zap.Error(err))
		return Outcome{Status: StatusFailed, Err: err}
	}

	capture := logging.NewCapture()
	runLog := b.log.WithCore(capture)

	outcome := b.runWithWatchdog(ctx, runLog)

	endedAt := time.Now()
	errMsg := ""
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}
	if err := b.repo.FinishExecution(ctx, exec.ID, outcome.Status, endedAt, errMsg, capture.Blob(), outcome.ItemsProcessed, outcome.ItemsFailed); err != nil {
		b.log.Error("finish execution row", zap.Error(err), zap.String("execution_id", exec.ID.String()))
	}

	return outcome
}

// runWithWatchdog enforces the per-job timeout (spec.md §4.5 watchdog):
// if Run doesn't return in time, the execution is recorded as failed, even
// though the goroutine running it may still be blocked. runCtx.Done() fires
// both when the timeout elapses and when ctx itself is externally
// cancelled (e.g. process shutdown cancelling the context passed to every
// job) — ctx.Err() is checked against the parent to tell those apart and tag
// the outcome as failed:shutdown versus failed:timeout
// (spec.md §4.6/§5).
func (b *BaseJob) runWithWatchdog(ctx context.Context, log *logging.Logger) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resultCh := make(chan Outcome, 1)
	go func() {
		resultCh <- b.safeRun(runCtx, log)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-runCtx.Done():
		jobType := b.runnable.JobType()
		if ctx.Err() != nil {
			return Outcome{Status: StatusFailed, Err: fmt.Errorf("failed:shutdown: job %s interrupted: %w", jobType, ctx.Err())}
		}
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("failed:timeout: job %s exceeded timeout of %s", jobType, b.timeout)}
	}
}

// safeRun recovers a panicking Runnable into a failed Outcome so one bad
// job can never take down the scheduler goroutine that triggered it.
func (b *BaseJob) safeRun(ctx context.Context, log *logging.Logger) (result Outcome) {
	defer func() {
		if r := recover(); r != nil {
			result = Outcome{Status: StatusFailed, Err: fmt.Errorf("job %s panicked: %v", b.runnable.JobType(), r)}
		}
	}()
	return b.runnable.Run(ctx, log)
}
