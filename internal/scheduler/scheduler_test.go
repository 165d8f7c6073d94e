package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/herald-lol/smurfcore/internal/jobs"
	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/store"
)

func setupTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return store.NewRepository(db)
}

type countingRunnable struct {
	jobType string
	calls   int64
}

func (c *countingRunnable) JobType() string { return c.jobType }
func (c *countingRunnable) Run(ctx context.Context, log *logging.Logger) jobs.Outcome {
	atomic.AddInt64(&c.calls, 1)
	return jobs.Outcome{Status: jobs.StatusSuccess}
}

func TestRegister_RefusesUnknownJobType(t *testing.T) {
	repo := setupTestRepo(t)
	s := New(repo, logging.Nop(), 10*time.Millisecond)

	runnable := &countingRunnable{jobType: "nonexistent_job"}
	err := s.Register(context.Background(), runnable, time.Second)
	assert.Error(t, err)
}

func TestRegister_SkipsDisabledJob(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, seedConfig(repo, "disabled_job", "* * * * *", false))
	s := New(repo, logging.Nop(), 10*time.Millisecond)

	runnable := &countingRunnable{jobType: "disabled_job"}
	require.NoError(t, s.Register(ctx, runnable, time.Second))

	assert.False(t, s.Trigger(ctx, "disabled_job"))
}

func TestDispatchLoop_FiresDueJob(t *testing.T) {
	repo := setupTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, seedConfig(repo, "frequent_job", "* * * * *", true))
	s := New(repo, logging.Nop(), 5*time.Millisecond)

	runnable := &countingRunnable{jobType: "frequent_job"}
	require.NoError(t, s.Register(ctx, runnable, time.Second))

	s.mu.Lock()
	s.entries["frequent_job"].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	s.Start(ctx)
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runnable.calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestTrigger_RunsRegisteredJobImmediately(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, seedConfig(repo, "manual_job", "0 0 1 1 *", true)) // once a year, never due naturally
	s := New(repo, logging.Nop(), time.Hour)

	runnable := &countingRunnable{jobType: "manual_job"}
	require.NoError(t, s.Register(ctx, runnable, time.Second))

	assert.True(t, s.Trigger(ctx, "manual_job"))
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runnable.calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateSchedule_RejectsInvalidCron(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, seedConfig(repo, "scheduled_job", "* * * * *", true))
	s := New(repo, logging.Nop(), time.Second)
	runnable := &countingRunnable{jobType: "scheduled_job"}
	require.NoError(t, s.Register(ctx, runnable, time.Second))

	err := s.UpdateSchedule(ctx, runnable, time.Second, "not a cron expression")
	assert.Error(t, err)
}

type slowRunnable struct {
	jobType string
	started chan struct{}
	release chan struct{}
}

func (s *slowRunnable) JobType() string { return s.jobType }
func (s *slowRunnable) Run(ctx context.Context, log *logging.Logger) jobs.Outcome {
	close(s.started)
	<-s.release
	return jobs.Outcome{Status: jobs.StatusSuccess}
}

func TestStop_WaitsForInFlightTriggerWithinGracePeriod(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, seedConfig(repo, "slow_manual_job", "0 0 1 1 *", true))
	s := New(repo, logging.Nop(), time.Hour)

	runnable := &slowRunnable{jobType: "slow_manual_job", started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, s.Register(ctx, runnable, time.Second))

	assert.True(t, s.Trigger(ctx, "slow_manual_job"))
	<-runnable.started

	stopped := make(chan struct{})
	go func() {
		s.Stop(time.Second)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight execution finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(runnable.release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the in-flight execution finished")
	}
}

func seedConfig(repo *store.Repository, jobType, cronExpr string, enabled bool) error {
	return repo.CreateJobConfiguration(context.Background(), &store.JobConfiguration{
		JobType: jobType, CronExpression: cronExpr, Enabled: enabled,
		TimeoutSeconds: 60, PerJobConcurrency: 1,
	})
}
