package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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

type fakeRunnable struct {
	jobType string
	run     func(ctx context.Context, log *logging.Logger) Outcome
}

func (f *fakeRunnable) JobType() string { return f.jobType }
func (f *fakeRunnable) Run(ctx context.Context, log *logging.Logger) Outcome {
	return f.run(ctx, log)
}

func TestTrigger_RecordsSuccessfulExecution(t *testing.T) {
	repo := setupTestRepo(t)
	runnable := &fakeRunnable{jobType: "test_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		log.Info("did the thing")
		return Outcome{Status: StatusSuccess, ItemsProcessed: 3}
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), time.Second)

	outcome := job.Trigger(context.Background(), TriggeredManual)

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.ItemsProcessed)

	running, err := repo.RunningExecutionExists(context.Background(), "test_job")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestTrigger_SkipsWhenAlreadyRunning(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateExecution(ctx, &store.JobExecution{JobType: "test_job", Status: StatusRunning, StartedAt: time.Now()}))

	runnable := &fakeRunnable{jobType: "test_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		t.Fatal("should never run while another execution is in progress")
		return Outcome{}
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), time.Second)

	outcome := job.Trigger(ctx, TriggeredScheduler)
	assert.Equal(t, StatusSkipped, outcome.Status)
}

func TestTrigger_TimesOutSlowRun(t *testing.T) {
	repo := setupTestRepo(t)
	runnable := &fakeRunnable{jobType: "slow_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return Outcome{Status: StatusSuccess}
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), 20*time.Millisecond)

	outcome := job.Trigger(context.Background(), TriggeredManual)

	assert.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "failed:timeout")
	assert.Contains(t, outcome.Err.Error(), "exceeded timeout")
}

func TestTrigger_ClassifiesShutdownDistinctFromTimeout(t *testing.T) {
	repo := setupTestRepo(t)
	started := make(chan struct{})
	runnable := &fakeRunnable{jobType: "shutdown_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		close(started)
		<-ctx.Done()
		return Outcome{Status: StatusSuccess}
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	outcome := job.Trigger(ctx, TriggeredManual)

	assert.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "failed:shutdown")
	assert.NotContains(t, outcome.Err.Error(), "failed:timeout")
}

func TestTrigger_RecoversFromPanic(t *testing.T) {
	repo := setupTestRepo(t)
	runnable := &fakeRunnable{jobType: "panicky_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		panic("boom")
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), time.Second)

	outcome := job.Trigger(context.Background(), TriggeredManual)

	assert.Equal(t, StatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "panicked")
}

func TestTrigger_PersistsCapturedLog(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	runnable := &fakeRunnable{jobType: "logging_job", run: func(ctx context.Context, log *logging.Logger) Outcome {
		log.Info("hello from inside the run")
		return Outcome{Status: StatusSuccess}
	}}
	job := NewBaseJob(runnable, repo, logging.Nop(), time.Second)
	job.Trigger(ctx, TriggeredManual)

	execs, err := repo.ExecutionsByJobType(ctx, "logging_job", 1)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Contains(t, string(execs[0].LogBlob), "hello from inside the run")
}
