package scheduler

import (
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/telemetry"
)

type countingJob struct {
	name    string
	failN   int32 // number of calls that should fail before succeeding
	calls   int32
	panicOn int32 // call number (1-indexed) that should panic, 0 = never
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.panicOn != 0 && n == j.panicOn {
		panic("boom")
	}
	if n <= j.failN {
		return errors.New("simulated failure")
	}
	return nil
}

func newTestScheduler() *Scheduler {
	events := telemetry.NewEventLogger(nil, zerolog.Nop())
	alerter := telemetry.NewAlerter(zerolog.Nop(), nil)
	return New(zerolog.Nop(), events, alerter, nil)
}

func TestRunTaskSucceedsRecordsHeartbeatAndHistory(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "ok_job"}
	task := &Task{ID: "t1", Name: "ok_job", Job: job, MaxRetries: 3}

	_, had := s.LastHeartbeat()
	assert.False(t, had)

	s.runTask(task, 1)

	last, had := s.LastHeartbeat()
	require.True(t, had)
	assert.WithinDuration(t, time.Now(), last, time.Second)

	history := s.GetTaskHistory(10)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, int32(1), job.calls)
}

func TestRunTaskRetriesWithBackoffThenSucceeds(t *testing.T) {
	s := newTestScheduler()
	s.backoff = func(attempt int) time.Duration { return time.Millisecond }
	job := &countingJob{name: "flaky_job", failN: 2}
	task := &Task{ID: "t2", Name: "flaky_job", Job: job, MaxRetries: 3}

	s.runTask(task, 1)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.calls) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(s.GetTaskHistory(10)) == 3
	}, 2*time.Second, 5*time.Millisecond)

	history := s.GetTaskHistory(10)
	require.Len(t, history, 3)
	assert.True(t, history[0].Success)
	assert.False(t, history[1].Success)
	assert.False(t, history[2].Success)
}

func TestRunTaskExhaustsRetriesAndAlerts(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "always_fails", failN: 100}
	task := &Task{ID: "t3", Name: "always_fails", Job: job, MaxRetries: 0}

	s.runTask(task, 1)

	history := s.GetTaskHistory(10)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)

	alerts := s.alerter.Recent()
	require.Len(t, alerts, 1)
	assert.Equal(t, telemetry.SeverityWarning, alerts[0].Severity)
}

func TestRunTaskRecoversFromPanic(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "panics", panicOn: 1}
	task := &Task{ID: "t4", Name: "panics", Job: job, MaxRetries: 0}

	s.runTask(task, 1)

	history := s.GetTaskHistory(10)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Error, "panic")
}

func TestAddRemoveAndListTasks(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "listed_job"}

	id, err := s.AddCronTask(TaskTypeCron, "listed_job", 9, 30, job, 3, nil)
	require.NoError(t, err)

	tasks := s.GetScheduledTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "listed_job", tasks[0].Name)
	assert.Equal(t, TaskTypeCron, tasks[0].Type)

	require.NoError(t, s.RemoveTask(id))
	assert.Empty(t, s.GetScheduledTasks())

	assert.Error(t, s.RemoveTask(id))
}

func TestAddIntervalTaskSchedulesEveryNMinutes(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "interval_job"}

	id, err := s.AddIntervalTask(TaskTypeInterval, "interval_job", 5, job, 3, nil)
	require.NoError(t, err)

	tasks := s.GetScheduledTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
	assert.Equal(t, "@every 5m0s", tasks[0].Schedule)
}

func TestRetryBackoffLadder(t *testing.T) {
	assert.Equal(t, time.Minute, retryBackoff(1))
	assert.Equal(t, 2*time.Minute, retryBackoff(2))
	assert.Equal(t, 4*time.Minute, retryBackoff(3))
	assert.Equal(t, 4*time.Minute, retryBackoff(4))
}

func TestHeartbeatRepositorySaveAndLoad(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewHeartbeatRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())

	_, ok, err := repo.LastSavedHeartbeat()
	require.NoError(t, err)
	assert.False(t, ok)

	hb := Heartbeat{SchedulerID: "sched-1", Hostname: "host-a", JobsPending: 2, JobsRunning: 1, Timestamp: time.Now()}
	require.NoError(t, repo.SaveHeartbeat(hb))

	loaded, ok, err := repo.LastSavedHeartbeat()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hb.SchedulerID, loaded.SchedulerID)
	assert.Equal(t, hb.JobsRunning, loaded.JobsRunning)

	hb2 := Heartbeat{SchedulerID: "sched-1", Hostname: "host-a", JobsPending: 0, JobsRunning: 3, Timestamp: time.Now()}
	require.NoError(t, repo.SaveHeartbeat(hb2))

	loaded, ok, err = repo.LastSavedHeartbeat()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, loaded.JobsRunning)
}

func TestSchedulerSeedsHeartbeatFromStore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewHeartbeatRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())
	require.NoError(t, repo.SaveHeartbeat(Heartbeat{SchedulerID: "prior", Hostname: "h", Timestamp: time.Now().Add(-time.Hour)}))

	s := New(zerolog.Nop(), nil, nil, repo)
	last, ok := s.LastHeartbeat()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), last, time.Second)
}
