// Package scheduler implements the Scheduler (§4.4): wall-clock and
// interval task registration on top of robfig/cron, fixed to
// America/New_York, with exponential-backoff retries, panic-isolated job
// boundaries, and a heartbeat the Health Checker polls to detect a hung
// or dead loop. Grounded on the teacher's scheduler.go wrapper; retry,
// history, and heartbeat are new additions the teacher's cron-only
// version never needed.
package scheduler

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/telemetry"
)

// Job is one unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// TaskType distinguishes a wall-clock cron task from a fixed-interval one,
// purely for display in GetScheduledTasks.
type TaskType string

const (
	TaskTypeCron     TaskType = "cron"
	TaskTypeInterval TaskType = "interval"
)

// Task is a registered job plus its scheduling metadata.
type Task struct {
	ID         string
	Type       TaskType
	Name       string
	Schedule   string
	Params     map[string]interface{}
	MaxRetries int
	Job        Job
	EntryID    cron.EntryID
	CreatedAt  time.Time
}

// TaskRun is one history entry: a single attempt of a single firing.
type TaskRun struct {
	TaskID     string
	Name       string
	Attempt    int
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Error      string
}

// retryBackoff implements the fixed 1m/2m/4m backoff ladder (§4.4),
// capped at the last step for any attempt beyond it.
func retryBackoff(attempt int) time.Duration {
	ladder := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}
	if attempt-1 < len(ladder) {
		return ladder[attempt-1]
	}
	return ladder[len(ladder)-1]
}

const historyCap = 1000

// Scheduler manages background jobs on a single cron.Cron pinned to
// America/New_York, so wall-clock registrations (AddCronTask) fire at the
// exchange's local time regardless of the host's TZ.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	events  *telemetry.EventLogger
	alerter *telemetry.Alerter
	loc     *time.Location
	store   HeartbeatStore

	id       string
	hostname string

	mu           sync.Mutex
	tasks        map[string]*Task
	history      []TaskRun
	runningCount int

	lastHeartbeat time.Time
	hasHeartbeat  bool

	// backoff computes the retry delay for a given failed attempt number;
	// overridable in tests to avoid sleeping through the real ladder.
	backoff func(attempt int) time.Duration
}

// New creates a new scheduler. events/alerter may be nil (tests). store, if
// non-nil, durably persists each heartbeat (§4.4, §6) and seeds the
// scheduler's in-memory staleness clock from whatever a prior process last
// saved, so a fresh restart still reports a stale (not absent) heartbeat
// until its own first fire.
func New(log zerolog.Logger, events *telemetry.EventLogger, alerter *telemetry.Alerter, store HeartbeatStore) *Scheduler {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:      log.With().Str("component", "scheduler").Logger(),
		events:   events,
		alerter:  alerter,
		loc:      loc,
		store:    store,
		id:       uuid.New().String(),
		hostname: hostname,
		tasks:    make(map[string]*Task),
		backoff:  retryBackoff,
	}

	if store != nil {
		if hb, ok, err := store.LastSavedHeartbeat(); err == nil && ok {
			s.lastHeartbeat = hb.Timestamp
			s.hasHeartbeat = true
		}
	}

	return s
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop drains in-flight job runs before returning.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddCronTask registers job to fire daily at hour:minute America/New_York
// time. Missed fires (host asleep, process down) are dropped, never
// coalesced into a catch-up run (§9 Open Questions).
func (s *Scheduler) AddCronTask(taskType TaskType, name string, hour, minute int, job Job, maxRetries int, params map[string]interface{}) (string, error) {
	schedule := fmt.Sprintf("0 %d %d * * *", minute, hour)
	return s.addTask(taskType, name, schedule, job, maxRetries, params)
}

// AddIntervalTask registers job to fire every `minutes` minutes.
func (s *Scheduler) AddIntervalTask(taskType TaskType, name string, minutes int, job Job, maxRetries int, params map[string]interface{}) (string, error) {
	schedule := fmt.Sprintf("@every %dm0s", minutes)
	return s.addTask(taskType, name, schedule, job, maxRetries, params)
}

func (s *Scheduler) addTask(taskType TaskType, name, schedule string, job Job, maxRetries int, params map[string]interface{}) (string, error) {
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		Name:       name,
		Schedule:   schedule,
		Params:     params,
		MaxRetries: maxRetries,
		Job:        job,
		CreatedAt:  time.Now(),
	}

	entryID, err := s.cron.AddFunc(schedule, func() { s.runTask(task, 1) })
	if err != nil {
		return "", err
	}
	task.EntryID = entryID

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	s.log.Info().Str("schedule", schedule).Str("job", name).Str("task_id", task.ID).Msg("task registered")
	return task.ID, nil
}

// RemoveTask cancels a registered task's future firings.
func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("scheduler: task %q not found", id)
	}
	s.cron.Remove(task.EntryID)
	s.log.Info().Str("task_id", id).Str("job", task.Name).Msg("task removed")
	return nil
}

// TaskInfo is the read-only view GetScheduledTasks returns.
type TaskInfo struct {
	ID         string
	Type       TaskType
	Name       string
	Schedule   string
	MaxRetries int
	CreatedAt  time.Time
	NextRun    time.Time
}

// GetScheduledTasks lists every currently registered task.
func (s *Scheduler) GetScheduledTasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		info := TaskInfo{ID: t.ID, Type: t.Type, Name: t.Name, Schedule: t.Schedule, MaxRetries: t.MaxRetries, CreatedAt: t.CreatedAt}
		if entry := s.cron.Entry(t.EntryID); entry.ID != 0 {
			info.NextRun = entry.Next
		}
		out = append(out, info)
	}
	return out
}

// GetTaskHistory returns up to limit most-recent task runs, newest first.
func (s *Scheduler) GetTaskHistory(limit int) []TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TaskRun, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.history[n-1-i]
	}
	return out
}

// RunNow executes job immediately, outside any schedule, with no retry.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}

// LastHeartbeat implements telemetry.HeartbeatSource: the timestamp of the
// most recent job firing, used by the Health Checker's staleness check.
func (s *Scheduler) LastHeartbeat() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat, s.hasHeartbeat
}

// recordHeartbeat stamps the liveness clock and emits/persists the fire's
// heartbeat payload (§4.4: "{scheduler_id, hostname, jobs_pending,
// jobs_running} regardless of job outcome").
func (s *Scheduler) recordHeartbeat() {
	s.mu.Lock()
	now := time.Now()
	s.lastHeartbeat = now
	s.hasHeartbeat = true
	pending := len(s.tasks) - s.runningCount
	if pending < 0 {
		pending = 0
	}
	hb := Heartbeat{
		SchedulerID: s.id,
		Hostname:    s.hostname,
		JobsPending: pending,
		JobsRunning: s.runningCount,
		Timestamp:   now,
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveHeartbeat(hb); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist scheduler heartbeat")
		}
	}
	if s.events != nil {
		s.events.Emit("", telemetry.EventHeartbeat, map[string]interface{}{
			"scheduler_id": hb.SchedulerID,
			"hostname":     hb.Hostname,
			"jobs_pending": hb.JobsPending,
			"jobs_running": hb.JobsRunning,
		})
	}
}

func (s *Scheduler) appendHistory(run TaskRun) {
	s.mu.Lock()
	s.history = append(s.history, run)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.mu.Unlock()
}

// runTask executes one attempt of task, isolating a panic as a failed run,
// and schedules a backoff retry via time.AfterFunc (never blocking cron's
// own goroutine) when attempts remain.
func (s *Scheduler) runTask(task *Task, attempt int) {
	s.mu.Lock()
	s.runningCount++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runningCount--
		s.mu.Unlock()
	}()

	s.recordHeartbeat()
	started := time.Now()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = task.Job.Run()
	}()

	run := TaskRun{TaskID: task.ID, Name: task.Name, Attempt: attempt, StartedAt: started, FinishedAt: time.Now(), Success: runErr == nil}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	s.appendHistory(run)

	if runErr == nil {
		s.log.Debug().Str("job", task.Name).Int("attempt", attempt).Msg("job completed")
		if s.events != nil {
			s.events.Emit(task.ID, telemetry.EventWorkflowCompleted, map[string]interface{}{"job": task.Name, "attempt": attempt})
		}
		return
	}

	s.log.Error().Err(runErr).Str("job", task.Name).Int("attempt", attempt).Msg("job failed")
	if s.events != nil {
		s.events.Emit(task.ID, telemetry.EventWorkflowFailed, map[string]interface{}{"job": task.Name, "attempt": attempt, "error": runErr.Error()})
	}

	if attempt <= task.MaxRetries {
		delay := s.backoff(attempt)
		s.log.Warn().Str("job", task.Name).Dur("retry_in", delay).Msg("retrying job after backoff")
		time.AfterFunc(delay, func() { s.runTask(task, attempt+1) })
		return
	}

	if s.alerter != nil {
		s.alerter.Raise(telemetry.SeverityWarning, "scheduler",
			fmt.Sprintf("job %q failed after %d attempt(s): %v", task.Name, attempt, runErr))
	}
}
