package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/database/repositories"
)

// Heartbeat is one liveness record emitted on every job firing (§4.4):
// {scheduler_id, hostname, jobs_pending, jobs_running}, timestamped.
type Heartbeat struct {
	SchedulerID string
	Hostname    string
	JobsPending int
	JobsRunning int
	Timestamp   time.Time
}

// HeartbeatStore is the durable store for Scheduler Heartbeats (§6), kept
// in state.db alongside Watchlist and Agent Performance.
type HeartbeatStore interface {
	SaveHeartbeat(hb Heartbeat) error
	LastSavedHeartbeat() (Heartbeat, bool, error)
}

// HeartbeatRepository persists the scheduler's most recent heartbeat to
// state.db, embedding the teacher's BaseRepository pattern like the other
// repositories in this system. Only the latest heartbeat is kept — it's a
// liveness pulse, not a history — so Save overwrites a single fixed row.
type HeartbeatRepository struct {
	*repositories.BaseRepository
}

// NewHeartbeatRepository wraps a state *sql.DB.
func NewHeartbeatRepository(stateDB *sql.DB, log zerolog.Logger) *HeartbeatRepository {
	return &HeartbeatRepository{BaseRepository: repositories.NewBase(stateDB, log.With().Str("repo", "scheduler_heartbeats").Logger())}
}

// Migrate creates the scheduler_heartbeats table if absent.
func (r *HeartbeatRepository) Migrate() error {
	_, err := r.DB().Exec(`
		CREATE TABLE IF NOT EXISTS scheduler_heartbeats (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			scheduler_id TEXT NOT NULL,
			hostname     TEXT NOT NULL,
			jobs_pending INTEGER NOT NULL,
			jobs_running INTEGER NOT NULL,
			fired_at     TEXT NOT NULL
		);
	`)
	return err
}

// SaveHeartbeat upserts the single tracked row.
func (r *HeartbeatRepository) SaveHeartbeat(hb Heartbeat) error {
	_, err := r.DB().Exec(`
		INSERT INTO scheduler_heartbeats (id, scheduler_id, hostname, jobs_pending, jobs_running, fired_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scheduler_id = excluded.scheduler_id,
			hostname     = excluded.hostname,
			jobs_pending = excluded.jobs_pending,
			jobs_running = excluded.jobs_running,
			fired_at     = excluded.fired_at
	`, hb.SchedulerID, hb.Hostname, hb.JobsPending, hb.JobsRunning, hb.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save scheduler heartbeat: %w", err)
	}
	return nil
}

// LastSavedHeartbeat returns the durable heartbeat left by this or a prior
// process, so a freshly restarted scheduler can still report a stale (not
// absent) heartbeat until its own first fire.
func (r *HeartbeatRepository) LastSavedHeartbeat() (Heartbeat, bool, error) {
	var hb Heartbeat
	var firedAt string
	err := r.DB().QueryRow(`SELECT scheduler_id, hostname, jobs_pending, jobs_running, fired_at FROM scheduler_heartbeats WHERE id = 1`).
		Scan(&hb.SchedulerID, &hb.Hostname, &hb.JobsPending, &hb.JobsRunning, &firedAt)
	if err == sql.ErrNoRows {
		return Heartbeat{}, false, nil
	}
	if err != nil {
		return Heartbeat{}, false, fmt.Errorf("load scheduler heartbeat: %w", err)
	}
	hb.Timestamp, err = time.Parse(time.RFC3339, firedAt)
	if err != nil {
		return Heartbeat{}, false, fmt.Errorf("parse scheduler heartbeat timestamp: %w", err)
	}
	return hb, true, nil
}
