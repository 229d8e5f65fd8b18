package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/cycle"
	"github.com/mazotrader/orchestrator/internal/performance"
	"github.com/mazotrader/orchestrator/internal/positionmonitor"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/watchlist"
)

// jobTimeout bounds every default job's context; the cycle/health
// collaborators apply their own tighter per-stage timeouts underneath.
const jobTimeout = 5 * time.Minute

// PortfolioSource is the subset of the Broker Gateway the daily-snapshot
// and equity-capture jobs need.
type PortfolioSource interface {
	SyncPortfolio(ctx context.Context) (broker.PortfolioSnapshot, error)
}

// cycleJob drives one run_trading_cycle pass (§4.3) on a schedule.
type cycleJob struct {
	name   string
	engine *cycle.Engine
	req    cycle.Request
}

func (j *cycleJob) Name() string { return j.name }

func (j *cycleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	result, err := j.engine.Run(ctx, j.req)
	if err != nil {
		return err
	}
	if len(result.StageErrors) > 0 {
		return fmt.Errorf("trading cycle %q completed with stage errors: %v", j.name, result.StageErrors)
	}
	return nil
}

// positionMonitorJob drives one Position Monitor scan (§4.7).
type positionMonitorJob struct {
	monitor *positionmonitor.Monitor
}

func (j *positionMonitorJob) Name() string { return "position_monitor" }

func (j *positionMonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	result := j.monitor.Scan(ctx)
	if len(result.Errors) > 0 {
		return fmt.Errorf("position monitor scan had %d error(s): %v", len(result.Errors), result.Errors)
	}
	return nil
}

// watchlistJob drives one Watchlist trigger check (§4.5).
type watchlistJob struct {
	service *watchlist.Service
}

func (j *watchlistJob) Name() string { return "watchlist_monitor" }

func (j *watchlistJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, err := j.service.CheckTriggers(ctx)
	return err
}

// healthJob drives one Health Checker pass (§4.9), escalating a BLOCKED
// aggregate status to a job failure so the scheduler's retry/alert path
// picks it up.
type healthJob struct {
	name    string
	checker *telemetry.HealthChecker
}

func (j *healthJob) Name() string { return j.name }

func (j *healthJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	report := j.checker.Run(ctx)
	if report.Status == telemetry.StatusBlocked {
		return fmt.Errorf("health check %q BLOCKED: %+v", j.name, report.Checks)
	}
	return nil
}

// equityTracker remembers the day's opening equity so the 16:05 snapshot
// job can compute a same-day return. Falls back to the current equity
// when the process started after the open (no recorded opening value).
type equityTracker struct {
	mu      sync.Mutex
	date    time.Time
	opening float64
}

func (e *equityTracker) markOpen(equity float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.date = truncateDay(now)
	e.opening = equity
}

func (e *equityTracker) startingEquity(now time.Time, fallback float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.date.Equal(truncateDay(now)) {
		return e.opening
	}
	return fallback
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// equityCaptureJob snapshots the day's opening equity, run once at market
// open so dailySnapshotJob has a same-day baseline to return against.
type equityCaptureJob struct {
	portfolio PortfolioSource
	tracker   *equityTracker
}

func (j *equityCaptureJob) Name() string { return "equity_capture" }

func (j *equityCaptureJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	snap, err := j.portfolio.SyncPortfolio(ctx)
	if err != nil {
		return err
	}
	j.tracker.markOpen(snap.Account.Equity, time.Now())
	return nil
}

// dailySnapshotJob builds and persists the end-of-day rollup (§4.8), taken
// after the close.
type dailySnapshotJob struct {
	tracker   *performance.Tracker
	portfolio PortfolioSource
	equity    *equityTracker
	log       zerolog.Logger
}

func (j *dailySnapshotJob) Name() string { return "daily_snapshot" }

func (j *dailySnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	snap, err := j.portfolio.SyncPortfolio(ctx)
	if err != nil {
		return err
	}

	var unrealized float64
	for _, p := range snap.Positions {
		unrealized += p.UnrealizedPL
	}

	now := time.Now()
	startingEquity := j.equity.startingEquity(now, snap.Account.Equity)

	result, ok, err := j.tracker.CaptureDailySnapshot(now, startingEquity, snap.Account.Equity, unrealized)
	if err != nil {
		return err
	}
	if !ok {
		j.log.Debug().Msg("daily snapshot already captured for today, skipping")
		return nil
	}
	j.log.Info().Str("snapshot", result.String()).Msg("daily snapshot captured")
	return nil
}

// AddDefaultSchedule registers the exact ET default schedule (§4.4):
// pre-market health check, market-open momentum scan, mid-morning
// diversification scan, midday stop-loss review, afternoon health check,
// pre-close watchlist monitor, end-of-day performance snapshot, plus the
// always-on position-monitor and trading-cycle intervals.
func (s *Scheduler) AddDefaultSchedule(jobs DefaultJobs) error {
	const defaultMaxRetries = 3

	registrations := []struct {
		name       string
		hour, min  int
		job        Job
	}{
		{"premarket_health_check", 6, 30, &healthJob{name: "premarket_health_check", checker: jobs.HealthChecker}},
		{"market_open_equity_capture", 9, 30, &equityCaptureJob{portfolio: jobs.Portfolio, tracker: jobs.equity()}},
		{"momentum_scan", 9, 35, &cycleJob{name: "momentum_scan", engine: jobs.Engine, req: jobs.MomentumScanRequest}},
		{"diversification_scan", 10, 0, &cycleJob{name: "diversification_scan", engine: jobs.Engine, req: jobs.DiversificationScanRequest}},
		{"midday_stoploss_review", 12, 0, &positionMonitorJob{monitor: jobs.PositionMonitor}},
		{"afternoon_health_check", 14, 0, &healthJob{name: "afternoon_health_check", checker: jobs.HealthChecker}},
		{"preclose_watchlist_monitor", 15, 30, &watchlistJob{service: jobs.Watchlist}},
		{"daily_performance_snapshot", 16, 5, &dailySnapshotJob{tracker: jobs.Performance, portfolio: jobs.Portfolio, equity: jobs.equity(), log: s.log}},
	}

	for _, r := range registrations {
		if _, err := s.AddCronTask(TaskTypeCron, r.name, r.hour, r.min, r.job, defaultMaxRetries, nil); err != nil {
			return fmt.Errorf("scheduler: register %q: %w", r.name, err)
		}
	}

	if _, err := s.AddIntervalTask(TaskTypeInterval, "position_monitor", 5, &positionMonitorJob{monitor: jobs.PositionMonitor}, defaultMaxRetries, nil); err != nil {
		return fmt.Errorf("scheduler: register position_monitor interval: %w", err)
	}
	if _, err := s.AddIntervalTask(TaskTypeInterval, "trading_cycle", 30, &cycleJob{name: "trading_cycle", engine: jobs.Engine, req: jobs.TradingCycleRequest}, defaultMaxRetries, nil); err != nil {
		return fmt.Errorf("scheduler: register trading_cycle interval: %w", err)
	}

	return nil
}

// DefaultJobs bundles every collaborator AddDefaultSchedule wires into the
// ET default schedule (§4.4).
type DefaultJobs struct {
	Engine        *cycle.Engine
	PositionMonitor *positionmonitor.Monitor
	Watchlist     *watchlist.Service
	Performance   *performance.Tracker
	HealthChecker *telemetry.HealthChecker
	Portfolio     PortfolioSource

	MomentumScanRequest        cycle.Request
	DiversificationScanRequest cycle.Request
	TradingCycleRequest        cycle.Request

	sharedEquity *equityTracker
}

func (d *DefaultJobs) equity() *equityTracker {
	if d.sharedEquity == nil {
		d.sharedEquity = &equityTracker{}
	}
	return d.sharedEquity
}
