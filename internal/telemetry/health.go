package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// CheckStatus is the per-check result bucket.
type CheckStatus string

const (
	CheckOK   CheckStatus = "OK"
	CheckWarn CheckStatus = "WARN"
	CheckFail CheckStatus = "FAIL"
)

// CheckResult is one health-check outcome. Severity overrides the default
// status->alert-severity mapping when a check needs a finer distinction
// (e.g. scheduler staleness bands); zero value defers to the default.
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Message  string
	Severity Severity
}

// AggregateStatus is the overall system readiness.
type AggregateStatus string

const (
	StatusReady    AggregateStatus = "READY"
	StatusDegraded AggregateStatus = "DEGRADED"
	StatusBlocked  AggregateStatus = "BLOCKED"
)

// HealthReport is the result of a full health-check pass.
type HealthReport struct {
	Status    AggregateStatus
	Checks    []CheckResult
	CheckedAt time.Time
}

// BrokerAuthChecker is the narrow broker contract the health checker needs.
type BrokerAuthChecker interface {
	CheckAuth(ctx context.Context) error
	BuyingPower(ctx context.Context) (float64, error)
}

// HeartbeatSource exposes the scheduler's last-fired heartbeat, used to
// detect a hung or dead scheduler loop.
type HeartbeatSource interface {
	LastHeartbeat() (time.Time, bool)
}

// MarketCalendarChecker reports whether the exchange is currently open
// (wired to the marketstatus websocket stream, per DOMAIN STACK).
type MarketCalendarChecker interface {
	IsOpen(ctx context.Context) (bool, error)
}

// HealthChecker runs the bounded checks from §4.9: broker auth, buying
// power, cache, database, required API keys, scheduler heartbeat
// freshness, and market calendar.
type HealthChecker struct {
	log              zerolog.Logger
	broker           BrokerAuthChecker
	db               *sql.DB
	cacheProbe       func(ctx context.Context) error
	heartbeats       HeartbeatSource
	calendar         MarketCalendarChecker
	requiredAPIKeys  map[string]string // name -> value; empty value = missing
	staleThreshold   time.Duration
	checkTimeout     time.Duration
	alerter          *Alerter
}

// HealthCheckerConfig configures a HealthChecker. StaleThreshold defaults
// to 10 minutes (§4.9) if zero.
type HealthCheckerConfig struct {
	Broker          BrokerAuthChecker
	DB              *sql.DB
	CacheProbe      func(ctx context.Context) error
	Heartbeats      HeartbeatSource
	Calendar        MarketCalendarChecker
	RequiredAPIKeys map[string]string
	StaleThreshold  time.Duration
	Alerter         *Alerter
}

// NewHealthChecker builds a checker from its collaborators.
func NewHealthChecker(cfg HealthCheckerConfig, log zerolog.Logger) *HealthChecker {
	threshold := cfg.StaleThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &HealthChecker{
		log:             log.With().Str("component", "telemetry.health").Logger(),
		broker:          cfg.Broker,
		db:              cfg.DB,
		cacheProbe:      cfg.CacheProbe,
		heartbeats:      cfg.Heartbeats,
		calendar:        cfg.Calendar,
		requiredAPIKeys: cfg.RequiredAPIKeys,
		staleThreshold:  threshold,
		checkTimeout:    5 * time.Second,
		alerter:         cfg.Alerter,
	}
}

// Run executes every check, bounded by checkTimeout each, and aggregates
// the overall status: READY if no fail/warn, DEGRADED if only warns,
// BLOCKED if any fail.
func (h *HealthChecker) Run(ctx context.Context) HealthReport {
	checks := []CheckResult{
		h.checkBroker(ctx),
		h.checkBuyingPower(ctx),
		h.checkCache(ctx),
		h.checkDatabase(ctx),
		h.checkAPIKeys(),
		h.checkScheduler(),
		h.checkMarketCalendar(ctx),
		h.checkResources(),
	}

	status := StatusReady
	hasWarn := false
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			status = StatusBlocked
		case CheckWarn:
			hasWarn = true
		}
	}
	if status != StatusBlocked && hasWarn {
		status = StatusDegraded
	}

	report := HealthReport{Status: status, Checks: checks, CheckedAt: time.Now()}
	h.raiseAlerts(report)
	return report
}

func (h *HealthChecker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.checkTimeout)
}

func (h *HealthChecker) checkBroker(ctx context.Context) CheckResult {
	if h.broker == nil {
		return CheckResult{Name: "broker_auth", Status: CheckFail, Message: "no broker configured"}
	}
	cctx, cancel := h.withTimeout(ctx)
	defer cancel()
	if err := h.broker.CheckAuth(cctx); err != nil {
		return CheckResult{Name: "broker_auth", Status: CheckFail, Message: err.Error()}
	}
	return CheckResult{Name: "broker_auth", Status: CheckOK}
}

func (h *HealthChecker) checkBuyingPower(ctx context.Context) CheckResult {
	if h.broker == nil {
		return CheckResult{Name: "buying_power", Status: CheckFail, Message: "no broker configured"}
	}
	cctx, cancel := h.withTimeout(ctx)
	defer cancel()
	bp, err := h.broker.BuyingPower(cctx)
	if err != nil {
		return CheckResult{Name: "buying_power", Status: CheckFail, Message: err.Error()}
	}
	switch {
	case bp < 100:
		return CheckResult{Name: "buying_power", Status: CheckFail, Message: fmt.Sprintf("buying power $%.2f below $100 floor", bp)}
	case bp < 1000:
		return CheckResult{Name: "buying_power", Status: CheckWarn, Message: fmt.Sprintf("buying power $%.2f below $1000", bp)}
	default:
		return CheckResult{Name: "buying_power", Status: CheckOK}
	}
}

func (h *HealthChecker) checkCache(ctx context.Context) CheckResult {
	if h.cacheProbe == nil {
		return CheckResult{Name: "cache", Status: CheckOK, Message: "not configured"}
	}
	cctx, cancel := h.withTimeout(ctx)
	defer cancel()
	if err := h.cacheProbe(cctx); err != nil {
		return CheckResult{Name: "cache", Status: CheckWarn, Message: err.Error()}
	}
	return CheckResult{Name: "cache", Status: CheckOK}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Name: "database", Status: CheckFail, Message: "no database configured"}
	}
	cctx, cancel := h.withTimeout(ctx)
	defer cancel()
	if err := h.db.PingContext(cctx); err != nil {
		return CheckResult{Name: "database", Status: CheckFail, Message: err.Error()}
	}
	return CheckResult{Name: "database", Status: CheckOK}
}

func (h *HealthChecker) checkAPIKeys() CheckResult {
	var missing []string
	for name, val := range h.requiredAPIKeys {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return CheckResult{Name: "api_keys", Status: CheckFail, Message: fmt.Sprintf("missing: %v", missing)}
	}
	return CheckResult{Name: "api_keys", Status: CheckOK}
}

// checkScheduler implements the staleness rule: below half the threshold,
// no alert (OK); from half the threshold up to the threshold, WARN/P2;
// at/after the threshold, WARN/P1 (degrades the aggregate status, but does
// not block it — see §9 Open Questions and §8 S6).
func (h *HealthChecker) checkScheduler() CheckResult {
	if h.heartbeats == nil {
		return CheckResult{Name: "scheduler", Status: CheckOK, Message: "not configured"}
	}
	last, ok := h.heartbeats.LastHeartbeat()
	if !ok {
		return CheckResult{Name: "scheduler", Status: CheckFail, Message: "no_heartbeats", Severity: SeverityCritical}
	}
	age := time.Since(last)
	half := h.staleThreshold / 2
	switch {
	case age >= h.staleThreshold:
		return CheckResult{Name: "scheduler", Status: CheckWarn, Message: fmt.Sprintf("stale: last heartbeat %s ago", age.Round(time.Second)), Severity: SeverityWarning}
	case age >= half:
		return CheckResult{Name: "scheduler", Status: CheckWarn, Message: fmt.Sprintf("stale: last heartbeat %s ago", age.Round(time.Second)), Severity: SeverityInfo}
	default:
		return CheckResult{Name: "scheduler", Status: CheckOK}
	}
}

func (h *HealthChecker) checkMarketCalendar(ctx context.Context) CheckResult {
	if h.calendar == nil {
		return CheckResult{Name: "market_calendar", Status: CheckOK, Message: "not configured"}
	}
	cctx, cancel := h.withTimeout(ctx)
	defer cancel()
	open, err := h.calendar.IsOpen(cctx)
	if err != nil {
		return CheckResult{Name: "market_calendar", Status: CheckWarn, Message: err.Error()}
	}
	msg := "market closed"
	if open {
		msg = "market open"
	}
	return CheckResult{Name: "market_calendar", Status: CheckOK, Message: msg}
}

// checkResources samples CPU/RAM over a short window (gopsutil), grounded
// on the root sentinel's system_handlers.go getSystemStats pattern.
func (h *HealthChecker) checkResources() CheckResult {
	cpuPct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPct) == 0 {
		return CheckResult{Name: "resources", Status: CheckWarn, Message: "cpu sample unavailable"}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return CheckResult{Name: "resources", Status: CheckWarn, Message: "memory sample unavailable"}
	}
	if memStat.UsedPercent > 95 || cpuPct[0] > 95 {
		return CheckResult{
			Name:    "resources",
			Status:  CheckWarn,
			Message: fmt.Sprintf("cpu=%.1f%% mem=%.1f%%", cpuPct[0], memStat.UsedPercent),
		}
	}
	return CheckResult{
		Name:    "resources",
		Status:  CheckOK,
		Message: fmt.Sprintf("cpu=%.1f%% mem=%.1f%%", cpuPct[0], memStat.UsedPercent),
	}
}

func (h *HealthChecker) raiseAlerts(report HealthReport) {
	if h.alerter == nil {
		return
	}
	for _, c := range report.Checks {
		if c.Status != CheckFail && c.Status != CheckWarn {
			continue
		}
		sev := c.Severity
		if sev == "" {
			sev = SeverityWarning
			if c.Status == CheckWarn {
				sev = SeverityInfo
			}
		}
		h.alerter.Raise(sev, "health."+c.Name, c.Message)
	}
	if report.Status == StatusBlocked {
		h.alerter.Raise(SeverityCritical, "health", "aggregate status BLOCKED")
	}
}
