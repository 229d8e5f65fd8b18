// Command trader is the orchestrator's composition root and CLI control
// surface (§6): start|stop|run-cycle|status|sync-orders|health. Grounded
// on the teacher's cmd/server/main.go wiring shape, extended from a single
// long-running server into a multi-subcommand binary the way a deployed
// trading daemon needs to be operated.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/config"
	"github.com/mazotrader/orchestrator/internal/cycle"
	"github.com/mazotrader/orchestrator/internal/database"
	"github.com/mazotrader/orchestrator/internal/marketstatus"
	"github.com/mazotrader/orchestrator/internal/performance"
	"github.com/mazotrader/orchestrator/internal/pidlock"
	"github.com/mazotrader/orchestrator/internal/positionmonitor"
	"github.com/mazotrader/orchestrator/internal/priceprovider"
	"github.com/mazotrader/orchestrator/internal/risk"
	"github.com/mazotrader/orchestrator/internal/scheduler"
	"github.com/mazotrader/orchestrator/internal/server"
	"github.com/mazotrader/orchestrator/internal/strategy"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/watchlist"
	"github.com/mazotrader/orchestrator/pkg/logger"
)

// Exit codes per the CLI contract (§6).
const (
	exitOK                = 0
	exitOther             = 1
	exitMisconfigured     = 2
	exitConflict          = 3
	exitBrokerOrTransport = 4
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: trader <start|stop|run-cycle|status|sync-orders|health> [flags]")
		os.Exit(exitOther)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitMisconfigured)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	var runErr error
	switch cmd {
	case "start":
		runErr = cmdStart(cfg, log)
	case "stop":
		runErr = cmdStop(cfg)
	case "run-cycle":
		runErr = cmdRunCycle(cfg, log, args)
	case "status":
		runErr = cmdStatus(cfg, log)
	case "sync-orders":
		runErr = cmdSyncOrders(cfg, log, args)
	case "health":
		runErr = cmdHealth(cfg, log, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(exitOther)
	}

	os.Exit(exitCodeFor(runErr))
}

// exitCodeFor maps the tagged error taxonomy (§trading/errors) onto the
// CLI's fixed exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	var cfgErr *tradeerrors.ConfigError
	var conflictErr *tradeerrors.Conflict
	var brokerErr *tradeerrors.BrokerError
	var transportErr *tradeerrors.TransportError
	var rateLimitedErr *tradeerrors.RateLimited

	switch {
	case errors.As(err, &cfgErr):
		return exitMisconfigured
	case errors.As(err, &conflictErr):
		return exitConflict
	case errors.As(err, &brokerErr), errors.As(err, &transportErr), errors.As(err, &rateLimitedErr):
		fmt.Fprintln(os.Stderr, err)
		return exitBrokerOrTransport
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitOther
	}
}

const pidLockPath = "./data/trader.pid"

// app bundles every wired collaborator a subcommand might need, built
// once per invocation by buildApp.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	stateDB  *database.DB
	ledgerDB *database.DB

	brokerClient *broker.Client
	priceCache   *priceprovider.Cache
	prices       *priceprovider.Provider
	strategies   *strategy.Engine
	sizer        *risk.Sizer
	perfRepo     *performance.Repository
	agentPerf    *performance.AgentPerformanceRepository
	tracker      *performance.Tracker
	watchRepo    *watchlist.Repository
	watchSvc     *watchlist.Service
	monitor      *positionmonitor.Monitor
	engine       *cycle.Engine
	marketStream *marketstatus.Stream
	sched        *scheduler.Scheduler

	events  *telemetry.EventLogger
	alerter *telemetry.Alerter
	rlmon   *telemetry.RateLimitMonitor
	health  *telemetry.HealthChecker
}

// buildApp wires every collaborator exactly once. Closing the returned
// app (via its two *database.DB handles) is the caller's responsibility.
func buildApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	stateDB, err := database.New(cfg.StateDBPath)
	if err != nil {
		return nil, err
	}
	ledgerDB, err := database.New(cfg.LedgerDBPath)
	if err != nil {
		stateDB.Close()
		return nil, err
	}

	rlmon := telemetry.NewRateLimitMonitor()
	alerter := telemetry.NewAlerter(log, nil)
	events := telemetry.NewEventLogger(nil, log)

	brokerClient := broker.New(broker.Config{
		APIKeyID:        cfg.BrokerAPIKeyID,
		APISecretKey:    cfg.BrokerAPISecretKey,
		TradingBaseURL:  cfg.BrokerTradingURL,
		DataBaseURL:     cfg.BrokerDataURL,
		AllowFractional: cfg.AllowFractional,
	}, rlmon, log)

	priceCache, err := priceprovider.NewCache("./data/price_cache", log)
	if err != nil {
		return nil, err
	}
	fetcher := broker.NewBarsFetcher(brokerClient, cfg.UseIntradayData)
	prices := priceprovider.New(priceCache, fetcher, log)

	strategies := strategy.NewEngine()

	sizer := risk.NewSizer(risk.Config{
		SmallAccountThreshold:          cfg.SmallAccountThreshold,
		SmallAccountMaxSignals:         cfg.SmallAccountMaxSignals,
		SmallAccountMinConfidence:      cfg.SmallAccountMinConfidence,
		SmallAccountMaxTickerPrice:     cfg.SmallAccountMaxTickerPrice,
		SmallAccountPositionCap:        cfg.SmallAccountPositionCap,
		ExplicitTargetNotionalPerTrade: cfg.ExplicitTargetNotionalPerTrade,
		MinBuyingPowerPct:              cfg.MinBuyingPowerPct,
		PerTickerCapPct:                cfg.PerTickerCapPct,
		ATRStopMultiplier:              cfg.ATRStopMultiplier,
		ATRTakeProfitMultiplier:        cfg.ATRTakeProfitMultiplier,
		TradeCooldownMinutes:           cfg.TradeCooldownMinutes,
		AllowFractional:                cfg.AllowFractional,
	})

	perfRepo := performance.NewRepository(ledgerDB.Conn(), log)
	if err := perfRepo.Migrate(); err != nil {
		return nil, err
	}
	agentPerf := performance.NewAgentPerformanceRepository(stateDB.Conn(), log)
	if err := agentPerf.Migrate(); err != nil {
		return nil, err
	}
	tracker := performance.NewTracker(perfRepo, agentPerf, log)

	watchRepo := watchlist.NewRepository(stateDB.Conn(), log)
	if err := watchRepo.Migrate(); err != nil {
		return nil, err
	}
	watchSvc := watchlist.New(watchRepo, prices, alerter, log)

	monitor := positionmonitor.New(brokerClient, alerter, tracker, log)

	marketStream := marketstatus.New(cfg.BrokerStreamURL, brokerClient, log)

	engine := cycle.New(
		cycle.DefaultConfig(), prices, strategies,
		nil, // Researcher: external collaborator, cycle.go degrades a nil researcher to unknown sentiment
		&holdOnlyDecider{},
		brokerClient, sizer, tracker, watchSvc, events,
		nil, log,
	)

	heartbeats := scheduler.NewHeartbeatRepository(stateDB.Conn(), log)
	if err := heartbeats.Migrate(); err != nil {
		return nil, err
	}
	sched := scheduler.New(log, events, alerter, heartbeats)

	health := telemetry.NewHealthChecker(telemetry.HealthCheckerConfig{
		Broker:     brokerClient,
		DB:         ledgerDB.Conn(),
		CacheProbe: func(ctx context.Context) error { return nil },
		Heartbeats: sched,
		Calendar:   marketStream,
		RequiredAPIKeys: map[string]string{
			"APCA_API_KEY_ID":     cfg.BrokerAPIKeyID,
			"APCA_API_SECRET_KEY": cfg.BrokerAPISecretKey,
		},
		StaleThreshold: time.Duration(cfg.SchedulerStaleThresholdMinutes) * time.Minute,
		Alerter:        alerter,
	}, log)

	return &app{
		cfg: cfg, log: log,
		stateDB: stateDB, ledgerDB: ledgerDB,
		brokerClient: brokerClient, priceCache: priceCache, prices: prices,
		strategies: strategies, sizer: sizer,
		perfRepo: perfRepo, agentPerf: agentPerf, tracker: tracker,
		watchRepo: watchRepo, watchSvc: watchSvc,
		monitor: monitor, engine: engine, marketStream: marketStream, sched: sched,
		events: events, alerter: alerter, rlmon: rlmon, health: health,
	}, nil
}

func (a *app) close() {
	a.marketStream.Stop()
	a.stateDB.Close()
	a.ledgerDB.Close()
}

// holdOnlyDecider stands in for the external Decision Collaborator (§6),
// which has no in-repo implementation. It never approves a trade — every
// signal resolves to hold — so the cycle runs end to end (screening,
// research, decision) without an LLM/decision backend wired, and an
// operator can swap it for a real Decider once one exists. Hold decisions
// are skipped before sizing, so no sizing or execution happens with it.
type holdOnlyDecider struct{}

func (holdOnlyDecider) Decide(ctx context.Context, sig domain.TradingSignal, researchSummary string, portfolio broker.PortfolioSnapshot) (cycle.Decision, error) {
	return cycle.Decision{Action: domain.ActionHold, Reasoning: "no decision collaborator configured"}, nil
}

func cmdStart(cfg *config.Config, log zerolog.Logger) error {
	if err := pidlock.Acquire(pidLockPath); err != nil {
		return err
	}
	defer pidlock.Release(pidLockPath)

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	a.marketStream.Start()

	if err := a.sched.AddDefaultSchedule(scheduler.DefaultJobs{
		Engine:                     a.engine,
		PositionMonitor:            a.monitor,
		Watchlist:                  a.watchSvc,
		Performance:                a.tracker,
		HealthChecker:              a.health,
		Portfolio:                  a.brokerClient,
		MomentumScanRequest:        cycle.Request{ExecuteTrades: true},
		DiversificationScanRequest: cycle.Request{ExecuteTrades: true},
		TradingCycleRequest:        cycle.Request{ExecuteTrades: true},
	}); err != nil {
		return err
	}
	a.sched.Start()
	defer a.sched.Stop()

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Health:  a.health,
		DevMode: cfg.DevMode,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("liveness server stopped")
		}
	}()

	log.Info().Msg("orchestrator started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// cmdStop signals a running `start` process (found via the PID lock) to
// terminate gracefully.
func cmdStop(cfg *config.Config) error {
	return pidlock.Signal(pidLockPath, syscall.SIGTERM)
}

func cmdRunCycle(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("run-cycle", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "screen and decide but do not submit orders")
	tickers := fs.String("tickers", "", "comma-separated ticker universe override")
	minConfidence := fs.Float64("min-confidence", 0, "minimum signal confidence (0 = engine default)")
	maxSignals := fs.Int("max-signals", 0, "maximum signals to act on (0 = engine default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	req := cycle.Request{
		DryRun:        *dryRun,
		ExecuteTrades: true,
		MinConfidence: *minConfidence,
		MaxSignals:    *maxSignals,
	}
	if *tickers != "" {
		req.Tickers = strings.Split(*tickers, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := a.engine.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("cycle %s: state=%s screened=%d signals=%d executed=%d duration_ms=%d\n",
		result.WorkflowID, result.State, result.TickersScreened, result.SignalsFound, result.TradesExecuted, result.DurationMs)
	if len(result.StageErrors) > 0 {
		return fmt.Errorf("trading cycle completed with stage errors: %v", result.StageErrors)
	}
	return nil
}

func cmdStatus(cfg *config.Config, log zerolog.Logger) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := a.brokerClient.SyncPortfolio(ctx)
	if err != nil {
		return err
	}
	pdt, err := a.brokerClient.CheckPDTStatus(ctx)
	if err != nil {
		return err
	}

	info, _ := pidlock.Read(pidLockPath)
	running := info != nil

	fmt.Printf("running=%v equity=%.2f buying_power=%.2f positions=%d pattern_day_trader=%v daytrade_count=%d can_day_trade=%v\n",
		running, snapshot.Account.Equity, snapshot.Account.BuyingPower, len(snapshot.Positions),
		pdt.IsPDT, pdt.DaytradeCount, pdt.CanDayTrade)

	since := time.Now().AddDate(0, 0, -90)
	m, err := a.tracker.ComputeMetricsSince(since)
	if err != nil {
		return err
	}
	sharpe, maxDD := "n/a", "n/a"
	if m.SharpeRatio != nil {
		sharpe = fmt.Sprintf("%.2f", *m.SharpeRatio)
	}
	if m.MaxDrawdownPct != nil {
		maxDD = fmt.Sprintf("%.2f%%", *m.MaxDrawdownPct)
	}
	fmt.Printf("trades_90d=%d win_rate=%.1f%% total_pnl=%.2f profit_factor=%.2f sharpe=%s max_drawdown=%s\n",
		m.TotalTrades, m.WinRate, m.TotalPnL, m.ProfitFactor, sharpe, maxDD)

	agentStats, err := a.agentPerf.ListAgentPerformance()
	if err != nil {
		return err
	}
	for _, ap := range agentStats {
		fmt.Printf("strategy=%s trades=%d win_rate=%.1f%% total_pnl=%.2f avg_return=%.2f%%\n",
			ap.Strategy, ap.TotalTrades, ap.WinRate, ap.TotalPnL, ap.AvgReturnPct)
	}
	return nil
}

// cmdSyncOrders reconciles pending TradeRecords submitted in the last
// --days days against the broker's reported order fills, then optionally
// rebuilds today's daily snapshot. TradeRecords carry no broker order ID
// (§4.8 schema), so reconciliation matches on ticker: the most recent
// filled broker order for a pending record's symbol is taken as its fill.
func cmdSyncOrders(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("sync-orders", flag.ExitOnError)
	days := fs.Int("days", 1, "look back this many days for pending trade records")
	recomputePnl := fs.Bool("recompute-pnl", false, "rebuild today's daily snapshot after reconciling")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	since := time.Now().AddDate(0, 0, -*days)
	pending, err := a.perfRepo.ListPending(since)
	if err != nil {
		return err
	}

	synced := 0
	for _, tr := range pending {
		orders, err := a.brokerClient.GetOrders(ctx, string(domain.OrderStatusFilled), 1, []string{tr.Ticker})
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			continue
		}
		if _, err := a.tracker.RecordFill(ctx, tr, orders[0]); err != nil {
			return err
		}
		synced++
	}
	log.Info().Int("synced", synced).Int("pending", len(pending)).Msg("sync-orders reconciled pending trade records")

	if *recomputePnl {
		snapshot, err := a.brokerClient.SyncPortfolio(ctx)
		if err != nil {
			return err
		}
		var unrealized float64
		for _, p := range snapshot.Positions {
			unrealized += p.UnrealizedPL
		}
		now := time.Now()
		if _, err := a.tracker.RecomputeDailySnapshot(now, snapshot.Account.Equity, snapshot.Account.Equity, unrealized); err != nil {
			return err
		}
		log.Info().Msg("recomputed today's daily snapshot")
	}

	return nil
}

func cmdHealth(cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	preMarket := fs.Bool("pre-market", false, "omit the market-calendar line from the listing (the check still runs and counts toward the status)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := a.health.Run(ctx)
	fmt.Printf("status=%s checked_at=%s\n", report.Status, report.CheckedAt.Format(time.RFC3339))
	for _, c := range report.Checks {
		if *preMarket && c.Name == "market_calendar" {
			continue
		}
		fmt.Printf("  %-20s %-6s %s\n", c.Name, c.Status, c.Message)
	}

	if report.Status == telemetry.StatusBlocked {
		return fmt.Errorf("health check reports BLOCKED")
	}
	return nil
}
