package cycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/telemetry"
	tradeerrors "github.com/mazotrader/orchestrator/internal/trading/errors"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Config holds the cycle's tunables (§4.3, §5).
type Config struct {
	MaxTickers         int
	ScreeningWorkers   int // K, default 8
	DefaultMinConfidence float64
	DefaultMaxSignals    int
	ResearchTimeout      time.Duration
	DecisionTimeout      time.Duration
	BrokerTimeout        time.Duration
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxTickers:           50,
		ScreeningWorkers:      8,
		DefaultMinConfidence:  65,
		DefaultMaxSignals:     3,
		ResearchTimeout:       60 * time.Second,
		DecisionTimeout:       30 * time.Second,
		BrokerTimeout:         20 * time.Second,
	}
}

// Request is the run_trading_cycle call shape.
type Request struct {
	Tickers       []string
	MinConfidence float64
	MaxSignals    int
	ExecuteTrades bool
	DryRun        bool
}

// Engine runs the Trading Cycle Pipeline, composing every collaborator.
// The running flag enforces at-most-one concurrent cycle (§4.3).
type Engine struct {
	cfg Config

	prices     PriceSource
	strategies StrategyEngine
	researcher Researcher
	decider    Decider
	broker     BrokerGateway
	sizer      Sizer
	history    TradeHistory
	watchlist  Watchlist
	events     *telemetry.EventLogger

	smallAccountPool []string

	mu      sync.Mutex
	running bool

	log zerolog.Logger
}

// New builds an Engine from its collaborators.
func New(cfg Config, prices PriceSource, strategies StrategyEngine, researcher Researcher, decider Decider,
	brokerGW BrokerGateway, sizer Sizer, history TradeHistory, watchlist Watchlist, events *telemetry.EventLogger,
	smallAccountPool []string, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg, prices: prices, strategies: strategies, researcher: researcher, decider: decider,
		broker: brokerGW, sizer: sizer, history: history, watchlist: watchlist, events: events,
		smallAccountPool: smallAccountPool, log: log.With().Str("component", "trading_cycle").Logger(),
	}
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// Run executes one full pass of the state machine (§4.3), returning a
// CycleResult that is also emitted as a trading_cycle_complete event.
func (e *Engine) Run(ctx context.Context, req Request) (domain.CycleResult, error) {
	if !e.begin() {
		return domain.CycleResult{}, &tradeerrors.Conflict{}
	}
	defer e.end()

	result := domain.CycleResult{
		State:       domain.CycleIdle,
		StartedAt:   time.Now(),
		StageErrors: make(map[string][]string),
	}

	wf := e.events.NewWorkflow("trading_cycle")
	result.WorkflowID = wf.ID

	minConfidence := req.MinConfidence
	if minConfidence <= 0 {
		minConfidence = e.cfg.DefaultMinConfidence
	}
	maxSignals := req.MaxSignals
	if maxSignals <= 0 {
		maxSignals = e.cfg.DefaultMaxSignals
	}

	finish := func(state domain.CycleState, err error) (domain.CycleResult, error) {
		result.State = state
		result.CompletedAt = time.Now()
		result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
		wf.Complete(err, map[string]interface{}{
			"tickers_screened": result.TickersScreened,
			"signals_found":    result.SignalsFound,
			"trades_executed":  result.TradesExecuted,
			"state":            string(state),
		})
		e.events.Emit(wf.ID, telemetry.EventCycleComplete, map[string]interface{}{"result": result})
		return result, err
	}

	if err := ctxErr(ctx); err != nil {
		return finish(domain.CycleCancelled, err)
	}

	// --- Screening ---
	result.State = domain.CycleScreening
	tickers, err := e.resolveUniverse(ctx, req.Tickers)
	if err != nil {
		result.StageErrors["screening"] = append(result.StageErrors["screening"], err.Error())
		return finish(domain.CycleErrored, err)
	}
	result.TickersScreened = len(tickers)

	scan := e.screen(ctx, tickers)
	var allSignals []domain.TradingSignal
	for _, sigs := range scan {
		for _, s := range sigs {
			if s.Confidence >= minConfidence {
				allSignals = append(allSignals, s)
			}
		}
	}
	result.SignalsFound = len(allSignals)

	if err := ctxErr(ctx); err != nil {
		return finish(domain.CycleCancelled, err)
	}

	sort.SliceStable(allSignals, func(i, j int) bool { return allSignals[i].Confidence > allSignals[j].Confidence })
	if len(allSignals) > maxSignals {
		allSignals = allSignals[:maxSignals]
	}

	portfolio, err := e.broker.SyncPortfolio(ctx)
	if err != nil {
		result.StageErrors["screening"] = append(result.StageErrors["screening"], err.Error())
		return finish(domain.CycleErrored, err)
	}

	allSignals = e.applyPreconditions(ctx, allSignals, portfolio)

	// --- Researching ---
	result.State = domain.CycleResearching
	research := make(map[string]ResearchResult, len(allSignals))
	for _, sig := range allSignals {
		if err := ctxErr(ctx); err != nil {
			return finish(domain.CycleCancelled, err)
		}
		research[sig.Ticker] = e.researchSignal(ctx, sig)
	}

	// --- Analyzing / Deciding ---
	result.State = domain.CycleAnalyzing
	type approved struct {
		signal   domain.TradingSignal
		decision Decision
	}
	var approvedDecisions []approved

	result.State = domain.CycleDeciding
	for _, sig := range allSignals {
		if err := ctxErr(ctx); err != nil {
			return finish(domain.CycleCancelled, err)
		}
		result.TradesAnalyzed++

		decCtx, cancel := context.WithTimeout(ctx, e.cfg.DecisionTimeout)
		decision, err := e.decider.Decide(decCtx, sig, research[sig.Ticker].Answer, portfolio)
		cancel()
		if err != nil {
			result.StageErrors["deciding"] = append(result.StageErrors["deciding"], fmt.Sprintf("%s: %v", sig.Ticker, err))
			continue
		}
		if decision.Action == domain.ActionHold {
			continue
		}
		result.MazoValidated++
		approvedDecisions = append(approvedDecisions, approved{signal: sig, decision: decision})
	}

	// --- Executing ---
	result.State = domain.CycleExecuting
	for _, a := range approvedDecisions {
		if err := ctxErr(ctx); err != nil {
			return finish(domain.CycleCancelled, err)
		}
		if !req.ExecuteTrades {
			continue
		}
		if err := e.executeDecision(ctx, wf.ID, a.signal, a.decision, research[a.signal.Ticker], portfolio, req.DryRun); err != nil {
			result.StageErrors["executing"] = append(result.StageErrors["executing"], fmt.Sprintf("%s: %v", a.signal.Ticker, err))
			continue
		}
		if !req.DryRun {
			result.TradesExecuted++
		}
	}

	return finish(domain.CycleCompleted, nil)
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &tradeerrors.Cancelled{}
	default:
		return nil
	}
}

// resolveUniverse builds the ticker set from watchlist ∪ positions ∪
// small-account pool when the caller passes none (§4.3).
func (e *Engine) resolveUniverse(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return capTickers(dedupe(requested), e.cfg.MaxTickers), nil
	}

	seen := make(map[string]bool)
	var universe []string

	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			universe = append(universe, t)
		}
	}

	if e.watchlist != nil {
		watching := domain.WatchlistWatching
		items, err := e.watchlist.GetWatchlist(&watching, "priority")
		if err == nil {
			for _, item := range items {
				add(item.Ticker)
			}
		}
	}

	portfolio, err := e.broker.SyncPortfolio(ctx)
	if err == nil {
		for _, p := range portfolio.Positions {
			add(p.Symbol)
		}
	}

	for _, t := range e.smallAccountPool {
		add(t)
	}

	return capTickers(universe, e.cfg.MaxTickers), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func capTickers(in []string, max int) []string {
	if max > 0 && len(in) > max {
		return in[:max]
	}
	return in
}

// screen runs the Strategy Engine over tickers with at most
// cfg.ScreeningWorkers concurrent fetch+analyze workers (§4.3, §5),
// grounded on the teacher-pack's ants/v2 worker-pool shape: a pool sized
// to K, a WaitGroup, and a panic-isolated task body per ticker.
func (e *Engine) screen(ctx context.Context, tickers []string) map[string][]domain.TradingSignal {
	results := make(map[string][]domain.TradingSignal)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := e.cfg.ScreeningWorkers
	if workers <= 0 {
		workers = 8
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to create screening worker pool, falling back to unbounded goroutines")
		pool = nil
	} else {
		defer pool.Release()
	}

	runOne := func(ticker string) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Interface("panic", r).Str("ticker", ticker).Msg("screening task panicked")
			}
		}()

		end := time.Now()
		start := end.AddDate(0, 0, -90)
		bars, err := e.prices.GetPrices(ctx, ticker, start, end)
		if err != nil || len(bars) == 0 {
			return
		}

		scan := e.strategies.ScanUniverse(map[string][]domain.PriceBar{ticker: bars}, nil, 0)
		if sigs, ok := scan[ticker]; ok {
			mu.Lock()
			results[ticker] = sigs
			mu.Unlock()
		}
	}

	for _, t := range tickers {
		wg.Add(1)
		ticker := t
		if pool != nil {
			if err := pool.Submit(func() { runOne(ticker) }); err != nil {
				go runOne(ticker)
			}
		} else {
			go runOne(ticker)
		}
	}
	wg.Wait()

	return results
}

// applyPreconditions filters signals against the PDT gate and per-ticker
// cooldown before Research/Decision ever see them. It does not check the
// number of open positions; buying power and the per-ticker notional cap
// are checked later, by Sizer.ComputeSize during execution.
func (e *Engine) applyPreconditions(ctx context.Context, signals []domain.TradingSignal, portfolio broker.PortfolioSnapshot) []domain.TradingSignal {
	pdt, err := e.broker.CheckPDTStatus(ctx)
	pdtBlocked := err == nil && !pdt.CanDayTrade

	out := make([]domain.TradingSignal, 0, len(signals))
	now := time.Now()
	for _, sig := range signals {
		if pdtBlocked {
			continue
		}
		if err := e.sizer.CheckCooldown(sig.Ticker, now); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// researchSignal asks the Research Collaborator, degrading to
// sentiment=unknown (a zero-value, Success=false result) on timeout or
// failure without aborting the cycle (§4.3).
func (e *Engine) researchSignal(ctx context.Context, sig domain.TradingSignal) ResearchResult {
	if e.researcher == nil {
		return ResearchResult{Success: false, Error: "no research collaborator configured"}
	}
	rctx, cancel := context.WithTimeout(ctx, e.cfg.ResearchTimeout)
	defer cancel()

	query := fmt.Sprintf("sentiment outlook for %s given a %s %s signal", sig.Ticker, sig.Direction, sig.Strategy)
	res, err := e.researcher.Research(rctx, query, ResearchStandard)
	if err != nil {
		return ResearchResult{Success: false, Error: err.Error()}
	}
	return res
}

// executeDecision sizes, preflights, and submits one approved decision,
// recording it via Trade History with or without a live broker submission
// depending on dryRun (§4.3, §4.6, §4.8). Every approved decision gets its
// full DecisionContext recorded regardless of dryRun; only a live run goes
// on to submit and track the resulting order.
func (e *Engine) executeDecision(ctx context.Context, workflowID string, sig domain.TradingSignal, dec Decision, research ResearchResult, portfolio broker.PortfolioSnapshot, dryRun bool) error {
	fractionable, err := e.broker.IsFractionable(ctx, sig.Ticker)
	if err != nil {
		fractionable = sig.Fractionable
	}

	size, err := e.sizer.ComputeSize(sig, portfolio.Account, fractionable)
	if err != nil {
		return err
	}
	if size.Qty <= 0 {
		return &tradeerrors.PreconditionFailed{Reason: "computed size is zero or negative"}
	}
	dec.Quantity = size.Qty

	if dryRun {
		e.events.Emit(workflowID, telemetry.EventPMDecision, map[string]interface{}{
			"ticker": sig.Ticker, "action": dec.Action, "qty": size.Qty, "dry_run": true,
		})
		if e.history != nil {
			return e.history.RecordDecision(ctx, buildDecisionContext(workflowID, sig, dec, research, portfolio))
		}
		return nil
	}

	if e.history != nil {
		if err := e.history.RecordDecision(ctx, buildDecisionContext(workflowID, sig, dec, research, portfolio)); err != nil {
			e.log.Warn().Err(err).Str("ticker", sig.Ticker).Msg("failed to record decision context")
		}
	}

	bctx, cancel := context.WithTimeout(ctx, e.cfg.BrokerTimeout)
	defer cancel()

	result, err := e.broker.ExecuteDecision(bctx, broker.DecisionInput{
		Ticker: sig.Ticker, Action: dec.Action, Quantity: size.Qty, Fractionable: fractionable,
	})
	if err != nil {
		return err
	}

	e.sizer.RecordTrade(sig.Ticker, time.Now())

	if e.history != nil && dec.Action != domain.ActionHold {
		tr, err := e.history.RecordSubmission(ctx, result.Order, dec.Action, sig.Strategy, fractionable)
		if err == nil {
			_, _ = e.history.RecordFill(ctx, tr, result.Order)
		}
	}

	return nil
}

// buildDecisionContext bundles one signal's full decision trail (§3, §4.3,
// §6). This engine has no multi-agent voting layer, so AgentSignals holds
// the single strategy that produced the signal and consensus collapses to
// a for/against pair on the final action.
func buildDecisionContext(workflowID string, sig domain.TradingSignal, dec Decision, research ResearchResult, portfolio broker.PortfolioSnapshot) domain.DecisionContext {
	consensusFor, consensusAgainst := 0, 1
	if dec.Action != domain.ActionHold {
		consensusFor, consensusAgainst = 1, 0
	}
	return domain.DecisionContext{
		WorkflowID:         workflowID,
		Signal:             sig,
		ResearchSummary:    research.Answer,
		ResearchConfidence: research.Confidence,
		AgentSignals:       map[string]string{sig.Strategy: string(sig.Direction)},
		ConsensusFor:       consensusFor,
		ConsensusAgainst:   consensusAgainst,
		PMAction:           dec.Action,
		PMQuantity:         dec.Quantity,
		PMStopLossPct:      dec.StopLossPct,
		PMTakeProfitPct:    dec.TakeProfitPct,
		PMReasoning:        dec.Reasoning,
		PortfolioSnapshot: map[string]float64{
			"equity":       portfolio.Account.Equity,
			"buying_power": portfolio.Account.BuyingPower,
		},
		CreatedAt: time.Now(),
	}
}
