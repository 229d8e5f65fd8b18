package performance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Tracker owns the TradeRecord lifecycle and the in-memory FIFO book. The
// book is process-lifetime (not persisted) and starts empty: open lots
// recorded before a restart are not reloaded from the repository.
type Tracker struct {
	repo      *Repository
	agentPerf AgentPerformanceStore
	book      *Book
	log       zerolog.Logger

	mu sync.Mutex
}

// NewTracker builds a Tracker over repo. agentPerf may be nil (tests,
// or a deployment that doesn't wire state.db's Agent Performance store)
// — closes simply skip the per-strategy rollup in that case.
func NewTracker(repo *Repository, agentPerf AgentPerformanceStore, log zerolog.Logger) *Tracker {
	return &Tracker{repo: repo, agentPerf: agentPerf, book: NewBook(), log: log.With().Str("component", "performance").Logger()}
}

// RecordSubmission appends a pending TradeRecord for a just-submitted
// order (§4.8). action is the PM's chosen verb (buy/sell/short/cover) —
// the wire order.Side only distinguishes buy/sell, so the caller supplies
// the domain-level action directly rather than having it re-derived here.
func (t *Tracker) RecordSubmission(ctx context.Context, order domain.Order, action domain.TradeAction, strategy string, fractionable bool) (domain.TradeRecord, error) {
	tr := domain.TradeRecord{
		ID:           uuid.New().String(),
		Ticker:       order.Symbol,
		Action:       action,
		Quantity:     order.Qty,
		EntryPrice:   order.FilledAvgPrice,
		EntryTime:    order.SubmittedAt,
		Strategy:     strategy,
		Status:       domain.TradeStatusPending,
		Fractionable: fractionable,
	}
	if err := t.repo.Create(tr); err != nil {
		return domain.TradeRecord{}, err
	}
	return tr, nil
}

// RecordFill marks a pending TradeRecord filled and, for opening actions
// (buy/short), enqueues the new lot into the FIFO book. For closing
// actions (sell/cover) it reconciles against the book and writes the
// derived realized_pnl/return_pct/holding_period_hours, closing the record.
func (t *Tracker) RecordFill(ctx context.Context, tr domain.TradeRecord, order domain.Order) (domain.TradeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr.EntryPrice = order.FilledAvgPrice
	tr.Quantity = order.FilledQty

	switch tr.Action {
	case domain.ActionBuy:
		t.book.OpenBuy(tr.Ticker, tr.ID, order.FilledQty, order.FilledAvgPrice)
		tr.Status = domain.TradeStatusFilled
		if err := t.repo.Update(tr); err != nil {
			return tr, err
		}
		return tr, nil
	case domain.ActionShort:
		t.book.OpenShort(tr.Ticker, tr.ID, order.FilledQty, order.FilledAvgPrice)
		tr.Status = domain.TradeStatusFilled
		if err := t.repo.Update(tr); err != nil {
			return tr, err
		}
		return tr, nil
	case domain.ActionSell:
		matches, _ := t.book.Sell(tr.Ticker, order.FilledQty, order.FilledAvgPrice)
		return t.closeFromMatches(tr, order, matches)
	case domain.ActionCover:
		matches, _ := t.book.Cover(tr.Ticker, order.FilledQty, order.FilledAvgPrice)
		return t.closeFromMatches(tr, order, matches)
	default:
		return tr, fmt.Errorf("record_fill: unknown action %q", tr.Action)
	}
}

func (t *Tracker) closeFromMatches(tr domain.TradeRecord, order domain.Order, matches []Match) (domain.TradeRecord, error) {
	realized := TotalRealizedPnL(matches)
	returnPct := 0.0
	var totalWeight float64
	for _, m := range matches {
		returnPct += m.ReturnPct * m.MatchedQty
		totalWeight += m.MatchedQty
	}
	if totalWeight > 0 {
		returnPct /= totalWeight
	}

	exitPrice := order.FilledAvgPrice
	now := order.FilledAt
	if now == nil {
		t := time.Now()
		now = &t
	}
	holdingHours := now.Sub(tr.EntryTime).Hours()

	tr.Status = domain.TradeStatusClosed
	tr.ExitPrice = &exitPrice
	tr.ExitTime = now
	tr.RealizedPnL = &realized
	tr.ReturnPct = &returnPct
	tr.HoldingPeriodHours = &holdingHours

	if err := t.repo.Update(tr); err != nil {
		return tr, err
	}

	if t.agentPerf != nil {
		if err := t.agentPerf.RecordTradeClose(tr.Strategy, realized, returnPct); err != nil {
			t.log.Warn().Err(err).Str("strategy", tr.Strategy).Msg("failed to record agent performance")
		}
	}

	return tr, nil
}

// CaptureDailySnapshot builds and persists the end-of-day rollup for date
// if one doesn't already exist, pulling the day's closed trades from the
// repository and combining them with the broker-reported equity bookends
// the caller supplies. Returns ok=false without error when a snapshot for
// date was already saved (§4.8 idempotence).
func (t *Tracker) CaptureDailySnapshot(date time.Time, startingEquity, endingEquity, unrealizedPnl float64) (snap DailySnapshot, ok bool, err error) {
	exists, err := t.repo.HasSnapshot(date)
	if err != nil {
		return DailySnapshot{}, false, err
	}
	if exists {
		return DailySnapshot{}, false, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	closed, err := t.repo.ListClosedSince(dayStart)
	if err != nil {
		return DailySnapshot{}, false, err
	}

	var pnls []float64
	for _, tr := range closed {
		if tr.RealizedPnL != nil {
			pnls = append(pnls, *tr.RealizedPnL)
		}
	}

	snap = BuildDailySnapshot(date, startingEquity, endingEquity, unrealizedPnl, pnls)
	if err := t.repo.SaveSnapshot(snap); err != nil {
		return DailySnapshot{}, false, err
	}
	return snap, true, nil
}

// RecomputeDailySnapshot rebuilds and overwrites date's snapshot
// unconditionally, bypassing the HasSnapshot idempotence gate — the
// `sync-orders --recompute-pnl` path, for when a late-arriving fill
// changes a day's realized P&L after the 16:05 snapshot already ran.
func (t *Tracker) RecomputeDailySnapshot(date time.Time, startingEquity, endingEquity, unrealizedPnl float64) (DailySnapshot, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	closed, err := t.repo.ListClosedSince(dayStart)
	if err != nil {
		return DailySnapshot{}, err
	}

	var pnls []float64
	for _, tr := range closed {
		if tr.RealizedPnL != nil {
			pnls = append(pnls, *tr.RealizedPnL)
		}
	}

	snap := BuildDailySnapshot(date, startingEquity, endingEquity, unrealizedPnl, pnls)
	if err := t.repo.SaveSnapshot(snap); err != nil {
		return DailySnapshot{}, err
	}
	return snap, nil
}

// RecordDecision persists dc, the full audit trail captured at decision
// time, regardless of whether the decision goes on to submit a live order
// (§3, §4.3, §6 — "Record each trade via Trade History with the full
// DecisionContext").
func (t *Tracker) RecordDecision(ctx context.Context, dc domain.DecisionContext) error {
	return t.repo.SaveDecisionContext(dc)
}

// ComputeMetricsSince rolls up every closed trade and daily snapshot from
// since onward into one risk-adjusted Metrics (§4.8), combining
// ComputeMetrics' per-trade rollup with Sharpe ratio and max drawdown
// pulled from the daily equity curve.
func (t *Tracker) ComputeMetricsSince(since time.Time) (Metrics, error) {
	closed, err := t.repo.ListClosedSince(since)
	if err != nil {
		return Metrics{}, err
	}
	m := ComputeMetrics(closed)

	snapshots, err := t.repo.ListSnapshotsSince(since)
	if err != nil {
		return Metrics{}, err
	}
	m.ApplyRiskMetrics(snapshots)

	return m, nil
}

// RecordAutoExit satisfies positionmonitor.TradeRecorder: it tags the
// closing trade's notes with the triggering SL/TP reason per §4.7.
func (t *Tracker) RecordAutoExit(ctx context.Context, symbol string, order domain.Order, reason string) error {
	records, err := t.repo.ListByTicker(symbol, 1)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tr := records[0]
	tr.Notes = "auto_exit: " + reason
	return t.repo.Update(tr)
}
