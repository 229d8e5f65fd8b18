package performance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func newTestTracker(t *testing.T) *Tracker {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())

	return NewTracker(repo, nil, zerolog.Nop())
}

func TestTrackerBuyThenSellClosesWithRealizedPnL(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	entryTime := time.Now().Add(-2 * time.Hour)
	buyOrder := domain.Order{Symbol: "AAPL", Qty: 10, FilledQty: 10, FilledAvgPrice: 100, SubmittedAt: entryTime}

	rec, err := tr.RecordSubmission(ctx, buyOrder, domain.ActionBuy, "momentum", false)
	require.NoError(t, err)

	filled, err := tr.RecordFill(ctx, rec, buyOrder)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, filled.Status)

	exitTime := time.Now()
	sellOrder := domain.Order{Symbol: "AAPL", Qty: 10, FilledQty: 10, FilledAvgPrice: 120, FilledAt: &exitTime}
	sellRec, err := tr.RecordSubmission(ctx, sellOrder, domain.ActionSell, "momentum", false)
	require.NoError(t, err)

	closed, err := tr.RecordFill(ctx, sellRec, sellOrder)
	require.NoError(t, err)

	assert.Equal(t, domain.TradeStatusClosed, closed.Status)
	require.NotNil(t, closed.RealizedPnL)
	assert.InDelta(t, 200.0, *closed.RealizedPnL, 1e-6)
	require.NotNil(t, closed.HoldingPeriodHours)
	assert.Greater(t, *closed.HoldingPeriodHours, 0.0)
}

func TestTrackerRecordAutoExitTagsNotes(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	buyOrder := domain.Order{Symbol: "TSLA", Qty: 5, FilledQty: 5, FilledAvgPrice: 200, SubmittedAt: time.Now()}
	rec, err := tr.RecordSubmission(ctx, buyOrder, domain.ActionBuy, "breakout_micro", false)
	require.NoError(t, err)
	_, err = tr.RecordFill(ctx, rec, buyOrder)
	require.NoError(t, err)

	exitOrder := domain.Order{Symbol: "TSLA", Qty: 5, FilledQty: 5, FilledAvgPrice: 190}
	require.NoError(t, tr.RecordAutoExit(ctx, "TSLA", exitOrder, "stop_loss"))

	got, err := tr.repo.ListByTicker("TSLA", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "auto_exit: stop_loss", got[0].Notes)
}

func TestListPendingReturnsOnlyPendingSinceCutoff(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	old := domain.Order{Symbol: "OLD", Qty: 1, SubmittedAt: time.Now().Add(-48 * time.Hour)}
	_, err := tr.RecordSubmission(ctx, old, domain.ActionBuy, "momentum", false)
	require.NoError(t, err)

	recent := domain.Order{Symbol: "NEW", Qty: 1, SubmittedAt: time.Now()}
	rec, err := tr.RecordSubmission(ctx, recent, domain.ActionBuy, "momentum", false)
	require.NoError(t, err)
	_, err = tr.RecordFill(ctx, rec, domain.Order{Symbol: "NEW", Qty: 1, FilledQty: 1, FilledAvgPrice: 10, SubmittedAt: recent.SubmittedAt})
	require.NoError(t, err)

	stillPending := domain.Order{Symbol: "PENDING", Qty: 1, SubmittedAt: time.Now()}
	_, err = tr.RecordSubmission(ctx, stillPending, domain.ActionBuy, "momentum", false)
	require.NoError(t, err)

	pending, err := tr.repo.ListPending(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "PENDING", pending[0].Ticker)
}

func TestRecomputeDailySnapshotOverwritesExisting(t *testing.T) {
	tr := newTestTracker(t)
	today := time.Now()

	_, ok, err := tr.CaptureDailySnapshot(today, 1000, 1050, 0)
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := tr.RecomputeDailySnapshot(today, 1000, 1100, 5)
	require.NoError(t, err)
	assert.Equal(t, 1100.0, snap.EndingEquity)

	has, err := tr.repo.HasSnapshot(today)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestCloseFromMatchesUpdatesAgentPerformance(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())

	agentDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { agentDB.Close() })
	agentPerf := NewAgentPerformanceRepository(agentDB, zerolog.Nop())
	require.NoError(t, agentPerf.Migrate())

	tr := NewTracker(repo, agentPerf, zerolog.Nop())
	ctx := context.Background()

	buy := domain.Order{Symbol: "AAPL", Qty: 10, FilledQty: 10, FilledAvgPrice: 100}
	rec, err := tr.RecordSubmission(ctx, buy, domain.ActionBuy, "momentum", false)
	require.NoError(t, err)
	_, err = tr.RecordFill(ctx, rec, buy)
	require.NoError(t, err)

	sellTime := time.Now()
	sell := domain.Order{Symbol: "AAPL", Qty: 10, FilledQty: 10, FilledAvgPrice: 110, FilledAt: &sellTime}
	sellRec, err := tr.RecordSubmission(ctx, sell, domain.ActionSell, "momentum", false)
	require.NoError(t, err)
	_, err = tr.RecordFill(ctx, sellRec, sell)
	require.NoError(t, err)

	ap, ok, err := agentPerf.GetAgentPerformance("momentum")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, ap.TotalTrades)
	assert.Equal(t, 1, ap.WinningTrades)
	assert.InDelta(t, 100.0, ap.TotalPnL, 1e-6)
}

func TestRecordDecisionPersistsFullContext(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	stopLoss := 95.0
	dc := domain.DecisionContext{
		WorkflowID:      "wf-1",
		Signal:          domain.TradingSignal{Ticker: "AAPL", Strategy: "momentum", Direction: domain.DirectionLong},
		ResearchSummary: "bullish outlook",
		AgentSignals:    map[string]string{"momentum": "long"},
		ConsensusFor:    1,
		PMAction:        domain.ActionBuy,
		PMQuantity:      10,
		PMStopLossPct:   &stopLoss,
		PMReasoning:     "momentum breakout with bullish research",
		PortfolioSnapshot: map[string]float64{"equity": 10000, "buying_power": 5000},
		CreatedAt:       time.Now(),
	}

	require.NoError(t, tr.RecordDecision(ctx, dc))

	var count int
	require.NoError(t, tr.repo.DB().QueryRow(`SELECT COUNT(*) FROM decision_contexts WHERE workflow_id = ?`, "wf-1").Scan(&count))
	assert.Equal(t, 1, count)
}
