package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func ptr(f float64) *float64 { return &f }

func TestComputeMetricsWinRateAndProfitFactor(t *testing.T) {
	records := []domain.TradeRecord{
		{RealizedPnL: ptr(100), ReturnPct: ptr(10), HoldingPeriodHours: ptr(2)},
		{RealizedPnL: ptr(-50), ReturnPct: ptr(-5), HoldingPeriodHours: ptr(1)},
		{RealizedPnL: ptr(200), ReturnPct: ptr(15), HoldingPeriodHours: ptr(3)},
	}

	m := ComputeMetrics(records)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0*100, m.WinRate, 1e-6)
	assert.InDelta(t, 250.0, m.TotalPnL, 1e-6)
	assert.InDelta(t, 300.0/50.0, m.ProfitFactor, 1e-6)
	best := m.BestTrade
	assert.InDelta(t, 200.0, *best.RealizedPnL, 1e-6)
}

func TestComputeMetricsSkipsOpenTrades(t *testing.T) {
	records := []domain.TradeRecord{
		{RealizedPnL: nil},
		{RealizedPnL: ptr(10), ReturnPct: ptr(1), HoldingPeriodHours: ptr(1)},
	}
	m := ComputeMetrics(records)
	assert.Equal(t, 1, m.TotalTrades)
}

func TestApplyRiskMetricsComputesSharpeAndDrawdown(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }
	snapshots := []DailySnapshot{
		{Date: day(1), EndingEquity: 100000, ReturnPct: 0},
		{Date: day(2), EndingEquity: 102000, ReturnPct: 2},
		{Date: day(3), EndingEquity: 99000, ReturnPct: -2.94},
		{Date: day(4), EndingEquity: 105000, ReturnPct: 6.06},
	}

	var m Metrics
	m.ApplyRiskMetrics(snapshots)

	require := assert.New(t)
	require.NotNil(m.SharpeRatio)
	require.NotNil(m.MaxDrawdownPct)
	require.InDelta(2.94, *m.MaxDrawdownPct, 0.1)
}

func TestApplyRiskMetricsNoopOnInsufficientData(t *testing.T) {
	var m Metrics
	m.ApplyRiskMetrics([]DailySnapshot{{EndingEquity: 100000}})
	assert.Nil(t, m.SharpeRatio)
	assert.Nil(t, m.MaxDrawdownPct)
}
