package performance

import (
	"math"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
	"github.com/mazotrader/orchestrator/pkg/formulas"
)

// Metrics is the rollup over a window of closed trades (§4.8).
type Metrics struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	TotalPnL        float64
	AvgReturnPct    float64
	StdDevReturnPct float64
	AvgHoldingHours float64
	BestTrade       *domain.TradeRecord
	WorstTrade      *domain.TradeRecord
	ProfitFactor    float64
	SharpeRatio     *float64
	MaxDrawdownPct  *float64
}

// ComputeMetrics rolls up closed TradeRecords into Metrics. Records without
// a RealizedPnL (still open, or malformed) are skipped — the derived
// fields are only ever set once, at close, by the FIFO tracker.
func ComputeMetrics(records []domain.TradeRecord) Metrics {
	var m Metrics

	var returns, holdingHours []float64
	var grossWins, grossLosses float64

	for i := range records {
		tr := &records[i]
		if tr.RealizedPnL == nil {
			continue
		}
		m.TotalTrades++
		m.TotalPnL += *tr.RealizedPnL

		if *tr.RealizedPnL > 0 {
			m.WinningTrades++
			grossWins += *tr.RealizedPnL
		} else if *tr.RealizedPnL < 0 {
			m.LosingTrades++
			grossLosses += -*tr.RealizedPnL
		}

		if tr.ReturnPct != nil {
			returns = append(returns, *tr.ReturnPct)
		}
		if tr.HoldingPeriodHours != nil {
			holdingHours = append(holdingHours, *tr.HoldingPeriodHours)
		}

		if m.BestTrade == nil || *tr.RealizedPnL > *m.BestTrade.RealizedPnL {
			m.BestTrade = tr
		}
		if m.WorstTrade == nil || *tr.RealizedPnL < *m.WorstTrade.RealizedPnL {
			m.WorstTrade = tr
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if len(returns) > 0 {
		m.AvgReturnPct = formulas.Mean(returns)
		m.StdDevReturnPct = formulas.StdDev(returns)
	}
	if len(holdingHours) > 0 {
		m.AvgHoldingHours = formulas.Mean(holdingHours)
	}
	if grossLosses > 0 {
		m.ProfitFactor = grossWins / grossLosses
	} else if grossWins > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	return m
}

// ApplyRiskMetrics fills m.SharpeRatio and m.MaxDrawdownPct from the daily
// equity/return curve in snapshots, oldest first. Kept separate from
// ComputeMetrics since the risk-adjusted figures need the day-by-day
// equity curve (DailySnapshot) rather than the closed-trade list — callers
// that only have one or the other can still get a partial Metrics.
func (m *Metrics) ApplyRiskMetrics(snapshots []DailySnapshot) {
	if len(snapshots) < 2 {
		return
	}

	returns := make([]float64, len(snapshots))
	equityCurve := make([]float64, len(snapshots))
	for i, s := range snapshots {
		returns[i] = s.ReturnPct / 100
		equityCurve[i] = s.EndingEquity
	}

	m.SharpeRatio = formulas.CalculateSharpeRatio(returns, 0, 252)
	if dd := formulas.CalculateMaxDrawdown(equityCurve); dd != nil {
		pct := *dd * 100
		m.MaxDrawdownPct = &pct
	}
}
