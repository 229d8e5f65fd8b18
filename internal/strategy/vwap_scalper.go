package strategy

import (
	"fmt"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// vwapScalperStrategy fires on a short burst above/below a 5-day average
// confirmed by short-horizon momentum (§4.2). A scalping strategy: capped
// lower than the others.
type vwapScalperStrategy struct{}

func (vwapScalperStrategy) Name() string { return "vwap_scalper" }

const (
	vwapAvgWindow      = 5
	vwapDeviationPct   = 0.5
	vwapMomentumWindow = 2
	vwapSizePct        = 0.03
	vwapConfidenceCap  = 75
	vwapStopPct        = 0.015
)

func (vwapScalperStrategy) Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal {
	if len(bars) < vwapAvgWindow+vwapMomentumWindow {
		return nil
	}
	closes := closesOf(bars)
	entry := closes[len(closes)-1]

	window := closes[len(closes)-vwapAvgWindow:]
	avgPrice := avg(window)
	if avgPrice == 0 {
		return nil
	}
	devPct := (entry - avgPrice) / avgPrice * 100

	shortBase := closes[len(closes)-1-vwapMomentumWindow]
	if shortBase == 0 {
		return nil
	}
	shortMomentumPct := (entry - shortBase) / shortBase * 100

	var direction domain.Direction
	switch {
	case devPct > vwapDeviationPct && shortMomentumPct > vwapDeviationPct:
		direction = domain.DirectionLong
	case devPct < -vwapDeviationPct && shortMomentumPct < -vwapDeviationPct:
		direction = domain.DirectionShort
	default:
		return nil
	}

	confidence := clampConfidence(50+abs(devPct)*8+abs(shortMomentumPct)*8, vwapConfidenceCap)

	var stopLoss, takeProfit float64
	if direction == domain.DirectionLong {
		stopLoss = entry * (1 - vwapStopPct)
		takeProfit = entry + (entry-stopLoss)*1.5
	} else {
		stopLoss = entry * (1 + vwapStopPct)
		takeProfit = entry - (stopLoss-entry)*1.5
	}

	reasoning := assembleReasoning(
		fmt.Sprintf("price %.2f%% off %dd average", devPct, vwapAvgWindow),
		fmt.Sprintf("short momentum %.2f%%", shortMomentumPct),
	)

	return &domain.TradingSignal{
		Ticker:          ticker,
		Strategy:        "vwap_scalper",
		Direction:       direction,
		Strength:        strengthOf(confidence),
		Confidence:      confidence,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizePct: vwapSizePct,
		Reasoning:       reasoning,
	}
}
