package strategy

import (
	"fmt"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// momentumStrategy fires on a sustained price move confirmed by above-average
// volume (§4.2). Requires lookback+2 bars so an ATR can be estimated.
type momentumStrategy struct{}

func (momentumStrategy) Name() string { return "momentum" }

const (
	momentumLookback  = 5
	momentumThreshold = 2.0 // percent
	momentumMinVolRatio = 1.5
	momentumSizePct   = 0.05
)

func (momentumStrategy) Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal {
	if len(bars) < momentumLookback+2 {
		return nil
	}

	closes := closesOf(bars)
	n := len(closes)
	entry := closes[n-1]
	base := closes[n-1-momentumLookback]
	if base == 0 {
		return nil
	}
	deltaPct := (entry - base) / base * 100

	volumes := volumesOf(bars)
	currentVol := volumes[n-1]
	avgVol := avg(volumes)
	if avgVol == 0 {
		return nil
	}
	volRatio := currentVol / avgVol

	var direction domain.Direction
	switch {
	case deltaPct > momentumThreshold && volRatio >= momentumMinVolRatio:
		direction = domain.DirectionLong
	case deltaPct < -momentumThreshold && volRatio >= momentumMinVolRatio:
		direction = domain.DirectionShort
	default:
		return nil
	}

	moveBoost := clampConfidence((abs(deltaPct)-momentumThreshold)*1.5, 15)
	volBoost := clampConfidence((volRatio-1)*10, 15)
	confidence := clampConfidence(55+moveBoost+volBoost, 90)

	atrPeriod := preferredATRPeriod(len(bars))
	atr := ATR(bars, atrPeriod)
	atrVal := entry * 0.02
	if atr != nil {
		atrVal = *atr
	}

	var stopLoss, takeProfit float64
	if direction == domain.DirectionLong {
		stopLoss = entry - atrVal*1.5
		takeProfit = entry + (entry-stopLoss)*2
	} else {
		stopLoss = entry + atrVal*1.5
		takeProfit = entry - (stopLoss-entry)*2
	}

	reasoning := assembleReasoning(
		fmt.Sprintf("momentum %.2f%% over %dd vs %.2f%% threshold", deltaPct, momentumLookback, momentumThreshold),
		fmt.Sprintf("Volume %.2fx average", volRatio),
	)

	return &domain.TradingSignal{
		Ticker:          ticker,
		Strategy:        "momentum",
		Direction:       direction,
		Strength:        strengthOf(confidence),
		Confidence:      confidence,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizePct: momentumSizePct,
		Reasoning:       reasoning,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func preferredATRPeriod(nbars int) int {
	if nbars-1 < 14 {
		if nbars-1 < 2 {
			return 2
		}
		return nbars - 1
	}
	return 14
}
