package strategy

import (
	"fmt"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// breakoutMicroStrategy fires when price clears the recent 5-day range by a
// small margin (§4.2). A scalping strategy: capped lower than the others.
type breakoutMicroStrategy struct{}

func (breakoutMicroStrategy) Name() string { return "breakout_micro" }

const (
	breakoutRangeWindow  = 5
	breakoutMarginPct    = 0.3
	breakoutSizePct      = 0.03
	breakoutConfidenceCap = 75
)

func (breakoutMicroStrategy) Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal {
	if len(bars) < breakoutRangeWindow+1 {
		return nil
	}
	closes := closesOf(bars)
	entry := closes[len(closes)-1]

	window := lastN(bars[:len(bars)-1], breakoutRangeWindow)
	rangeHigh := maxHigh(window)
	rangeLow := minLow(window)
	if rangeHigh == 0 || rangeLow == 0 {
		return nil
	}
	rangeWidth := rangeHigh - rangeLow

	var direction domain.Direction
	var marginPct float64
	switch {
	case entry > rangeHigh*(1+breakoutMarginPct/100):
		direction = domain.DirectionLong
		marginPct = (entry - rangeHigh) / rangeHigh * 100
	case entry < rangeLow*(1-breakoutMarginPct/100):
		direction = domain.DirectionShort
		marginPct = (rangeLow - entry) / rangeLow * 100
	default:
		return nil
	}

	confidence := clampConfidence(55+marginPct*10, breakoutConfidenceCap)

	stopDistance := rangeWidth * 0.5
	if floor := entry * 0.015; stopDistance < floor {
		stopDistance = floor
	}

	var stopLoss, takeProfit float64
	if direction == domain.DirectionLong {
		stopLoss = entry - stopDistance
		takeProfit = entry + stopDistance*1.5
	} else {
		stopLoss = entry + stopDistance
		takeProfit = entry - stopDistance*1.5
	}

	reasoning := assembleReasoning(
		fmt.Sprintf("close %.2f broke %dd range [%.2f, %.2f] by %.2f%%", entry, breakoutRangeWindow, rangeLow, rangeHigh, marginPct),
	)

	return &domain.TradingSignal{
		Ticker:          ticker,
		Strategy:        "breakout_micro",
		Direction:       direction,
		Strength:        strengthOf(confidence),
		Confidence:      confidence,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizePct: breakoutSizePct,
		Reasoning:       reasoning,
	}
}
