package strategy

import (
	"fmt"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// trendFollowingStrategy fires on a moving-average crossover, boosted by a
// fresh golden/death cross and proximity to the 20-day high/low (§4.2).
type trendFollowingStrategy struct{}

func (trendFollowingStrategy) Name() string { return "trend_following" }

const (
	trendShortPeriod = 10
	trendLongPeriod  = 50
	trendSizePct     = 0.08
	trendHighLowWindow = 20
)

func (trendFollowingStrategy) Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal {
	if len(bars) < trendLongPeriod+1 {
		return nil
	}
	closes := closesOf(bars)
	entry := closes[len(closes)-1]

	shortEMA := EMA(closes, trendShortPeriod)
	longSMA := SMA(closes, trendLongPeriod)
	if shortEMA == nil || longSMA == nil {
		return nil
	}

	prevShortEMA := EMA(closes[:len(closes)-1], trendShortPeriod)
	prevLongSMA := SMA(closes[:len(closes)-1], trendLongPeriod)

	var direction domain.Direction
	switch {
	case *shortEMA > *longSMA:
		direction = domain.DirectionLong
	case *shortEMA < *longSMA:
		direction = domain.DirectionShort
	default:
		return nil
	}

	spreadPct := abs(*shortEMA-*longSMA) / *longSMA * 100
	confidence := clampConfidence(55+spreadPct*6, 85)

	goldenCross := false
	if prevShortEMA != nil && prevLongSMA != nil {
		wasBelow := *prevShortEMA <= *prevLongSMA
		wasAbove := *prevShortEMA >= *prevLongSMA
		if direction == domain.DirectionLong && wasBelow {
			goldenCross = true
			confidence = clampConfidence(confidence+10, 85)
		}
		if direction == domain.DirectionShort && wasAbove {
			goldenCross = true
			confidence = clampConfidence(confidence+10, 85)
		}
	}

	window := lastN(bars, trendHighLowWindow)
	high20 := maxHigh(window)
	low20 := minLow(window)
	nearExtreme := false
	if direction == domain.DirectionLong && high20 > 0 && entry >= high20*0.98 {
		nearExtreme = true
		confidence = clampConfidence(confidence+5, 85)
	}
	if direction == domain.DirectionShort && low20 > 0 && entry <= low20*1.02 {
		nearExtreme = true
		confidence = clampConfidence(confidence+5, 85)
	}

	atrPeriod := preferredATRPeriod(len(bars))
	atr := ATR(bars, atrPeriod)
	atrVal := entry * 0.02
	if atr != nil {
		atrVal = *atr
	}

	var stopLoss, takeProfit float64
	if direction == domain.DirectionLong {
		stopLoss = entry - atrVal*2.5
		takeProfit = entry + (entry-stopLoss)*2
	} else {
		stopLoss = entry + atrVal*2.5
		takeProfit = entry - (stopLoss-entry)*2
	}

	reasoning := assembleReasoning(
		fmt.Sprintf("EMA%d %.2f vs SMA%d %.2f", trendShortPeriod, *shortEMA, trendLongPeriod, *longSMA),
		fmt.Sprintf("golden_cross=%v", goldenCross),
		fmt.Sprintf("near_20d_extreme=%v", nearExtreme),
	)

	return &domain.TradingSignal{
		Ticker:          ticker,
		Strategy:        "trend_following",
		Direction:       direction,
		Strength:        strengthOf(confidence),
		Confidence:      confidence,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizePct: trendSizePct,
		Reasoning:       reasoning,
	}
}

func lastN(bars []domain.PriceBar, n int) []domain.PriceBar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

func maxHigh(bars []domain.PriceBar) float64 {
	max := 0.0
	for _, b := range bars {
		if b.High > max {
			max = b.High
		}
	}
	return max
}

func minLow(bars []domain.PriceBar) float64 {
	if len(bars) == 0 {
		return 0
	}
	min := bars[0].Low
	for _, b := range bars {
		if b.Low < min {
			min = b.Low
		}
	}
	return min
}
