package strategy

import (
	"fmt"

	"github.com/mazotrader/orchestrator/pkg/formulas"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// meanReversionStrategy fires when price pierces a Bollinger Band, boosted
// by an extreme RSI reading (§4.2).
type meanReversionStrategy struct{}

func (meanReversionStrategy) Name() string { return "mean_reversion" }

const (
	bbPeriod         = 20
	bbNumStdDev      = 2.0
	rsiPeriod        = 14
	meanReversionSizePct = 0.05
)

func (meanReversionStrategy) Analyze(ticker string, bars []domain.PriceBar) *domain.TradingSignal {
	if len(bars) < bbPeriod {
		return nil
	}
	closes := closesOf(bars)
	entry := closes[len(closes)-1]

	upper, middle, lower := BollingerBands(closes, bbPeriod, bbNumStdDev)
	if upper == nil || middle == nil || lower == nil {
		return nil
	}
	rsi := formulas.CalculateRSI(closes, rsiPeriod)

	var direction domain.Direction
	var bandDistPct float64
	switch {
	case entry < *lower:
		direction = domain.DirectionLong
		bandDistPct = (*lower - entry) / entry * 100
	case entry > *upper:
		direction = domain.DirectionShort
		bandDistPct = (entry - *upper) / entry * 100
	default:
		return nil
	}

	confidence := clampConfidence(55+bandDistPct*4, 90)
	rsiNote := "RSI unavailable"
	if rsi != nil {
		rsiNote = fmt.Sprintf("RSI %.1f", *rsi)
		if direction == domain.DirectionLong && *rsi < 30 {
			confidence = clampConfidence(confidence+10, 90)
		}
		if direction == domain.DirectionShort && *rsi > 70 {
			confidence = clampConfidence(confidence+10, 90)
		}
	}

	bandWidth := *upper - *lower
	var stopLoss, takeProfit float64
	if direction == domain.DirectionLong {
		stopLoss = *lower - bandWidth*0.25
		takeProfit = *middle
	} else {
		stopLoss = *upper + bandWidth*0.25
		takeProfit = *middle
	}

	reasoning := assembleReasoning(
		fmt.Sprintf("close %.2f pierced %s Bollinger band", entry, bandSide(direction)),
		rsiNote,
	)

	return &domain.TradingSignal{
		Ticker:          ticker,
		Strategy:        "mean_reversion",
		Direction:       direction,
		Strength:        strengthOf(confidence),
		Confidence:      confidence,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizePct: meanReversionSizePct,
		Reasoning:       reasoning,
	}
}

func bandSide(d domain.Direction) string {
	if d == domain.DirectionLong {
		return "lower"
	}
	return "upper"
}
