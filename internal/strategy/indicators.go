// Package strategy implements the Strategy Engine (§4.2): pure, stateless
// signal producers over a common price-series contract, dispatched through
// a named registry rather than an inheritance hierarchy (§9).
package strategy

import (
	"github.com/markcheno/go-talib"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// SMA returns the simple moving average of the last period closes, or nil
// if there are fewer than period bars.
func SMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	out := talib.Sma(closes, period)
	return lastValid(out)
}

// EMA returns the exponential moving average of the last period closes.
func EMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	out := talib.Ema(closes, period)
	return lastValid(out)
}

// BollingerBands returns the upper/middle/lower band at period 20, k=2 by
// convention (callers may pass other periods/multipliers).
func BollingerBands(closes []float64, period int, numStdDev float64) (upper, middle, lower *float64) {
	if len(closes) < period {
		return nil, nil, nil
	}
	u, m, l := talib.BBands(closes, period, numStdDev, numStdDev, talib.SMA)
	return lastValid(u), lastValid(m), lastValid(l)
}

// ATR returns the 14-period (by default) average true range.
func ATR(bars []domain.PriceBar, period int) *float64 {
	if len(bars) < period+1 {
		return nil
	}
	highs, lows, closes := splitHLC(bars)
	out := talib.Atr(highs, lows, closes, period)
	return lastValid(out)
}

func splitHLC(bars []domain.PriceBar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return
}

func closesOf(bars []domain.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumesOf(bars []domain.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if v != v { // NaN
		return nil
	}
	return &v
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clampConfidence(c, cap float64) float64 {
	if c > cap {
		return cap
	}
	if c < 0 {
		return 0
	}
	return c
}
